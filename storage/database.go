/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"

	applog "tablewarden/internal/log"
	"tablewarden/schema"
)

// State is the façade's lifecycle position. Failed and Closed are terminal.
type State int32

const (
	StateConstructed State = iota
	StateOpening
	StateReady
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// language=SQL
// dialect=SQLite
const sqlQuickCheck = `PRAGMA quick_check;`

// Database is the storage façade: one embedded engine handle, one Model per
// declared table, and the maintenance scheduler. All model and maintenance
// operations require the Ready state. The embedded engine serializes
// statement execution on the single shared connection; concurrent use is
// safe to that extent, with backup and vacuum additionally excluded against
// each other. Independent handles on the same file are unsupported.
type Database struct {
	opts   Options
	sch    *schema.Schema
	log    *slog.Logger
	state  atomic.Int32
	db     *sql.DB
	rows   *rowIO
	models map[string]*Model
	maint  maintainer
}

// New validates the options and builds the façade with one model per
// declared table. No file is touched until Open.
func New(opts Options) (*Database, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	l := o.Logger
	if l == nil {
		l = applog.WithComponent("storage")
	}
	d := &Database{
		opts:   o,
		sch:    o.Schema,
		log:    l,
		models: make(map[string]*Model, o.Schema.Len()),
	}
	for _, tbl := range o.Schema.Tables() {
		d.models[tbl.Name] = newModel(d, tbl)
	}
	return d, nil
}

// Open connects the engine, migrates the physical layout to the declared
// schema and starts the maintenance timers. Only a constructed façade can
// open; any failure on the way is terminal. Skipped rename conflicts report
// 409 while the storage still reaches Ready.
func (d *Database) Open(ctx context.Context) Result {
	if !d.state.CompareAndSwap(int32(StateConstructed), int32(StateOpening)) {
		return resFailure(fmt.Errorf("%w: open from state %s", ErrNotReady, d.State()))
	}

	if dir := filepath.Dir(d.opts.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			d.state.Store(int32(StateFailed))
			d.reportError("storage.open "+d.opts.Path, err)
			return resFailure(fmt.Errorf("create storage directory: %w", err))
		}
	}

	// URI with shared cache and busy timeout; forward slashes for the URI.
	uriPath := filepath.ToSlash(d.opts.Path)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", uriPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		d.state.Store(int32(StateFailed))
		d.log.Error("sqlite open failed", slog.Any("err", err))
		d.reportError("storage.open "+d.opts.Path, err)
		return resFailure(fmt.Errorf("open sqlite: %w", err))
	}
	// Connection pool limits for embedded usage.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		d.state.Store(int32(StateFailed))
		d.log.Error("enable WAL failed", slog.Any("err", err))
		d.reportError("storage.open "+d.opts.Path, err)
		return resFailure(fmt.Errorf("enable WAL: %w", err))
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		d.log.Warn("enable foreign_keys failed", slog.Any("err", err))
	}

	d.db = db
	d.rows = &rowIO{db: db, report: d.reportError}

	conflicts, err := d.migrate(ctx)
	if err != nil {
		_ = db.Close()
		d.state.Store(int32(StateFailed))
		d.log.Error("migration failed", slog.Any("err", err))
		return resFailure(err)
	}

	d.startMaintenance()
	d.state.Store(int32(StateReady))
	d.log.Info("storage ready",
		slog.String("path", d.opts.Path), slog.Int("tables", d.sch.Len()))
	if len(conflicts) > 0 {
		return resConflict(errors.Join(conflicts...),
			fmt.Sprintf("%d rename conflict(s) skipped", len(conflicts)))
	}
	return resOK()
}

// Close cancels the maintenance timers, attempts one final backup when
// backups are enabled, and releases the engine handle. Closed is terminal.
func (d *Database) Close(ctx context.Context) Result {
	if !d.state.CompareAndSwap(int32(StateReady), int32(StateClosing)) {
		switch d.State() {
		case StateClosing, StateClosed:
			return resFailure(fmt.Errorf("close: %w", ErrClosed))
		default:
			return resFailure(fmt.Errorf("close: %w", ErrNotReady))
		}
	}
	d.stopMaintenance()
	if d.opts.BackupEnabled {
		if res := d.backup(ctx, ""); !res.OK {
			d.log.Warn("final backup failed", slog.Any("err", res.Err))
		}
	}
	err := d.db.Close()
	d.state.Store(int32(StateClosed))
	if err != nil {
		d.reportError("storage.close "+d.opts.Path, err)
		return resFailure(err)
	}
	d.log.Info("storage closed", slog.String("path", d.opts.Path))
	return resOK()
}

// Model returns the bound API for one declared table.
func (d *Database) Model(table string) (*Model, bool) {
	m, ok := d.models[table]
	return m, ok
}

// Models returns every model in declared table order.
func (d *Database) Models() []*Model {
	out := make([]*Model, 0, len(d.models))
	for _, name := range d.sch.Names() {
		out = append(out, d.models[name])
	}
	return out
}

// Schema returns the declared schema backing this façade.
func (d *Database) Schema() *schema.Schema { return d.sch }

// Path returns the storage file path.
func (d *Database) Path() string { return d.opts.Path }

// State reports the current lifecycle position.
func (d *Database) State() State { return State(d.state.Load()) }

// IntegrityCheck runs the engine's quick self-check and reports "ok" or the
// findings it raised.
func (d *Database) IntegrityCheck(ctx context.Context) Result {
	if err := d.gate(); err != nil {
		return resFailure(err)
	}
	rows, err := d.db.QueryContext(ctx, sqlQuickCheck)
	if err != nil {
		return d.rows.fail("storage.integrity "+d.opts.Path, err)
	}
	defer func() { _ = rows.Close() }()
	var findings []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return d.rows.fail("storage.integrity "+d.opts.Path, err)
		}
		findings = append(findings, line)
	}
	if err := rows.Err(); err != nil {
		return d.rows.fail("storage.integrity "+d.opts.Path, err)
	}
	if len(findings) == 1 && strings.EqualFold(findings[0], "ok") {
		return resInfo("ok")
	}
	return Result{
		Code: StatusError,
		Info: strings.Join(findings, "; "),
		Err:  fmt.Errorf("integrity check found %d problem(s)", len(findings)),
	}
}

// gate admits operations only while Ready.
func (d *Database) gate() error {
	switch State(d.state.Load()) {
	case StateReady:
		return nil
	case StateClosing, StateClosed:
		return ErrClosed
	default:
		return ErrNotReady
	}
}

// reportError routes an engine error to the log and the configured callback.
func (d *Database) reportError(tag string, err error) {
	d.log.Error("storage error", slog.String("tag", tag), slog.Any("err", err))
	if d.opts.OnError != nil {
		d.opts.OnError(tag, err)
	}
}

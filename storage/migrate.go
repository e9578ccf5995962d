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
	"strconv"
	"strings"

	"github.com/google/uuid"

	"tablewarden/schema"
)

// language=SQL
// dialect=SQLite
const sqlTableExists = `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?;`

// language=SQL
// dialect=SQLite
const sqlListTables = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name;`

// migrate reconciles the physical layout with the declared schema, table by
// table in declared order. A failing table aborts the whole run; rename
// conflicts are collected, reported and skipped without aborting.
func (d *Database) migrate(ctx context.Context) ([]error, error) {
	var conflicts []error
	for _, tbl := range d.sch.Tables() {
		cs, err := d.migrateTable(ctx, tbl)
		conflicts = append(conflicts, cs...)
		if err != nil {
			return conflicts, fmt.Errorf("migrate table %q: %w", tbl.Name, err)
		}
	}
	if d.opts.DeleteUnusedTables {
		if err := d.pruneTables(ctx); err != nil {
			return conflicts, fmt.Errorf("prune tables: %w", err)
		}
	}
	return conflicts, nil
}

func (d *Database) migrateTable(ctx context.Context, tbl schema.Table) ([]error, error) {
	var name string
	err := d.db.QueryRowContext(ctx, sqlTableExists, tbl.Name).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, d.createTable(ctx, tbl)
	case err != nil:
		d.reportError("storage.migrate "+tbl.Name, err)
		return nil, fmt.Errorf("probe table: %w", err)
	}
	conflicts, err := d.reconcileColumns(ctx, tbl)
	if err != nil {
		return conflicts, err
	}
	if d.opts.ReorderColumns {
		if err := d.reorderColumns(ctx, tbl); err != nil {
			return conflicts, err
		}
	}
	return conflicts, nil
}

func (d *Database) createTable(ctx context.Context, tbl schema.Table) error {
	ddl := createTableDDL(tbl.Name, tbl.Columns)
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		d.reportError("storage.migrate "+tbl.Name, err)
		return fmt.Errorf("create table: %w", err)
	}
	d.log.Info("table created", slog.String("table", tbl.Name), slog.Int("columns", len(tbl.Columns)))
	return nil
}

// reconcileColumns applies renames, then additions, then (when configured)
// drops, so a renamed legacy column is never re-added under its new name.
// The returned conflicts are the skipped renames.
func (d *Database) reconcileColumns(ctx context.Context, tbl schema.Table) ([]error, error) {
	phys, err := d.physicalColumns(ctx, tbl.Name)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(phys))
	for _, pc := range phys {
		have[strings.ToLower(pc.name)] = true
	}

	var conflicts []error
	for _, col := range tbl.Columns {
		if col.PreviousName == "" || !have[strings.ToLower(col.PreviousName)] {
			continue
		}
		if have[strings.ToLower(col.Name)] {
			// Both the legacy and the declared column exist physically;
			// renaming would clobber data. Non-fatal, the add step below
			// finds the declared column already present.
			err := fmt.Errorf("%w: %s.%s -> %s", ErrRenameConflict, tbl.Name, col.PreviousName, col.Name)
			d.reportError("storage.migrate "+tbl.Name, err)
			conflicts = append(conflicts, err)
			continue
		}
		q := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			quoteIdent(tbl.Name), quoteIdent(col.PreviousName), quoteIdent(col.Name))
		if _, err := d.db.ExecContext(ctx, q); err != nil {
			d.reportError("storage.migrate "+tbl.Name, err)
			return conflicts, fmt.Errorf("rename column %s: %w", col.PreviousName, err)
		}
		have[strings.ToLower(col.PreviousName)] = false
		have[strings.ToLower(col.Name)] = true
		d.log.Info("column renamed", slog.String("table", tbl.Name),
			slog.String("from", col.PreviousName), slog.String("to", col.Name))
	}

	for _, col := range tbl.Columns {
		if have[strings.ToLower(col.Name)] {
			continue
		}
		if col.PrimaryKey {
			// ALTER TABLE cannot introduce a primary key; converge through a
			// full rebuild instead.
			return conflicts, d.rebuildTable(ctx, tbl)
		}
		q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(tbl.Name), columnDDL(col))
		if _, err := d.db.ExecContext(ctx, q); err != nil {
			d.reportError("storage.migrate "+tbl.Name, err)
			return conflicts, fmt.Errorf("add column %s: %w", col.Name, err)
		}
		have[strings.ToLower(col.Name)] = true
		d.log.Info("column added", slog.String("table", tbl.Name), slog.String("column", col.Name))
	}

	if d.opts.DeleteUnusedColumns {
		declared := declaredSet(tbl)
		phys, err = d.physicalColumns(ctx, tbl.Name)
		if err != nil {
			return conflicts, err
		}
		for _, pc := range phys {
			if declared[strings.ToLower(pc.name)] {
				continue
			}
			q := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdent(tbl.Name), quoteIdent(pc.name))
			if _, err := d.db.ExecContext(ctx, q); err != nil {
				// Engines refuse direct drops in several layouts; the
				// rebuild produces the same observable effect.
				d.log.Warn("native column drop failed, rebuilding",
					slog.String("table", tbl.Name), slog.String("column", pc.name), slog.Any("err", err))
				return conflicts, d.rebuildTable(ctx, tbl)
			}
			d.log.Info("column dropped", slog.String("table", tbl.Name), slog.String("column", pc.name))
		}
	}
	return conflicts, nil
}

// reorderColumns rebuilds the table when the physical column order differs
// from declared-first order. Matching order is a strict no-op.
func (d *Database) reorderColumns(ctx context.Context, tbl schema.Table) error {
	phys, err := d.physicalColumns(ctx, tbl.Name)
	if err != nil {
		return err
	}
	declared := declaredSet(tbl)
	desired := make([]string, 0, len(phys))
	for _, c := range tbl.Columns {
		desired = append(desired, strings.ToLower(c.Name))
	}
	for _, pc := range phys {
		if !declared[strings.ToLower(pc.name)] {
			desired = append(desired, strings.ToLower(pc.name))
		}
	}
	current := make([]string, len(phys))
	for i, pc := range phys {
		current[i] = strings.ToLower(pc.name)
	}
	if equalStrings(current, desired) {
		return nil
	}
	d.log.Info("reordering columns", slog.String("table", tbl.Name))
	return d.rebuildTable(ctx, tbl)
}

// rebuildTable recreates the table inside one transaction: declared columns
// first in declared order, then any physical leftovers (dropped instead when
// DeleteUnusedColumns), copying the shared columns across, then swapping the
// rebuilt table into place. A crash cannot strand the temporary table.
func (d *Database) rebuildTable(ctx context.Context, tbl schema.Table) error {
	tag := "storage.migrate " + tbl.Name
	phys, err := d.physicalColumns(ctx, tbl.Name)
	if err != nil {
		return err
	}
	declared := declaredSet(tbl)
	physSet := make(map[string]bool, len(phys))
	for _, pc := range phys {
		physSet[strings.ToLower(pc.name)] = true
	}

	defs := make([]string, 0, len(tbl.Columns)+len(phys))
	carried := make([]string, 0, len(phys))
	for _, c := range tbl.Columns {
		defs = append(defs, columnDDL(c))
		if physSet[strings.ToLower(c.Name)] {
			carried = append(carried, c.Name)
		}
	}
	if !d.opts.DeleteUnusedColumns {
		for _, pc := range phys {
			if declared[strings.ToLower(pc.name)] {
				continue
			}
			defs = append(defs, leftoverDDL(pc))
			carried = append(carried, pc.name)
		}
	}

	tmp := fmt.Sprintf("%s_rebuild_%s", tbl.Name, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.reportError(tag, err)
		return fmt.Errorf("rebuild begin: %w", err)
	}
	rollback := func(step string, err error) error {
		_ = tx.Rollback()
		d.reportError(tag, err)
		return fmt.Errorf("rebuild %s: %w", step, err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(tmp), strings.Join(defs, ", "))); err != nil {
		return rollback("create", err)
	}
	if len(carried) > 0 {
		cols := joinIdents(carried)
		q := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", quoteIdent(tmp), cols, cols, quoteIdent(tbl.Name))
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return rollback("copy", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(tbl.Name)); err != nil {
		return rollback("drop", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(tmp), quoteIdent(tbl.Name))); err != nil {
		return rollback("swap", err)
	}
	if err := tx.Commit(); err != nil {
		d.reportError(tag, err)
		return fmt.Errorf("rebuild commit: %w", err)
	}
	d.log.Info("table rebuilt", slog.String("table", tbl.Name), slog.Int("columns", len(defs)))
	return nil
}

func (d *Database) pruneTables(ctx context.Context) error {
	rows, err := d.db.QueryContext(ctx, sqlListTables)
	if err != nil {
		d.reportError("storage.prune", err)
		return err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	declared := make(map[string]bool, d.sch.Len())
	for _, n := range d.sch.Names() {
		declared[strings.ToLower(n)] = true
	}
	for _, name := range names {
		if declared[strings.ToLower(name)] {
			continue
		}
		if _, err := d.db.ExecContext(ctx, "DROP TABLE "+quoteIdent(name)); err != nil {
			d.reportError("storage.prune "+name, err)
			return fmt.Errorf("drop table %s: %w", name, err)
		}
		d.log.Info("table pruned", slog.String("table", name))
	}
	return nil
}

type columnInfo struct {
	cid     int
	name    string
	ctype   string
	notnull int
	dflt    sql.NullString
	pk      int
}

func (d *Database) physicalColumns(ctx context.Context, table string) ([]columnInfo, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		d.reportError("storage.migrate "+table, err)
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []columnInfo
	for rows.Next() {
		var pc columnInfo
		if err := rows.Scan(&pc.cid, &pc.name, &pc.ctype, &pc.notnull, &pc.dflt, &pc.pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func createTableDDL(name string, cols []schema.Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = columnDDL(c)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
}

func columnDDL(c schema.Column) string {
	parts := []string{quoteIdent(c.Name), sqlType(c.Type)}
	if c.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if c.Default != nil {
		parts = append(parts, "DEFAULT "+sqlLiteral(c.Default))
	}
	return strings.Join(parts, " ")
}

// leftoverDDL re-emits a physical column the declaration does not cover,
// from what table_info reports about it.
func leftoverDDL(pc columnInfo) string {
	parts := []string{quoteIdent(pc.name)}
	if t := strings.TrimSpace(pc.ctype); t != "" {
		parts = append(parts, t)
	}
	if pc.dflt.Valid {
		parts = append(parts, "DEFAULT "+pc.dflt.String)
	}
	return strings.Join(parts, " ")
}

func sqlType(t schema.Type) string {
	if t == schema.TypeInteger {
		return "INTEGER"
	}
	return "TEXT"
}

// sqlLiteral renders a normalized default value as a DDL literal. Defaults
// cannot be bound as parameters, so strings are quoted here.
func sqlLiteral(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return "''"
	}
}

func declaredSet(tbl schema.Table) map[string]bool {
	out := make(map[string]bool, len(tbl.Columns))
	for _, c := range tbl.Columns {
		out[strings.ToLower(c.Name)] = true
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

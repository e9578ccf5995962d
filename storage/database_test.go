/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tablewarden/schema"
)

func itemsSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(schema.Table{
		Name: "items",
		Columns: []schema.Column{
			{Name: "id", Type: schema.TypeText, PrimaryKey: true},
			{Name: "url", Type: schema.TypeText},
			{Name: "size", Type: schema.TypeInteger},
		},
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Path:   filepath.Join(t.TempDir(), "items.db"),
		Schema: itemsSchema(t),
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func openDatabase(t *testing.T, opts Options) *Database {
	t.Helper()
	d, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if res := d.Open(ctx); !res.OK {
		t.Fatalf("open: code=%d err=%v", res.Code, res.Err)
	}
	t.Cleanup(func() {
		if d.State() == StateReady {
			_ = d.Close(context.Background())
		}
	})
	return d
}

// execRaw runs statements over a direct engine connection, for seeding
// legacy layouts before the façade opens.
func execRaw(t *testing.T, path string, stmts ...string) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(2000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = db.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

func mustCreateSaved(t *testing.T, m *Model, values ...any) *Instance {
	t.Helper()
	inst, err := m.Create(values...)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res := inst.Save(testCtx(t)); !res.OK {
		t.Fatalf("save: code=%d err=%v", res.Code, res.Err)
	}
	return inst
}

func TestOpenReachesReadyAndCloseIsTerminal(t *testing.T) {
	opts := testOptions(t)
	d := openDatabase(t, opts)
	if got := d.State(); got != StateReady {
		t.Fatalf("state after open: %v", got)
	}
	if _, err := os.Stat(opts.Path); err != nil {
		t.Fatalf("storage file missing: %v", err)
	}

	if res := d.Close(testCtx(t)); !res.OK {
		t.Fatalf("close: %v", res.Err)
	}
	if got := d.State(); got != StateClosed {
		t.Fatalf("state after close: %v", got)
	}
	res := d.Close(testCtx(t))
	if res.OK || !errors.Is(res.Err, ErrClosed) {
		t.Fatalf("second close: code=%d err=%v", res.Code, res.Err)
	}
}

func TestOpenFromWrongStateFails(t *testing.T) {
	d := openDatabase(t, testOptions(t))
	res := d.Open(testCtx(t))
	if res.OK || !errors.Is(res.Err, ErrNotReady) {
		t.Fatalf("reopen: code=%d err=%v", res.Code, res.Err)
	}
}

func TestOperationsRequireReady(t *testing.T) {
	d, err := New(testOptions(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m, ok := d.Model("items")
	if !ok {
		t.Fatalf("model items missing")
	}
	if _, res := m.Find(testCtx(t), "a"); res.OK || !errors.Is(res.Err, ErrNotReady) {
		t.Fatalf("find before open: code=%d err=%v", res.Code, res.Err)
	}

	d2 := openDatabase(t, testOptions(t))
	m2, _ := d2.Model("items")
	if res := d2.Close(testCtx(t)); !res.OK {
		t.Fatalf("close: %v", res.Err)
	}
	if _, res := m2.Find(testCtx(t), "a"); res.OK || !errors.Is(res.Err, ErrClosed) {
		t.Fatalf("find after close: code=%d err=%v", res.Code, res.Err)
	}
	if res := d2.Vacuum(testCtx(t)); res.OK || !errors.Is(res.Err, ErrClosed) {
		t.Fatalf("vacuum after close: code=%d err=%v", res.Code, res.Err)
	}
}

func TestMigrationFailureIsTerminal(t *testing.T) {
	opts := testOptions(t)
	execRaw(t, opts.Path, `CREATE VIEW items AS SELECT 1 AS id;`)

	d, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res := d.Open(testCtx(t))
	if res.OK {
		t.Fatalf("open over view name collision succeeded")
	}
	if got := d.State(); got != StateFailed {
		t.Fatalf("state after failed open: %v", got)
	}
	if res := d.Open(testCtx(t)); res.OK || !errors.Is(res.Err, ErrNotReady) {
		t.Fatalf("reopen after failure: code=%d err=%v", res.Code, res.Err)
	}
}

func TestIntegrityCheckReportsOK(t *testing.T) {
	d := openDatabase(t, testOptions(t))
	res := d.IntegrityCheck(testCtx(t))
	if !res.OK || res.Info != "ok" {
		t.Fatalf("integrity: code=%d info=%q err=%v", res.Code, res.Info, res.Err)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error for missing path")
	}
	if _, err := New(Options{Path: "items.db"}); err == nil {
		t.Fatalf("expected error for missing schema")
	}
	opts := testOptions(t)
	opts.BackupEvery = -time.Second
	if _, err := New(opts); err == nil {
		t.Fatalf("expected error for negative interval")
	}
}

func TestEngineErrorsReachCallbackWithLocationTag(t *testing.T) {
	var tags []string
	opts := testOptions(t)
	opts.OnError = func(tag string, err error) { tags = append(tags, tag) }
	d := openDatabase(t, opts)

	if _, err := d.db.ExecContext(testCtx(t), `DROP TABLE items`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	m, _ := d.Model("items")
	_, res := m.Find(testCtx(t), "a")
	if res.OK || res.Code != StatusError {
		t.Fatalf("find on dropped table: code=%d err=%v", res.Code, res.Err)
	}
	if len(tags) == 0 || !strings.HasPrefix(tags[0], "storage.select items") {
		t.Fatalf("callback tags: %v", tags)
	}
}

func TestModelsListedInDeclaredOrder(t *testing.T) {
	d := openDatabase(t, testOptions(t))
	models := d.Models()
	if len(models) != 1 || models[0].Name() != "items" {
		t.Fatalf("models: %v", models)
	}
	if _, ok := d.Model("nope"); ok {
		t.Fatalf("undeclared table resolved")
	}
}

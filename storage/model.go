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
	"fmt"

	"tablewarden/schema"
)

// Model is the bound per-table API. One Model exists per declared table for
// the lifetime of the Database; all engine work is delegated to the shared
// row access layer, keyed by the table's primary-key column where identity
// matters. Operations on key-less tables that need identity fail with
// ErrNoPrimaryKey before any engine call.
type Model struct {
	db    *Database
	tbl   schema.Table
	pk    string
	cols  map[string]*ColumnOps
	names []string
}

func newModel(db *Database, tbl schema.Table) *Model {
	m := &Model{
		db:    db,
		tbl:   tbl,
		cols:  make(map[string]*ColumnOps, len(tbl.Columns)),
		names: tbl.ColumnNames(),
	}
	if pk, ok := tbl.PrimaryKey(); ok {
		m.pk = pk.Name
	}
	for _, col := range tbl.Columns {
		m.cols[col.Name] = &ColumnOps{model: m, col: col}
	}
	return m
}

// Name returns the declared table name.
func (m *Model) Name() string { return m.tbl.Name }

// Table returns the declared table definition backing this model.
func (m *Model) Table() schema.Table { return m.tbl }

// ColumnNames returns the column names in declared order.
func (m *Model) ColumnNames() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// PrimaryKey reports the primary-key column name, false when the table is
// key-less.
func (m *Model) PrimaryKey() (string, bool) { return m.pk, m.pk != "" }

// Column returns the bound operations for one declared column.
func (m *Model) Column(name string) (*ColumnOps, bool) {
	ops, ok := m.cols[name]
	return ops, ok
}

// Find loads the instance keyed by the primary-key value. The Result carries
// 404 when no such row exists.
func (m *Model) Find(ctx context.Context, key any) (*Instance, Result) {
	if err := m.guardKey(key); err != nil {
		return nil, resFailure(err)
	}
	res := m.db.rows.selectOne(ctx, m.tbl.Name, m.pk, key)
	if !res.OK {
		return nil, res
	}
	return m.load(res.Row), res
}

// Delete removes the row keyed by the primary-key value.
func (m *Model) Delete(ctx context.Context, key any) Result {
	if err := m.guardKey(key); err != nil {
		return resFailure(err)
	}
	return m.db.rows.deleteOne(ctx, m.tbl.Name, m.pk, key)
}

// All loads every row of the table, unbounded.
func (m *Model) All(ctx context.Context) ([]*Instance, Result) {
	if err := m.db.gate(); err != nil {
		return nil, resFailure(err)
	}
	res := m.db.rows.selectRows(ctx, m.tbl.Name, "", nil, Wildcard, 0)
	if !res.OK {
		return nil, res
	}
	out := make([]*Instance, len(res.Rows))
	for i, r := range res.Rows {
		out[i] = m.load(r)
	}
	return out, res
}

// Count reports the number of rows in the table as the Result value.
func (m *Model) Count(ctx context.Context) Result {
	if err := m.db.gate(); err != nil {
		return resFailure(err)
	}
	return m.db.rows.countRows(ctx, m.tbl.Name)
}

// Create builds a new unsaved instance from values in declared column order.
// Trailing columns left unsupplied take their declared default, or nil. More
// values than declared columns is an arity error.
func (m *Model) Create(values ...any) (*Instance, error) {
	if len(values) > len(m.tbl.Columns) {
		return nil, fmt.Errorf("table %q: %w: %d values for %d columns",
			m.tbl.Name, ErrArityMismatch, len(values), len(m.tbl.Columns))
	}
	vals := make(map[string]any, len(m.tbl.Columns))
	for i, col := range m.tbl.Columns {
		switch {
		case i < len(values):
			vals[col.Name] = normalizeValue(values[i])
		case col.Default != nil:
			vals[col.Name] = col.Default
		default:
			vals[col.Name] = nil
		}
	}
	return &Instance{model: m, values: vals, original: map[string]any{}}, nil
}

// SetValue writes one column of the row keyed by the primary-key value.
func (m *Model) SetValue(ctx context.Context, column string, value, key any) Result {
	ops, ok := m.Column(column)
	if !ok {
		return resFailure(m.unknownColumn(column))
	}
	return ops.SetValue(ctx, key, value)
}

// load builds a loaded instance from an engine row, snapshotting the values
// it arrived with.
func (m *Model) load(row Row) *Instance {
	vals := make(map[string]any, len(m.names))
	for _, name := range m.names {
		vals[name] = row[name]
	}
	inst := &Instance{model: m, values: vals, loaded: true}
	inst.original = inst.snapshot()
	return inst
}

func (m *Model) guardKeyed() error {
	if err := m.db.gate(); err != nil {
		return err
	}
	if m.pk == "" {
		return fmt.Errorf("table %q: %w", m.tbl.Name, ErrNoPrimaryKey)
	}
	return nil
}

// guardKey additionally rejects a nil key value before any engine call; a
// NULL never matches an equality predicate, so letting it through would turn
// identity operations into silent no-ops.
func (m *Model) guardKey(key any) error {
	if err := m.guardKeyed(); err != nil {
		return err
	}
	if key == nil {
		return fmt.Errorf("table %q: %w", m.tbl.Name, ErrMissingKey)
	}
	return nil
}

func (m *Model) unknownColumn(name string) error {
	return fmt.Errorf("table %q: %w: %q", m.tbl.Name, ErrUnknownColumn, name)
}

// ColumnOps is the keyed collection entry binding one declared column to its
// owning model. All helpers are thin predicates over the row access layer.
type ColumnOps struct {
	model *Model
	col   schema.Column
}

// Name returns the declared column name.
func (c *ColumnOps) Name() string { return c.col.Name }

// Sensitive reports whether the column is flagged sensitive.
func (c *ColumnOps) Sensitive() bool { return c.col.Sensitive }

// SetValue writes this column on the row keyed by the primary-key value.
func (c *ColumnOps) SetValue(ctx context.Context, key, value any) Result {
	if err := c.model.guardKey(key); err != nil {
		return resFailure(err)
	}
	return c.model.db.rows.updateColumn(ctx, c.model.tbl.Name, c.col.Name, value, c.model.pk, key)
}

// Fetch returns every row where this column matches value under the given
// operator; the empty operator means equality.
func (c *ColumnOps) Fetch(ctx context.Context, value any, operator string) Result {
	if err := c.model.db.gate(); err != nil {
		return resFailure(err)
	}
	return c.model.db.rows.selectRows(ctx, c.model.tbl.Name, c.col.Name, value, operator, 0)
}

// Move relocates every row where this column matches value into the
// destination model's table.
func (c *ColumnOps) Move(ctx context.Context, dest *Model, value any, operator string) Result {
	if err := c.model.db.gate(); err != nil {
		return resFailure(err)
	}
	if dest == nil {
		return resFailure(fmt.Errorf("%w: no destination model", ErrUnknownTable))
	}
	return c.model.db.rows.moveRows(ctx, c.model.tbl.Name, dest.tbl.Name, c.col.Name, value, operator, 0)
}

// UpdateValues writes this column on every row matched by an equality
// predicate over another declared column.
func (c *ColumnOps) UpdateValues(ctx context.Context, newValue any, whereColumn string, whereValue any) Result {
	if err := c.model.db.gate(); err != nil {
		return resFailure(err)
	}
	if _, ok := c.model.tbl.Column(whereColumn); !ok {
		return resFailure(c.model.unknownColumn(whereColumn))
	}
	return c.model.db.rows.updateColumn(ctx, c.model.tbl.Name, c.col.Name, newValue, whereColumn, whereValue)
}

// Exists reports as the Result value whether any row holds value in this
// column.
func (c *ColumnOps) Exists(ctx context.Context, value any) Result {
	if err := c.model.db.gate(); err != nil {
		return resFailure(err)
	}
	return c.model.db.rows.valueExists(ctx, c.model.tbl.Name, c.col.Name, value)
}

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
)

// Instance is one in-memory row of a model. It carries the current values
// and an immutable snapshot of the values it was loaded or last saved with;
// Save compares the two and writes only the columns that differ. A fresh
// instance from Create has an empty snapshot, so every column counts as
// changed until the first successful save.
type Instance struct {
	model    *Model
	values   map[string]any
	original map[string]any
	loaded   bool
}

// Model returns the model this instance belongs to.
func (i *Instance) Model() *Model { return i.model }

// Get returns the current value of a column, nil when the column is not
// declared or holds no value.
func (i *Instance) Get(column string) any { return i.values[column] }

// Set replaces the current value of a declared column. The write happens on
// the next Save.
func (i *Instance) Set(column string, value any) error {
	if _, ok := i.model.tbl.Column(column); !ok {
		return i.model.unknownColumn(column)
	}
	i.values[column] = normalizeValue(value)
	return nil
}

// Key returns the current primary-key value, nil on a key-less table.
func (i *Instance) Key() any {
	if i.model.pk == "" {
		return nil
	}
	return i.values[i.model.pk]
}

// Save persists the instance. When no row exists for the primary-key value
// every column is inserted; otherwise only columns differing from the
// snapshot are updated, never the key itself. A save with nothing to write
// succeeds without touching the engine. On a key-less table only a fresh,
// never-persisted instance can be saved (as an insert); a loaded one has no
// addressable identity.
func (i *Instance) Save(ctx context.Context) Result {
	if err := i.model.db.gate(); err != nil {
		return resFailure(err)
	}
	m := i.model
	if m.pk == "" {
		if i.loaded {
			return resFailure(fmt.Errorf("table %q: %w", m.tbl.Name, ErrNoPrimaryKey))
		}
		return i.finishSave(i.insertAll(ctx))
	}

	if i.values[m.pk] == nil {
		return resFailure(fmt.Errorf("table %q: %w", m.tbl.Name, ErrMissingKey))
	}
	exists := m.db.rows.valueExists(ctx, m.tbl.Name, m.pk, i.values[m.pk])
	if !exists.OK {
		return exists
	}
	if present, _ := exists.Value.(bool); !present {
		return i.finishSave(i.insertAll(ctx))
	}
	columns, values := i.diff()
	if len(columns) == 0 {
		return resOK()
	}
	return i.finishSave(m.db.rows.updateRow(ctx, m.tbl.Name, columns, values, m.pk, i.values[m.pk]))
}

// Delete removes the row keyed by the instance's primary-key value.
func (i *Instance) Delete(ctx context.Context) Result {
	if err := i.model.guardKey(i.Key()); err != nil {
		return resFailure(err)
	}
	return i.model.db.rows.deleteOne(ctx, i.model.tbl.Name, i.model.pk, i.values[i.model.pk])
}

// Move relocates the row keyed by the instance's primary-key value into the
// destination model's table.
func (i *Instance) Move(ctx context.Context, dest *Model) Result {
	if err := i.model.guardKey(i.Key()); err != nil {
		return resFailure(err)
	}
	if dest == nil {
		return resFailure(fmt.Errorf("%w: no destination model", ErrUnknownTable))
	}
	return i.model.db.rows.moveRows(ctx, i.model.tbl.Name, dest.tbl.Name, i.model.pk, i.values[i.model.pk], "=", 1)
}

// Convert copies the instance into the destination model: shared columns
// carry their values over, destination-only columns take their defaults,
// source-only columns are dropped. The original row is deleted only after
// the destination row persisted; a failing destination save leaves the
// original untouched and returns no instance. A failing delete after a
// successful save returns the new instance together with the failure.
func (i *Instance) Convert(ctx context.Context, dest *Model) (*Instance, Result) {
	if err := i.model.guardKey(i.Key()); err != nil {
		return nil, resFailure(err)
	}
	if dest == nil {
		return nil, resFailure(fmt.Errorf("%w: no destination model", ErrUnknownTable))
	}
	src := i.ToObject(true)
	vals := make(map[string]any, len(dest.tbl.Columns))
	for _, col := range dest.tbl.Columns {
		switch v, ok := src[col.Name]; {
		case ok:
			vals[col.Name] = v
		case col.Default != nil:
			vals[col.Name] = col.Default
		default:
			vals[col.Name] = nil
		}
	}
	out := &Instance{model: dest, values: vals, original: map[string]any{}}
	if res := out.Save(ctx); !res.OK {
		return nil, res
	}
	if res := i.Delete(ctx); !res.OK {
		return out, res
	}
	return out, resOK()
}

// ToObject serializes the declared columns into a plain mapping. Columns
// flagged sensitive are omitted unless includeSensitive is set.
func (i *Instance) ToObject(includeSensitive bool) Row {
	out := make(Row, len(i.model.tbl.Columns))
	for _, col := range i.model.tbl.Columns {
		if col.Sensitive && !includeSensitive {
			continue
		}
		out[col.Name] = i.values[col.Name]
	}
	return out
}

func (i *Instance) insertAll(ctx context.Context) Result {
	values := make([]any, len(i.model.names))
	for n, name := range i.model.names {
		values[n] = i.values[name]
	}
	return i.model.db.rows.insertRow(ctx, i.model.tbl.Name, i.model.names, values)
}

// diff lists the non-key columns whose current value differs from the
// snapshot, in declared order.
func (i *Instance) diff() (columns []string, values []any) {
	for _, name := range i.model.names {
		if name == i.model.pk {
			continue
		}
		cur := i.values[name]
		base, ok := i.original[name]
		if !ok || cur != base {
			columns = append(columns, name)
			values = append(values, cur)
		}
	}
	return columns, values
}

func (i *Instance) finishSave(res Result) Result {
	if res.OK {
		i.original = i.snapshot()
		i.loaded = true
	}
	return res
}

func (i *Instance) snapshot() map[string]any {
	out := make(map[string]any, len(i.values))
	for k, v := range i.values {
		out[k] = v
	}
	return out
}

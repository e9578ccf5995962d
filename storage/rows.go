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
	"fmt"
	"strings"

	"tablewarden/schema"
)

// Row is one table row keyed by column name. Text columns carry string
// values, integer columns int64, absent values nil.
type Row map[string]any

// Wildcard is the operator that matches every row; column and value are
// ignored when it is used.
const Wildcard = "*"

// Predicate operators accepted by the row access layer. Anything else is
// rejected before reaching the engine; operators are interpolated into SQL
// and must never come from row data.
var operators = map[string]string{
	"=": "=", "==": "=", "!=": "!=", "<>": "<>",
	"<": "<", "<=": "<=", ">": ">", ">=": ">=",
	"LIKE": "LIKE",
}

// rowIO bundles the table/predicate CRUD primitives over the shared handle.
// It is schema-agnostic: callers are responsible for passing declared names;
// identifiers are still syntax-checked and quoted here as a second line.
type rowIO struct {
	db     *sql.DB
	report func(tag string, err error)
}

func (io *rowIO) fail(tag string, err error) Result {
	io.report(tag, err)
	return resFailure(err)
}

func (io *rowIO) insertRow(ctx context.Context, table string, columns []string, values []any) Result {
	if len(columns) != len(values) {
		return resFailure(fmt.Errorf("%w: %d values for %d columns", ErrArityMismatch, len(values), len(columns)))
	}
	if err := checkIdents(append([]string{table}, columns...)...); err != nil {
		return resFailure(err)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), joinIdents(columns), placeholders(len(values)))
	res, err := io.db.ExecContext(ctx, q, normalizeAll(values)...)
	if err != nil {
		return io.fail("storage.insert "+table, err)
	}
	n, _ := res.RowsAffected()
	return resChanges(n)
}

func (io *rowIO) selectRows(ctx context.Context, table, column string, value any, operator string, limit int) Result {
	where, param, err := whereClause(column, operator)
	if err != nil {
		return resFailure(err)
	}
	if err := checkIdents(table); err != nil {
		return resFailure(err)
	}
	q := "SELECT * FROM " + quoteIdent(table) + where
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	var args []any
	if param {
		args = append(args, normalizeValue(value))
	}
	rows, err := io.db.QueryContext(ctx, q, args...)
	if err != nil {
		return io.fail("storage.select "+table, err)
	}
	defer func() { _ = rows.Close() }()
	out, err := scanRows(rows)
	if err != nil {
		return io.fail("storage.select "+table, err)
	}
	return resRows(out)
}

func (io *rowIO) selectOne(ctx context.Context, table, column string, value any) Result {
	res := io.selectRows(ctx, table, column, value, "=", 1)
	if !res.OK {
		return res
	}
	if len(res.Rows) == 0 {
		return resNotFound(table)
	}
	return resRow(res.Rows[0])
}

func (io *rowIO) updateColumn(ctx context.Context, table, column string, newValue any, whereColumn string, whereValue any) Result {
	if err := checkIdents(table, column, whereColumn); err != nil {
		return resFailure(err)
	}
	q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
		quoteIdent(table), quoteIdent(column), quoteIdent(whereColumn))
	res, err := io.db.ExecContext(ctx, q, normalizeValue(newValue), normalizeValue(whereValue))
	if err != nil {
		return io.fail("storage.update "+table, err)
	}
	n, _ := res.RowsAffected()
	return resChanges(n)
}

// updateRow writes several columns of the row matched by the predicate in
// one statement; save uses it for the changed-column set.
func (io *rowIO) updateRow(ctx context.Context, table string, columns []string, values []any, whereColumn string, whereValue any) Result {
	if len(columns) == 0 || len(columns) != len(values) {
		return resFailure(fmt.Errorf("%w: %d values for %d columns", ErrArityMismatch, len(values), len(columns)))
	}
	if err := checkIdents(append([]string{table, whereColumn}, columns...)...); err != nil {
		return resFailure(err)
	}
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = quoteIdent(c) + " = ?"
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quoteIdent(table), strings.Join(sets, ", "), quoteIdent(whereColumn))
	args := append(normalizeAll(values), normalizeValue(whereValue))
	res, err := io.db.ExecContext(ctx, q, args...)
	if err != nil {
		return io.fail("storage.update "+table, err)
	}
	n, _ := res.RowsAffected()
	return resChanges(n)
}

func (io *rowIO) deleteRows(ctx context.Context, table, column string, value any, operator string, limit int) Result {
	where, param, err := whereClause(column, operator)
	if err != nil {
		return resFailure(err)
	}
	if err := checkIdents(table); err != nil {
		return resFailure(err)
	}
	qt := quoteIdent(table)
	var q string
	if limit > 0 {
		// Limited deletes go through rowid so they work on engine builds
		// without DELETE ... LIMIT support.
		q = fmt.Sprintf("DELETE FROM %s WHERE rowid IN (SELECT rowid FROM %s%s LIMIT %d)", qt, qt, where, limit)
	} else {
		q = "DELETE FROM " + qt + where
	}
	var args []any
	if param {
		args = append(args, normalizeValue(value))
	}
	res, err := io.db.ExecContext(ctx, q, args...)
	if err != nil {
		return io.fail("storage.delete "+table, err)
	}
	n, _ := res.RowsAffected()
	return resChanges(n)
}

func (io *rowIO) deleteOne(ctx context.Context, table, column string, value any) Result {
	res := io.deleteRows(ctx, table, column, value, "=", 1)
	if res.OK && res.Changes == 0 {
		return resNotFound(table)
	}
	return res
}

// moveRows relocates matching rows from one table into another inside a
// single transaction: the matched rowids and values are captured, inserted
// positionally into the destination, then deleted from the source. Any
// failure rolls the whole move back, so rows are never duplicated.
func (io *rowIO) moveRows(ctx context.Context, from, to, column string, value any, operator string, limit int) Result {
	where, param, err := whereClause(column, operator)
	if err != nil {
		return resFailure(err)
	}
	if err := checkIdents(from, to); err != nil {
		return resFailure(err)
	}
	tag := "storage.move " + from

	tx, err := io.db.BeginTx(ctx, nil)
	if err != nil {
		return io.fail(tag, err)
	}

	sel := fmt.Sprintf("SELECT rowid, * FROM %s%s", quoteIdent(from), where)
	if limit > 0 {
		sel += fmt.Sprintf(" LIMIT %d", limit)
	}
	var args []any
	if param {
		args = append(args, normalizeValue(value))
	}
	rows, err := tx.QueryContext(ctx, sel, args...)
	if err != nil {
		_ = tx.Rollback()
		return io.fail(tag, err)
	}
	var (
		rowids []any
		moved  [][]any
		width  int
	)
	cols, err := rows.Columns()
	if err == nil {
		width = len(cols) - 1
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err = rows.Scan(ptrs...); err != nil {
				break
			}
			rowids = append(rowids, vals[0])
			moved = append(moved, vals[1:])
		}
		if err == nil {
			err = rows.Err()
		}
	}
	_ = rows.Close()
	if err != nil {
		_ = tx.Rollback()
		return io.fail(tag, err)
	}
	if len(moved) == 0 {
		_ = tx.Rollback()
		return resChanges(0)
	}

	ins := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(to), placeholders(width))
	for _, vals := range moved {
		if _, err := tx.ExecContext(ctx, ins, vals...); err != nil {
			_ = tx.Rollback()
			return io.fail("storage.move "+to, err)
		}
	}
	del := fmt.Sprintf("DELETE FROM %s WHERE rowid IN (%s)", quoteIdent(from), placeholders(len(rowids)))
	if _, err := tx.ExecContext(ctx, del, rowids...); err != nil {
		_ = tx.Rollback()
		return io.fail(tag, err)
	}
	if err := tx.Commit(); err != nil {
		return io.fail(tag, err)
	}
	return resChanges(int64(len(moved)))
}

func (io *rowIO) valueExists(ctx context.Context, table, column string, value any) Result {
	if err := checkIdents(table, column); err != nil {
		return resFailure(err)
	}
	q := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ?)", quoteIdent(table), quoteIdent(column))
	var n int
	if err := io.db.QueryRowContext(ctx, q, normalizeValue(value)).Scan(&n); err != nil {
		return io.fail("storage.exists "+table, err)
	}
	return resValue(n != 0)
}

func (io *rowIO) countRows(ctx context.Context, table string) Result {
	if err := checkIdents(table); err != nil {
		return resFailure(err)
	}
	var n int64
	if err := io.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
		return io.fail("storage.count "+table, err)
	}
	return resValue(n)
}

// whereClause renders the predicate for a validated column and operator.
// The empty operator defaults to equality; Wildcard yields no predicate.
func whereClause(column, operator string) (clause string, parameterized bool, err error) {
	op := strings.ToUpper(strings.TrimSpace(operator))
	if op == "" {
		op = "="
	}
	if op == Wildcard {
		return "", false, nil
	}
	sqlOp, ok := operators[op]
	if !ok {
		return "", false, fmt.Errorf("%w: %q", ErrBadOperator, operator)
	}
	if err := checkIdents(column); err != nil {
		return "", false, err
	}
	return fmt.Sprintf(" WHERE %s %s ?", quoteIdent(column), sqlOp), true, nil
}

func checkIdents(names ...string) error {
	for _, n := range names {
		if !schema.ValidIdentifier(n) {
			return fmt.Errorf("%w: %q", schema.ErrBadIdentifier, n)
		}
	}
	return nil
}

func quoteIdent(name string) string { return `"` + name + `"` }

func joinIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// normalizeValue maps caller and driver values onto the canonical runtime
// representation: int64 for integers and booleans, string for text. Unknown
// types pass through for the driver to judge.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case []byte:
		return string(x)
	default:
		return v
	}
}

func normalizeAll(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = normalizeValue(v)
	}
	return out
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			r[c] = normalizeValue(vals[i])
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

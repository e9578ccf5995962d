/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package seed fills declared tables with generated rows. Values are picked
// per column from its declared type and a small set of name heuristics, so a
// column called "email" gets an address and a column called "size" gets a
// plausible number. Everything goes through the regular model operations;
// seeding exercises the same code paths an application would.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	applog "tablewarden/internal/log"
	"tablewarden/schema"
	"tablewarden/storage"
)

// Fill inserts count generated rows into one declared table. progress, when
// non-nil, is called once per stored row. Integer keys continue after the
// current row count so repeated runs do not collide; text keys are random.
// Returns the number of rows actually stored.
func Fill(ctx context.Context, db *storage.Database, table string, count int, progress func()) (int, error) {
	m, ok := db.Model(table)
	if !ok {
		return 0, fmt.Errorf("seed: %w: %s", storage.ErrUnknownTable, table)
	}
	tbl := m.Table()

	var nextKey int64
	if pk, keyed := tbl.PrimaryKey(); keyed && pk.Type == schema.TypeInteger {
		res := m.Count(ctx)
		if !res.OK {
			return 0, fmt.Errorf("seed %s: %w", table, res.Err)
		}
		if n, ok := res.Value.(int64); ok {
			nextKey = n
		}
	}

	stored := 0
	for i := 0; i < count; i++ {
		values := make([]any, 0, len(tbl.Columns))
		for _, col := range tbl.Columns {
			if col.PrimaryKey {
				if col.Type == schema.TypeInteger {
					nextKey++
					values = append(values, nextKey)
				} else {
					values = append(values, uuid.NewString())
				}
				continue
			}
			values = append(values, Value(col))
		}
		inst, err := m.Create(values...)
		if err != nil {
			return stored, fmt.Errorf("seed %s: %w", table, err)
		}
		if res := inst.Save(ctx); !res.OK {
			return stored, fmt.Errorf("seed %s row %d: %w", table, i+1, res.Err)
		}
		stored++
		if progress != nil {
			progress()
		}
	}
	return stored, nil
}

// FillAll seeds every declared table in declared order and returns the
// per-table row counts. The first failure stops the run; counts up to that
// point are still reported.
func FillAll(ctx context.Context, db *storage.Database, count int, progress func()) (map[string]int, error) {
	l := applog.WithComponent("seed")
	counts := make(map[string]int, db.Schema().Len())
	for _, name := range db.Schema().Names() {
		n, err := Fill(ctx, db, name, count, progress)
		counts[name] = n
		if err != nil {
			return counts, err
		}
		l.Debug("table seeded", slog.String("table", name), slog.Int("rows", n))
	}
	return counts, nil
}

// Value generates one fake value for a declared column. The column name
// steers the generator; the declared type bounds what comes out.
func Value(col schema.Column) any {
	name := strings.ToLower(col.Name)

	if col.Type == schema.TypeInteger {
		switch {
		case strings.HasPrefix(name, "is_") || strings.Contains(name, "active") || strings.Contains(name, "enabled"):
			return int64(gofakeit.Number(0, 1))
		case strings.Contains(name, "year"):
			return int64(gofakeit.Number(1990, 2026))
		case strings.Contains(name, "age"):
			return int64(gofakeit.Number(18, 90))
		case strings.Contains(name, "size") || strings.Contains(name, "bytes") || strings.Contains(name, "length"):
			return int64(gofakeit.Number(1, 1<<20))
		default:
			return int64(gofakeit.Number(1, 50000))
		}
	}

	switch {
	case strings.Contains(name, "email"):
		return gofakeit.Email()
	case strings.Contains(name, "phone"):
		return gofakeit.Phone()
	case strings.Contains(name, "url") || strings.Contains(name, "link"):
		return gofakeit.URL()
	case strings.Contains(name, "city"):
		return gofakeit.City()
	case strings.Contains(name, "country"):
		return gofakeit.Country()
	case strings.Contains(name, "token") || strings.Contains(name, "secret") || strings.Contains(name, "password"):
		return gofakeit.Password(true, true, true, false, false, 24)
	case strings.Contains(name, "name") || strings.Contains(name, "user") || strings.Contains(name, "author"):
		return gofakeit.Name()
	case strings.Contains(name, "date") || strings.Contains(name, "time") || strings.HasSuffix(name, "_at"):
		return gofakeit.DateRange(time.Now().AddDate(-1, 0, 0), time.Now()).UTC().Format(time.RFC3339)
	case strings.Contains(name, "title") || strings.Contains(name, "subject"):
		return gofakeit.Sentence(3)
	case strings.Contains(name, "description") || strings.Contains(name, "comment") || strings.Contains(name, "note") || strings.Contains(name, "body") || strings.Contains(name, "payload"):
		return gofakeit.Sentence(10)
	default:
		return gofakeit.Word()
	}
}

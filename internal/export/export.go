/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export writes table contents to files. Rows are read through the
// regular model operations, so sensitive columns stay filtered unless the
// caller opts in explicitly.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tablewarden/storage"
)

// Formats accepted by All.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Options controls what an export includes.
type Options struct {
	IncludeSensitive bool
	Pretty           bool // indent JSON output
}

// TableJSON writes all rows of one declared table as a JSON array to
// outPath and returns the number of exported rows. A missing .json
// extension is appended.
func TableJSON(ctx context.Context, db *storage.Database, table, outPath string, opt Options) (int, error) {
	objects, err := tableObjects(ctx, db, table, opt)
	if err != nil {
		return 0, err
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".json") {
		outPath += ".json"
	}

	var data []byte
	if opt.Pretty {
		data, err = json.MarshalIndent(objects, "", "  ")
	} else {
		data, err = json.Marshal(objects)
	}
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", table, err)
	}
	data = append(data, '\n')
	if err := writeOut(outPath, data); err != nil {
		return 0, err
	}
	return len(objects), nil
}

// TableCSV writes all rows of one declared table as CSV to outPath, header
// row first, columns in declared order. Returns the number of exported
// data rows. A missing .csv extension is appended.
func TableCSV(ctx context.Context, db *storage.Database, table, outPath string, opt Options) (int, error) {
	m, ok := db.Model(table)
	if !ok {
		return 0, fmt.Errorf("export: %w: %s", storage.ErrUnknownTable, table)
	}
	rows, res := m.All(ctx)
	if !res.OK {
		return 0, fmt.Errorf("export %s: %w", table, res.Err)
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".csv") {
		outPath += ".csv"
	}

	var header []string
	for _, col := range m.Table().Columns {
		if col.Sensitive && !opt.IncludeSensitive {
			continue
		}
		header = append(header, col.Name)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", outPath, err)
	}

	w := csv.NewWriter(f)
	werr := w.Write(header)
	for _, inst := range rows {
		if werr != nil {
			break
		}
		record := make([]string, len(header))
		for i, name := range header {
			record[i] = fieldString(inst.Get(name))
		}
		werr = w.Write(record)
	}
	if werr == nil {
		w.Flush()
		werr = w.Error()
	}
	if cerr := f.Close(); cerr != nil {
		werr = errors.Join(werr, cerr)
	}
	if werr != nil {
		return 0, fmt.Errorf("write %s: %w", outPath, werr)
	}
	return len(rows), nil
}

// All exports every declared table into dir, one file per table named after
// it, and returns the per-table row counts. format is FormatJSON or
// FormatCSV.
func All(ctx context.Context, db *storage.Database, dir, format string, opt Options) (map[string]int, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	counts := make(map[string]int, db.Schema().Len())
	for _, name := range db.Schema().Names() {
		var (
			n   int
			err error
		)
		switch format {
		case FormatCSV:
			n, err = TableCSV(ctx, db, name, filepath.Join(dir, name+".csv"), opt)
		case FormatJSON:
			n, err = TableJSON(ctx, db, name, filepath.Join(dir, name+".json"), opt)
		default:
			return counts, fmt.Errorf("export: unknown format %q", format)
		}
		if err != nil {
			return counts, err
		}
		counts[name] = n
	}
	return counts, nil
}

func tableObjects(ctx context.Context, db *storage.Database, table string, opt Options) ([]map[string]any, error) {
	m, ok := db.Model(table)
	if !ok {
		return nil, fmt.Errorf("export: %w: %s", storage.ErrUnknownTable, table)
	}
	rows, res := m.All(ctx)
	if !res.OK {
		return nil, fmt.Errorf("export %s: %w", table, res.Err)
	}
	objects := make([]map[string]any, len(rows))
	for i, inst := range rows {
		objects[i] = inst.ToObject(opt.IncludeSensitive)
	}
	return objects, nil
}

func writeOut(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func fieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

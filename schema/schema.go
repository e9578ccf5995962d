/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package schema holds the declarative description of tables and columns
// that the storage layer reconciles physical storage against. A Schema is
// validated once at construction and immutable afterwards; declarations can
// be built in code or loaded from a JSON/YAML document (see Load).
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Type is the declared column type. The storage layer maps it onto the
// engine's affinity system.
type Type string

const (
	TypeText    Type = "text"
	TypeInteger Type = "integer"
)

// Validation failures wrap one of these sentinels.
var (
	ErrBadIdentifier   = errors.New("invalid identifier")
	ErrReservedName    = errors.New("reserved table name")
	ErrNoColumns       = errors.New("table declares no columns")
	ErrDuplicateTable  = errors.New("duplicate table name")
	ErrDuplicateColumn = errors.New("duplicate column name")
	ErrMultiplePrimary = errors.New("more than one primary key column")
	ErrPrimaryDefault  = errors.New("primary key column cannot declare a default")
	ErrBadDefault      = errors.New("default value does not match column type")
	ErrBadType         = errors.New("unknown column type")
	ErrRenameTarget    = errors.New("previous name collides with a declared column")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is usable as a table or column name.
func ValidIdentifier(s string) bool { return identRe.MatchString(s) }

// Column describes one declared column.
//
// PreviousName drives rename handling during migration: when the physical
// table carries a column under PreviousName and none under Name, the
// migration renames it instead of adding a fresh column.
type Column struct {
	Name         string
	Type         Type
	PrimaryKey   bool
	Sensitive    bool
	Default      any
	PreviousName string
}

// Table is an ordered set of columns under a table name. Column order is
// significant; it defines the declared layout the storage layer converges
// physical tables toward.
type Table struct {
	Name    string
	Columns []Column
}

// Column returns the declared column with the given name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKey returns the table's primary key column, if one is declared.
func (t Table) PrimaryKey() (Column, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the declared column names in declared order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Schema is a validated, immutable collection of table declarations.
type Schema struct {
	tables []Table
	index  map[string]int
}

// New validates the given declarations and builds a Schema. Tables keep
// their argument order; the storage layer migrates them in that order.
func New(tables ...Table) (*Schema, error) {
	s := &Schema{
		tables: make([]Table, 0, len(tables)),
		index:  make(map[string]int, len(tables)),
	}
	for _, t := range tables {
		t = cloneTable(t)
		if err := validateTable(t); err != nil {
			return nil, err
		}
		if _, dup := s.index[t.Name]; dup {
			return nil, fmt.Errorf("table %q: %w", t.Name, ErrDuplicateTable)
		}
		for i, c := range t.Columns {
			norm, err := normalizeDefault(c)
			if err != nil {
				return nil, fmt.Errorf("table %q column %q: %w", t.Name, c.Name, err)
			}
			t.Columns[i].Default = norm
		}
		s.index[t.Name] = len(s.tables)
		s.tables = append(s.tables, t)
	}
	return s, nil
}

// MustNew is New for declarations known good at compile time; it panics on
// validation failure.
func MustNew(tables ...Table) *Schema {
	s, err := New(tables...)
	if err != nil {
		panic(err)
	}
	return s
}

// Tables returns a copy of the declarations in declared order.
func (s *Schema) Tables() []Table {
	out := make([]Table, len(s.tables))
	for i, t := range s.tables {
		out[i] = cloneTable(t)
	}
	return out
}

// Table returns the declaration with the given name.
func (s *Schema) Table(name string) (Table, bool) {
	i, ok := s.index[name]
	if !ok {
		return Table{}, false
	}
	return cloneTable(s.tables[i]), true
}

// Names returns the declared table names in declared order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}
	return names
}

// Len reports the number of declared tables.
func (s *Schema) Len() int { return len(s.tables) }

func cloneTable(t Table) Table {
	cols := make([]Column, len(t.Columns))
	copy(cols, t.Columns)
	t.Columns = cols
	return t
}

func validateTable(t Table) error {
	if !identRe.MatchString(t.Name) {
		return fmt.Errorf("table %q: %w", t.Name, ErrBadIdentifier)
	}
	if strings.HasPrefix(strings.ToLower(t.Name), "sqlite_") {
		return fmt.Errorf("table %q: %w", t.Name, ErrReservedName)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %q: %w", t.Name, ErrNoColumns)
	}
	seen := make(map[string]bool, len(t.Columns))
	pkeys := 0
	for _, c := range t.Columns {
		if !identRe.MatchString(c.Name) {
			return fmt.Errorf("table %q column %q: %w", t.Name, c.Name, ErrBadIdentifier)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %q column %q: %w", t.Name, c.Name, ErrDuplicateColumn)
		}
		seen[c.Name] = true
		switch strings.ToLower(c.Name) {
		case "rowid", "oid", "_rowid_":
			return fmt.Errorf("table %q column %q: %w", t.Name, c.Name, ErrReservedName)
		}
		if c.Type != TypeText && c.Type != TypeInteger {
			return fmt.Errorf("table %q column %q type %q: %w", t.Name, c.Name, c.Type, ErrBadType)
		}
		if c.PrimaryKey {
			pkeys++
			if c.Default != nil {
				return fmt.Errorf("table %q column %q: %w", t.Name, c.Name, ErrPrimaryDefault)
			}
		}
		if c.PreviousName != "" && !identRe.MatchString(c.PreviousName) {
			return fmt.Errorf("table %q column %q previous name %q: %w", t.Name, c.Name, c.PreviousName, ErrBadIdentifier)
		}
	}
	if pkeys > 1 {
		return fmt.Errorf("table %q: %w", t.Name, ErrMultiplePrimary)
	}
	// A previous name pointing at another declared column would make the
	// rename fight the declaration it belongs to.
	for _, c := range t.Columns {
		if c.PreviousName != "" && seen[c.PreviousName] {
			return fmt.Errorf("table %q column %q previous name %q: %w", t.Name, c.Name, c.PreviousName, ErrRenameTarget)
		}
	}
	return nil
}

// normalizeDefault coerces a declared default into the canonical runtime
// representation (string for text, int64 for integer). JSON decoding hands
// numbers over as float64; integral floats are accepted.
func normalizeDefault(c Column) (any, error) {
	if c.Default == nil {
		return nil, nil
	}
	switch c.Type {
	case TypeText:
		if s, ok := c.Default.(string); ok {
			return s, nil
		}
	case TypeInteger:
		switch v := c.Default.(type) {
		case int:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint:
			return int64(v), nil
		case uint8:
			return int64(v), nil
		case uint16:
			return int64(v), nil
		case uint32:
			return int64(v), nil
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
		}
	}
	return nil, ErrBadDefault
}

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Format selects the document encoding for Parse.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

//go:embed tableschema.json
var documentSchema []byte

// documentRoot mirrors the declaration document shape.
type documentRoot struct {
	Tables []struct {
		Name    string `json:"name"`
		Columns []struct {
			Name         string `json:"name"`
			Type         string `json:"type"`
			PrimaryKey   bool   `json:"primary_key"`
			Sensitive    bool   `json:"sensitive"`
			Default      any    `json:"default"`
			PreviousName string `json:"previous_name"`
		} `json:"columns"`
	} `json:"tables"`
}

// Load reads a table declaration document from disk. The encoding is picked
// by file extension: .yaml/.yml parse as YAML, everything else as JSON.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read declaration %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return Parse(data, FormatYAML)
	default:
		return Parse(data, FormatJSON)
	}
}

// Parse decodes and validates a table declaration document. YAML documents
// are converted to JSON first so both encodings run through the same
// embedded JSON Schema before the declarations are built.
func Parse(data []byte, format Format) (*Schema, error) {
	jsonBytes := data
	if format == FormatYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml declaration: %w", err)
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert yaml declaration: %w", err)
		}
		jsonBytes = b
	}

	if err := validateDocument(jsonBytes); err != nil {
		return nil, err
	}

	var doc documentRoot
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("decode declaration: %w", err)
	}

	tables := make([]Table, 0, len(doc.Tables))
	for _, td := range doc.Tables {
		t := Table{Name: td.Name, Columns: make([]Column, 0, len(td.Columns))}
		for _, cd := range td.Columns {
			t.Columns = append(t.Columns, Column{
				Name:         cd.Name,
				Type:         Type(cd.Type),
				PrimaryKey:   cd.PrimaryKey,
				Sensitive:    cd.Sensitive,
				Default:      cd.Default,
				PreviousName: cd.PreviousName,
			})
		}
		tables = append(tables, t)
	}
	return New(tables...)
}

func validateDocument(data []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(documentSchema)
	docLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("validate declaration: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("declaration does not conform to schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}

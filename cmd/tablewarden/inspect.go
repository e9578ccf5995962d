/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tablewarden/schema"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Reconcile the storage file against the declaration document",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStorage(db)

		fmt.Printf("Storage ready: %s (%d tables)\n", db.Path(), db.Schema().Len())
		for _, m := range db.Models() {
			key := ""
			if pk, ok := m.PrimaryKey(); ok {
				key = ", key " + pk
			}
			fmt.Printf("    %s: %d columns%s\n", m.Name(), len(m.ColumnNames()), key)
		}
		return nil
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the reconciled tables with columns and row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStorage(db)

		for n, m := range db.Models() {
			res := m.Count(cmd.Context())
			if !res.OK {
				return fmt.Errorf("count %s: %w", m.Name(), res.Err)
			}
			if n > 0 {
				fmt.Println()
			}
			key := ""
			if pk, ok := m.PrimaryKey(); ok {
				key = ", key " + pk
			}
			fmt.Printf("%s (%d rows%s)\n", m.Name(), res.Value, key)
			for _, col := range m.Table().Columns {
				fmt.Printf("    %s\n", columnLine(col))
			}
		}
		return nil
	},
}

func columnLine(c schema.Column) string {
	line := fmt.Sprintf("%-20s %-8s", c.Name, c.Type)
	var marks []string
	if c.PrimaryKey {
		marks = append(marks, "primary key")
	}
	if c.Sensitive {
		marks = append(marks, "sensitive")
	}
	if len(marks) > 0 {
		line += "  " + strings.Join(marks, ", ")
	}
	return strings.TrimRight(line, " ")
}

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Run the engine integrity check",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStorage(db)

		res := db.IntegrityCheck(cmd.Context())
		if !res.OK {
			fmt.Println(res.Info)
			return fmt.Errorf("integrity check: %w", res.Err)
		}
		fmt.Println("integrity ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(integrityCmd)
}

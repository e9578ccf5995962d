/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"tablewarden/internal/export"
)

var (
	exportDir       string
	exportFormat    string
	exportSensitive bool
	exportPretty    bool
)

var exportCmd = &cobra.Command{
	Use:   "export [table...]",
	Short: "Export table contents as JSON or CSV",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStorage(db)

		opt := export.Options{IncludeSensitive: exportSensitive, Pretty: exportPretty}

		if len(args) > 0 {
			total := 0
			for _, table := range args {
				out := filepath.Join(exportDir, table)
				var n int
				switch exportFormat {
				case export.FormatCSV:
					n, err = export.TableCSV(cmd.Context(), db, table, out+".csv", opt)
				case export.FormatJSON:
					n, err = export.TableJSON(cmd.Context(), db, table, out+".json", opt)
				default:
					return fmt.Errorf("unknown export format %q", exportFormat)
				}
				if err != nil {
					return err
				}
				total += n
			}
			fmt.Printf("Exported %d rows across %d tables to %s\n", total, len(args), exportDir)
			return nil
		}

		counts, err := export.All(cmd.Context(), db, exportDir, exportFormat, opt)
		if err != nil {
			return err
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		fmt.Printf("Exported %d rows across %d tables to %s\n", total, len(counts), exportDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportDir, "out", "exports", "Output directory")
	exportCmd.Flags().StringVar(&exportFormat, "format", export.FormatJSON, "Output format: json or csv")
	exportCmd.Flags().BoolVar(&exportSensitive, "sensitive", false, "Include columns declared sensitive")
	exportCmd.Flags().BoolVar(&exportPretty, "pretty", false, "Indent JSON output")
}

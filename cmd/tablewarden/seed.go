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
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"

	"tablewarden/internal/seed"
)

var seedRows int

var seedCmd = &cobra.Command{
	Use:   "seed [table...]",
	Short: "Fill declared tables with generated rows",
	Long: `Seed inserts generated rows through the regular model operations.
With table arguments only those tables are filled; without any, every
declared table gets the requested number of rows.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStorage(db)

		tables := len(args)
		if tables == 0 {
			tables = db.Schema().Len()
		}
		total := seedRows * tables

		uiprogress.Start()
		bar := uiprogress.AddBar(total).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(b *uiprogress.Bar) string {
			return "Seeding: "
		})

		start := time.Now()
		tick := func() { bar.Incr() }
		var serr error
		if len(args) > 0 {
			for _, table := range args {
				if _, serr = seed.Fill(cmd.Context(), db, table, seedRows, tick); serr != nil {
					break
				}
			}
		} else {
			_, serr = seed.FillAll(cmd.Context(), db, seedRows, tick)
		}
		uiprogress.Stop()
		if serr != nil {
			return serr
		}

		fmt.Printf("Seeded %d rows in %s\n", total, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVar(&seedRows, "rows", 100, "Number of rows to generate per table")
}

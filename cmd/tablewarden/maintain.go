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

	"github.com/spf13/cobra"

	"tablewarden/storage"
)

var backupCmd = &cobra.Command{
	Use:   "backup [dest]",
	Short: "Write a hot backup of the storage file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStorage(db)

		dest := ""
		if len(args) == 1 {
			dest = args[0]
		}
		res := db.Backup(cmd.Context(), dest)
		if !res.OK {
			return fmt.Errorf("backup: %w", res.Err)
		}
		if res.Code == storage.StatusNoBackup {
			fmt.Printf("First backup written to %s\n", res.Info)
		} else {
			fmt.Printf("Backup written to %s\n", res.Info)
		}
		return nil
	},
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Compact the storage file",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStorage(db)

		if res := db.Vacuum(cmd.Context()); !res.OK {
			return fmt.Errorf("vacuum: %w", res.Err)
		}
		fmt.Println("Storage compacted.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(vacuumCmd)
}

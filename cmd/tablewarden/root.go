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
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tablewarden/internal/config"
	applog "tablewarden/internal/log"
	"tablewarden/internal/version"
	"tablewarden/schema"
	"tablewarden/storage"
)

var (
	cfgFile    string
	dbFile     string
	schemaFile string

	// activeDB is whatever storage a command currently holds open; the crash
	// handler uses it for the emergency backup.
	activeDB *storage.Database
)

var rootCmd = &cobra.Command{
	Use:   "tablewarden",
	Short: "Schema-driven SQLite storage keeper",
	Long: `TableWarden reconciles a SQLite file against a declared table layout
and keeps it maintained: migration on open, scheduled backups and
vacuum runs, plus seeding, exports and integrity checks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applog.Init(applog.Options{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			AddSource: cfg.Logging.Source,
			File:      cfg.Logging.File,
		})
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the per-user config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFile, "db", "", "storage file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&schemaFile, "schema", "", "table declaration document (overrides config)")
	rootCmd.AddCommand(versionCmd)
}

// loadConfig returns the effective config: defaults, then the config file,
// then environment overrides, then command-line flags.
func loadConfig() (config.AppConfig, error) {
	var (
		cfg config.AppConfig
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if dbFile != "" {
		cfg.Storage.Path = dbFile
	}
	if schemaFile != "" {
		cfg.Storage.SchemaPath = schemaFile
	}
	return cfg, nil
}

// openStorage loads the declaration document and opens the storage. Rename
// conflicts skipped during migration are reported as a warning; the storage
// still comes up.
func openStorage(ctx context.Context) (*storage.Database, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := schema.Load(cfg.Storage.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("load declaration: %w", err)
	}
	db, err := storage.New(cfg.ToStorageOptions(s))
	if err != nil {
		return nil, err
	}
	res := db.Open(ctx)
	switch {
	case res.OK:
	case res.Code == storage.StatusConflict:
		fmt.Printf("Warning: %s\n", res.Info)
	default:
		return nil, fmt.Errorf("open storage: %w", res.Err)
	}
	activeDB = db
	return db, nil
}

func closeStorage(db *storage.Database) {
	if db != nil && db.State() == storage.StateReady {
		if res := db.Close(context.Background()); !res.OK {
			applog.WithComponent("cli").Error("close failed", slog.Any("err", res.Err))
		}
	}
	activeDB = nil
}

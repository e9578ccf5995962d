/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tablewarden/schema"
)

const sampleYAML = `config_version: 2
storage:
  path: /data/app.db
  schema_path: /data/schema.json
  reorder_columns: true
maintenance:
  backup_enabled: true
  backup_every_min: 5
  compress_backups: true
logging:
  level: DEBUG
  format: json
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvStoragePath, EnvSchemaPath, EnvDeleteUnusedTables, EnvDeleteUnusedColumns,
		EnvReorderColumns, EnvBackupPath, EnvBackupEnabled, EnvBackupEveryMin,
		EnvVacuumEnabled, EnvVacuumEveryMin, EnvCompressBackups,
		EnvLogLevel, EnvLogFormat, EnvLogSource, EnvLogFile,
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.ConfigVersion != 1 {
		t.Fatalf("config_version: %d", cfg.ConfigVersion)
	}
	if cfg.Storage.Path != "tablewarden.db" || cfg.Storage.SchemaPath != "schema.yaml" {
		t.Fatalf("storage defaults: %+v", cfg.Storage)
	}
	if cfg.Maintenance.BackupEnabled || cfg.Maintenance.BackupEveryMin != 15 {
		t.Fatalf("maintenance defaults: %+v", cfg.Maintenance)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Fatalf("logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ConfigVersion != 2 {
		t.Fatalf("config_version: %d", cfg.ConfigVersion)
	}
	if cfg.Storage.Path != "/data/app.db" || !cfg.Storage.ReorderColumns {
		t.Fatalf("storage: %+v", cfg.Storage)
	}
	if !cfg.Maintenance.BackupEnabled || cfg.Maintenance.BackupEveryMin != 5 || !cfg.Maintenance.CompressBackups {
		t.Fatalf("maintenance: %+v", cfg.Maintenance)
	}
	// file value untouched keeps the default
	if cfg.Maintenance.VacuumEveryMin != 360 {
		t.Fatalf("vacuum interval: %d", cfg.Maintenance.VacuumEveryMin)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
}

func TestLoadFileMissingYieldsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Path != Defaults().Storage.Path {
		t.Fatalf("missing file changed defaults: %+v", cfg.Storage)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(EnvStoragePath, "/env/override.db")
	t.Setenv(EnvBackupEveryMin, "42")
	t.Setenv(EnvReorderColumns, "off")
	t.Setenv(EnvVacuumEnabled, "yes")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Path != "/env/override.db" {
		t.Fatalf("path override: %q", cfg.Storage.Path)
	}
	if cfg.Maintenance.BackupEveryMin != 42 {
		t.Fatalf("interval override: %d", cfg.Maintenance.BackupEveryMin)
	}
	if cfg.Storage.ReorderColumns {
		t.Fatalf("bool override to off ignored")
	}
	if !cfg.Maintenance.VacuumEnabled {
		t.Fatalf("bool override to yes ignored")
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := Defaults()
	cfg.Storage.Path = "/var/lib/tw/items.db"
	cfg.Maintenance.BackupEnabled = true
	cfg.Maintenance.BackupEveryMin = 7

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveFile(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Storage.Path != cfg.Storage.Path ||
		loaded.Maintenance.BackupEnabled != cfg.Maintenance.BackupEnabled ||
		loaded.Maintenance.BackupEveryMin != cfg.Maintenance.BackupEveryMin {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestConfigPathEndsWithConfigYAML(t *testing.T) {
	p, err := ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if !strings.HasSuffix(p, "config.yaml") {
		t.Fatalf("path: %q", p)
	}
}

func TestEffectiveIntervalsFallBack(t *testing.T) {
	m := MaintenanceConfig{}
	if got := m.EffectiveBackupEvery(); got != 15*time.Minute {
		t.Fatalf("backup fallback: %v", got)
	}
	m = MaintenanceConfig{BackupEveryMin: 3, VacuumEveryMin: 9}
	if got := m.EffectiveBackupEvery(); got != 3*time.Minute {
		t.Fatalf("backup: %v", got)
	}
	if got := m.EffectiveVacuumEvery(); got != 9*time.Minute {
		t.Fatalf("vacuum: %v", got)
	}
}

func TestToStorageOptions(t *testing.T) {
	clearEnv(t)
	s, err := schema.Parse([]byte(`{"tables":[{"name":"items","columns":[{"name":"id","type":"text","primary_key":true}]}]}`), schema.FormatJSON)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	cfg := Defaults()
	cfg.Storage.Path = "/data/items.db"
	cfg.Storage.ReorderColumns = true
	cfg.Maintenance.BackupEnabled = true
	cfg.Maintenance.BackupEveryMin = 2
	cfg.Maintenance.CompressBackups = true

	opts := cfg.ToStorageOptions(s)
	if opts.Path != "/data/items.db" || opts.Schema != s {
		t.Fatalf("options: %+v", opts)
	}
	if !opts.ReorderColumns || !opts.BackupEnabled || !opts.CompressBackups {
		t.Fatalf("flags: %+v", opts)
	}
	if opts.BackupEvery != 2*time.Minute || opts.VacuumEvery != 360*time.Minute {
		t.Fatalf("intervals: backup=%v vacuum=%v", opts.BackupEvery, opts.VacuumEvery)
	}
}

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tablewarden/schema"
	"tablewarden/storage"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type StorageConfig struct {
	Path                string `yaml:"path"`
	SchemaPath          string `yaml:"schema_path"`
	DeleteUnusedTables  bool   `yaml:"delete_unused_tables"`
	DeleteUnusedColumns bool   `yaml:"delete_unused_columns"`
	ReorderColumns      bool   `yaml:"reorder_columns"`
}

type MaintenanceConfig struct {
	BackupPath      string `yaml:"backup_path"`
	BackupEnabled   bool   `yaml:"backup_enabled"`
	BackupEveryMin  int    `yaml:"backup_every_min"`
	VacuumEnabled   bool   `yaml:"vacuum_enabled"`
	VacuumEveryMin  int    `yaml:"vacuum_every_min"`
	CompressBackups bool   `yaml:"compress_backups"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int               `yaml:"config_version"`
	Storage       StorageConfig     `yaml:"storage"`
	Maintenance   MaintenanceConfig `yaml:"maintenance"`
	Logging       LoggingConfig     `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Storage:       StorageConfig{Path: "tablewarden.db", SchemaPath: "schema.yaml"},
		Maintenance:   MaintenanceConfig{BackupEveryMin: 15, VacuumEveryMin: 360},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvStoragePath         = "TW_STORAGE_PATH"
	EnvSchemaPath          = "TW_SCHEMA_PATH"
	EnvDeleteUnusedTables  = "TW_DELETE_UNUSED_TABLES"
	EnvDeleteUnusedColumns = "TW_DELETE_UNUSED_COLUMNS"
	EnvReorderColumns      = "TW_REORDER_COLUMNS"
	EnvBackupPath          = "TW_BACKUP_PATH"
	EnvBackupEnabled       = "TW_BACKUP_ENABLED"
	EnvBackupEveryMin      = "TW_BACKUP_EVERY_MIN"
	EnvVacuumEnabled       = "TW_VACUUM_ENABLED"
	EnvVacuumEveryMin      = "TW_VACUUM_EVERY_MIN"
	EnvCompressBackups     = "TW_COMPRESS_BACKUPS"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "TW_LOG_LEVEL"
	EnvLogFormat = "TW_LOG_FORMAT"
	EnvLogSource = "TW_LOG_SOURCE"
	EnvLogFile   = "TW_LOG_FILE"
)

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "TableWarden")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "TableWarden")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "tablewarden")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), err
	}
	return LoadFile(path)
}

// LoadFile reads one explicit config file over the defaults; a missing file
// just yields the defaults. Environment overrides win over both.
func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML to the per-user path.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(cfg, path)
}

// SaveFile writes the config YAML to an explicit path.
func SaveFile(cfg AppConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if strings.TrimSpace(src.Storage.Path) != "" {
		dst.Storage.Path = strings.TrimSpace(src.Storage.Path)
	}
	if strings.TrimSpace(src.Storage.SchemaPath) != "" {
		dst.Storage.SchemaPath = strings.TrimSpace(src.Storage.SchemaPath)
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.Storage.DeleteUnusedTables = src.Storage.DeleteUnusedTables
	dst.Storage.DeleteUnusedColumns = src.Storage.DeleteUnusedColumns
	dst.Storage.ReorderColumns = src.Storage.ReorderColumns
	if strings.TrimSpace(src.Maintenance.BackupPath) != "" {
		dst.Maintenance.BackupPath = strings.TrimSpace(src.Maintenance.BackupPath)
	}
	dst.Maintenance.BackupEnabled = src.Maintenance.BackupEnabled
	dst.Maintenance.VacuumEnabled = src.Maintenance.VacuumEnabled
	dst.Maintenance.CompressBackups = src.Maintenance.CompressBackups
	if src.Maintenance.BackupEveryMin != 0 {
		dst.Maintenance.BackupEveryMin = src.Maintenance.BackupEveryMin
	}
	if src.Maintenance.VacuumEveryMin != 0 {
		dst.Maintenance.VacuumEveryMin = src.Maintenance.VacuumEveryMin
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvStoragePath)); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSchemaPath)); v != "" {
		cfg.Storage.SchemaPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDeleteUnusedTables)); v != "" {
		cfg.Storage.DeleteUnusedTables = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvDeleteUnusedColumns)); v != "" {
		cfg.Storage.DeleteUnusedColumns = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvReorderColumns)); v != "" {
		cfg.Storage.ReorderColumns = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackupPath)); v != "" {
		cfg.Maintenance.BackupPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackupEnabled)); v != "" {
		cfg.Maintenance.BackupEnabled = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackupEveryMin)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Maintenance.BackupEveryMin = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvVacuumEnabled)); v != "" {
		cfg.Maintenance.VacuumEnabled = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvVacuumEveryMin)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Maintenance.VacuumEveryMin = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvCompressBackups)); v != "" {
		cfg.Maintenance.CompressBackups = envBool(v)
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

// EffectiveBackupEvery returns the backup interval, falling back to the
// default on non-positive values.
func (m MaintenanceConfig) EffectiveBackupEvery() time.Duration {
	if m.BackupEveryMin <= 0 {
		return time.Duration(Defaults().Maintenance.BackupEveryMin) * time.Minute
	}
	return time.Duration(m.BackupEveryMin) * time.Minute
}

// EffectiveVacuumEvery returns the vacuum interval, falling back to the
// default on non-positive values.
func (m MaintenanceConfig) EffectiveVacuumEvery() time.Duration {
	if m.VacuumEveryMin <= 0 {
		return time.Duration(Defaults().Maintenance.VacuumEveryMin) * time.Minute
	}
	return time.Duration(m.VacuumEveryMin) * time.Minute
}

// ToStorageOptions maps the effective config onto storage options for a
// schema the caller already loaded.
func (c AppConfig) ToStorageOptions(s *schema.Schema) storage.Options {
	return storage.Options{
		Path:                c.Storage.Path,
		Schema:              s,
		DeleteUnusedTables:  c.Storage.DeleteUnusedTables,
		DeleteUnusedColumns: c.Storage.DeleteUnusedColumns,
		ReorderColumns:      c.Storage.ReorderColumns,
		BackupPath:          c.Maintenance.BackupPath,
		BackupEnabled:       c.Maintenance.BackupEnabled,
		BackupEvery:         c.Maintenance.EffectiveBackupEvery(),
		VacuumEnabled:       c.Maintenance.VacuumEnabled,
		VacuumEvery:         c.Maintenance.EffectiveVacuumEvery(),
		CompressBackups:     c.Maintenance.CompressBackups,
	}
}

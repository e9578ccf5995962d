/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tablewarden/schema"
)

// Default maintenance intervals applied when an operation is enabled
// without an explicit interval.
const (
	DefaultBackupEvery = 15 * time.Minute
	DefaultVacuumEvery = 6 * time.Hour
)

// Options configures a Database. Path and Schema are required; everything
// else has a working default. The zero value of the maintenance switches
// leaves backup and vacuum scheduling off, one-shot calls stay available.
type Options struct {
	// Path is the storage file location. Parent directories are created on
	// Open.
	Path string

	// Schema declares the tables the storage file is reconciled against.
	Schema *schema.Schema

	// OnError receives engine failures and non-fatal migration conflicts
	// together with a location tag such as "storage.save items". When nil,
	// failures are logged through the package logger only.
	OnError func(tag string, err error)

	// Migration switches. Renaming and adding declared columns always
	// happens; dropping and reordering are opt-in.
	DeleteUnusedTables  bool
	DeleteUnusedColumns bool
	ReorderColumns      bool

	// BackupPath is the backup destination; empty derives <Path>.backup.
	BackupPath string

	BackupEnabled bool
	BackupEvery   time.Duration

	VacuumEnabled bool
	VacuumEvery   time.Duration

	// CompressBackups writes snappy-compressed backups to <BackupPath>.sz.
	CompressBackups bool

	// Logger overrides the package logger.
	Logger *slog.Logger
}

func (o Options) withDefaults() (Options, error) {
	if strings.TrimSpace(o.Path) == "" {
		return o, errors.New("storage path is required")
	}
	if o.Schema == nil {
		return o, errors.New("schema is required")
	}
	if o.BackupEvery < 0 || o.VacuumEvery < 0 {
		return o, fmt.Errorf("negative maintenance interval: backup %v, vacuum %v", o.BackupEvery, o.VacuumEvery)
	}
	if o.BackupPath == "" {
		o.BackupPath = o.Path + ".backup"
	}
	if o.BackupEnabled && o.BackupEvery == 0 {
		o.BackupEvery = DefaultBackupEvery
	}
	if o.VacuumEnabled && o.VacuumEvery == 0 {
		o.VacuumEvery = DefaultVacuumEvery
	}
	return o, nil
}

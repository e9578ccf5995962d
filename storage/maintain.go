/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang/snappy"
)

// language=SQL
// dialect=SQLite
const sqlCheckpoint = `PRAGMA wal_checkpoint(TRUNCATE);`

// language=SQL
// dialect=SQLite
const sqlVacuum = `VACUUM;`

// maintainer owns the mutual exclusion and timers for backup and vacuum.
// The guard covers only these two operations; row access is left to the
// engine's own serialization.
type maintainer struct {
	guard sync.Mutex
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// Backup snapshots the live storage file to dest, or to the configured
// backup path when dest is empty. A backup or vacuum already in flight
// yields 429 without touching any file. The first backup ever reports the
// distinct no-previous-backup code; replacing an existing file reports 200.
func (d *Database) Backup(ctx context.Context, dest string) Result {
	if err := d.gate(); err != nil {
		return resFailure(err)
	}
	return d.backup(ctx, dest)
}

// Vacuum triggers the engine's space reclamation, guarded by the same busy
// signal as Backup.
func (d *Database) Vacuum(ctx context.Context) Result {
	if err := d.gate(); err != nil {
		return resFailure(err)
	}
	return d.vacuum(ctx)
}

func (d *Database) backup(ctx context.Context, dest string) Result {
	if !d.maint.guard.TryLock() {
		return resBusy("backup")
	}
	defer d.maint.guard.Unlock()

	target := d.backupTarget(dest)
	code := StatusOK
	switch err := os.Remove(target); {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		// Nothing to replace yet, the very first backup.
		code = StatusNoBackup
	default:
		return d.rows.fail("storage.backup "+target, err)
	}

	// Fold the write-ahead log into the main file so the copy is a complete
	// point-in-time snapshot.
	if _, err := d.db.ExecContext(ctx, sqlCheckpoint); err != nil {
		return d.rows.fail("storage.backup "+d.opts.Path, err)
	}

	var err error
	if d.opts.CompressBackups {
		err = copyCompressed(d.opts.Path, target)
	} else {
		err = copyFile(d.opts.Path, target)
	}
	if err != nil {
		return d.rows.fail("storage.backup "+target, err)
	}
	d.log.Info("backup written",
		slog.String("dest", target), slog.Bool("compressed", d.opts.CompressBackups))
	return Result{Code: code, OK: true, Info: target}
}

func (d *Database) vacuum(ctx context.Context) Result {
	if !d.maint.guard.TryLock() {
		return resBusy("vacuum")
	}
	defer d.maint.guard.Unlock()

	if _, err := d.db.ExecContext(ctx, sqlVacuum); err != nil {
		return d.rows.fail("storage.vacuum "+d.opts.Path, err)
	}
	d.log.Info("storage vacuumed", slog.String("path", d.opts.Path))
	return resOK()
}

// backupTarget resolves the effective destination, appending the snappy
// suffix when compression is on.
func (d *Database) backupTarget(dest string) string {
	if dest == "" {
		dest = d.opts.BackupPath
	}
	if d.opts.CompressBackups {
		dest += ".sz"
	}
	return dest
}

func (d *Database) startMaintenance() {
	d.maint.stop = make(chan struct{})
	if d.opts.BackupEnabled {
		d.maint.wg.Add(1)
		go d.backupLoop()
	}
	if d.opts.VacuumEnabled {
		d.maint.wg.Add(1)
		go d.vacuumLoop()
	}
}

// stopMaintenance cancels the timers and waits for in-flight ticks. Safe to
// call more than once and before the scheduler ever started.
func (d *Database) stopMaintenance() {
	d.maint.once.Do(func() {
		if d.maint.stop != nil {
			close(d.maint.stop)
		}
	})
	d.maint.wg.Wait()
}

// backupLoop fires a backup each interval. A tick that finds the guard held
// skips this round instead of queuing behind it.
func (d *Database) backupLoop() {
	defer d.maint.wg.Done()
	ticker := time.NewTicker(d.opts.BackupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-d.maint.stop:
			return
		case <-ticker.C:
			if res := d.backup(context.Background(), ""); res.Code == StatusBusy {
				d.log.Debug("scheduled backup skipped, maintenance busy")
			}
		}
	}
}

func (d *Database) vacuumLoop() {
	defer d.maint.wg.Done()
	ticker := time.NewTicker(d.opts.VacuumEvery)
	defer ticker.Stop()
	for {
		select {
		case <-d.maint.stop:
			return
		case <-ticker.C:
			if res := d.vacuum(context.Background()); res.Code == StatusBusy {
				d.log.Debug("scheduled vacuum skipped, maintenance busy")
			}
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

func copyCompressed(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	sw := snappy.NewBufferedWriter(out)
	_, err = io.Copy(sw, in)
	if cerr := sw.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

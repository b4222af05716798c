package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kioskworks/kioskctl/internal/core"
)

// Archive keeps timestamped copies of files about to be overwritten.
// Filenames are <original-basename>.<YYYYMMDD_HHMMSS>; the directory is
// append-only and never pruned here (rollback is a manual operation that
// consumes it).
type Archive struct {
	dir    string
	fs     core.FileSystem
	stamp  string
	dryRun bool
}

// NewArchive prepares the backup directory. Failure is fatal for the run:
// mutating without the safety net is not acceptable. In dry-run the
// directory is not created.
func NewArchive(dir string, fsys core.FileSystem, started time.Time, dryRun bool) (*Archive, error) {
	if !dryRun {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create backup dir %s: %w", dir, err)
		}
	}
	return &Archive{
		dir:    dir,
		fs:     fsys,
		stamp:  started.Format("20060102_150405"),
		dryRun: dryRun,
	}, nil
}

// Dir is the archive directory.
func (a *Archive) Dir() string { return a.dir }

// Preserve copies path into the archive before its first byte is mutated.
// Returns nil when path does not exist (nothing to preserve). In dry-run the
// record is described but no copy is made, so callers keep the same shape in
// both modes.
func (a *Archive) Preserve(path string) (*core.BackupRecord, error) {
	info, err := a.fs.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	dest := filepath.Join(a.dir, filepath.Base(path)+"."+a.stamp)
	rec := &core.BackupRecord{Source: path, Destination: dest}

	if a.dryRun {
		return rec, nil
	}

	// Two sub-targets may mutate the same file in one run; only the first
	// preserve captures the pre-run bytes, later ones must not overwrite it.
	if _, err := a.fs.Stat(dest); err == nil {
		rec.Materialized = true
		return rec, nil
	}

	if err := core.CopyFile(a.fs, path, dest, info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("backup %s: %w", path, err)
	}
	rec.Materialized = true
	return rec, nil
}

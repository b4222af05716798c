package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunContext carries everything one reconciliation run needs: the control
// flags, the run identity, and handles to the filesystem, command runner,
// logger, state ledger and backup archive. It wraps the standard context
// so appliers can honor cancellation on long external calls.
type RunContext struct {
	context.Context

	// Control flags for this run. DryRun previews without mutating anything;
	// Force makes every detector report update-needed.
	DryRun bool
	Force  bool

	// RunID identifies this invocation in the ledger and in logs.
	RunID string
	// Started is the run timestamp; backup filenames derive from it so all
	// backups of one run share a suffix.
	Started time.Time

	FS     FileSystem
	Runner CommandRunner
	Logger Logger

	Ledger  Ledger
	Backups BackupArchive
}

// Ledger is the persistent key=value store of last-applied values.
// Implemented by state.Ledger; declared here so core does not import state.
type Ledger interface {
	Get(key, def string) string
	Set(key, value string) error
	RecordApplied(item, value string) error
}

// BackupArchive preserves a file's prior bytes before an applier mutates it.
type BackupArchive interface {
	// Preserve copies path into the archive. Returns the record describing
	// the copy, or nil when path does not exist. In dry-run the record is
	// described but not materialized.
	Preserve(path string) (*BackupRecord, error)
}

// BackupRecord describes one preserved file.
type BackupRecord struct {
	Source       string
	Destination  string
	Materialized bool
}

// NewRunContext builds a RunContext for one invocation.
func NewRunContext(ctx context.Context, dryRun, force bool) *RunContext {
	return &RunContext{
		Context: ctx,
		DryRun:  dryRun,
		Force:   force,
		RunID:   uuid.New().String(),
		Started: time.Now(),
		FS:      &RealFS{},
		Runner:  &LocalRunner{},
		Logger:  NewDefaultLogger(nil, LevelInfo),
	}
}

// Decide layers the force override on top of an honest comparison result.
// The underlying detector semantics stay untouched so dry-run output under
// force still shows the real reasoning.
func (rc *RunContext) Decide(needs bool, reason string) Decision {
	if needs {
		return Decision{Needs: true, Reason: reason}
	}
	if rc.Force {
		return Decision{Needs: true, Reason: "forced"}
	}
	return Decision{Needs: false, Reason: reason}
}

// Decision is the outcome of one change-detector evaluation.
type Decision struct {
	Needs  bool
	Reason string
}

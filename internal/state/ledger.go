package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kioskworks/kioskctl/internal/core"
)

// Item keys used in the ledger. Call sites go through these constants and
// the typed accessors below instead of hand-rolling key names.
const (
	ItemNetwork      = "network"
	ItemSSH          = "ssh"
	ItemPackages     = "packages"
	ItemAutologin    = "autologin"
	ItemDisplay      = "display"
	ItemBoot         = "boot"
	ItemPayload      = "payload"
	ItemLaunchScript = "launchscript"
	ItemHardening    = "hardening"
)

// Ledger is the durable key=value record of last-applied values. One line
// per key, last write wins. Writes are plain delete-then-append, O(n) over a
// small fixed key set. Under dry-run every write is a no-op: the ledger
// reflects only real state, never hypothetical state.
type Ledger struct {
	path   string
	fs     core.FileSystem
	dryRun bool
}

// NewLedger opens (or creates) the ledger file. An existing ledger is never
// truncated. Failure to create the file or its directory is fatal for the
// run: proceeding without the record defeats the design.
func NewLedger(path string, fsys core.FileSystem, dryRun bool) (*Ledger, error) {
	if !dryRun {
		if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	if _, err := fsys.Stat(path); os.IsNotExist(err) {
		if dryRun {
			// Described only; a dry run must not leave files behind.
			return &Ledger{path: path, fs: fsys, dryRun: dryRun}, nil
		}
		if err := fsys.WriteFile(path, nil, 0o644); err != nil {
			return nil, fmt.Errorf("create state ledger: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat state ledger: %w", err)
	}
	return &Ledger{path: path, fs: fsys, dryRun: dryRun}, nil
}

// Get returns the value recorded for key, or def when absent.
func (l *Ledger) Get(key, def string) string {
	data, err := l.fs.ReadFile(l.path)
	if err != nil {
		return def
	}
	value := def
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok && k == key {
			value = v
		}
	}
	return value
}

// Set records key=value with last-write-wins semantics: the old line, if
// present, is dropped and the new one appended. No-op under dry-run.
func (l *Ledger) Set(key, value string) error {
	if l.dryRun {
		return nil
	}

	data, err := l.fs.ReadFile(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read state ledger: %w", err)
	}

	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		if k, _, ok := strings.Cut(line, "="); ok && k == key {
			continue
		}
		kept = append(kept, line)
	}
	kept = append(kept, key+"="+value)

	out := strings.Join(kept, "\n") + "\n"
	if err := l.fs.WriteFile(l.path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write state ledger: %w", err)
	}
	return nil
}

// RecordApplied stores an item's newly applied value together with its
// completion timestamp.
func (l *Ledger) RecordApplied(item, value string) error {
	if err := l.Set(item, value); err != nil {
		return err
	}
	return l.Set(item+"_configured", time.Now().Format(time.RFC3339))
}

// Entries returns every key=value pair currently in the ledger, in file
// order. Used by the status command.
func (l *Ledger) Entries() ([][2]string, error) {
	data, err := l.fs.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries [][2]string
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			entries = append(entries, [2]string{k, v})
		}
	}
	return entries, nil
}

// Package items holds the per-item appliers. Each applier converges exactly
// one artifact class: it asks the change detectors whether the live state
// differs from desired, preserves a backup before the first mutating byte,
// applies the minimal change, and records the outcome in the ledger.
package items

import (
	"fmt"
	"os"

	"github.com/kioskworks/kioskctl/internal/adapters/firewall"
	"github.com/kioskworks/kioskctl/internal/adapters/pkgmgr"
	"github.com/kioskworks/kioskctl/internal/adapters/service"
	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/system"
)

// Deps are the external collaborator capabilities the appliers consume.
type Deps struct {
	Services service.Manager
	Packages pkgmgr.Manager
	Firewall firewall.Manager
}

// ForSettings builds the appliers in their fixed dependency order: network
// before hardening (the firewall references network addressing), packages
// before anything needing installed binaries (display server, payload), boot
// parameters before the final reboot decision.
func ForSettings(s *config.Settings, scheme system.MemoryScheme, deps Deps) []core.Applier {
	return []core.Applier{
		NewNetwork(s, deps.Services),
		NewSSH(s),
		NewPackages(s, deps.Packages),
		NewAutologin(s, deps.Services),
		NewDisplay(s),
		NewBoot(s, scheme),
		NewPayload(s),
		NewLaunchScript(s),
		NewHardening(s, deps.Services, deps.Firewall),
	}
}

// contentTarget converges one whole-file content target: byte-for-byte
// comparison, backup before mutation, atomic full-content replace. Returns
// the applier-level result; the caller adds item specifics (ledger writes,
// follow-up actions).
func contentTarget(rc *core.RunContext, path string, desired []byte, mode os.FileMode) (core.Result, error) {
	needs, err := core.ContentNeedsUpdate(rc.FS, path, desired)
	if err != nil {
		return core.Result{}, err
	}
	dec := rc.Decide(needs, "content differs")
	if !dec.Needs {
		return core.NoChange(path), nil
	}

	current, _ := rc.FS.ReadFile(path)

	if rc.DryRun {
		res := core.Preview(fmt.Sprintf("rewrite %s (%s)", path, dec.Reason))
		res.Diff = core.GenerateDiff(string(current), string(desired))
		return res, nil
	}

	if _, err := rc.Backups.Preserve(path); err != nil {
		return core.Result{}, err
	}
	if err := core.WriteFileAtomic(rc.FS, path, desired, mode); err != nil {
		return core.Result{}, fmt.Errorf("write %s: %w", path, err)
	}
	return core.Applied(fmt.Sprintf("rewrote %s (%s)", path, dec.Reason)), nil
}

// appendMarker converges a line-existence target: update-needed iff the
// marker substring is absent; the mutation appends line and never rewrites
// the rest of the file.
func appendMarker(rc *core.RunContext, path, marker, line string) (core.Result, error) {
	missing, err := core.LineMissing(rc.FS, path, marker)
	if err != nil {
		return core.Result{}, err
	}
	// Marker presence is the idempotence check itself; force does not apply
	// here since re-appending would duplicate the line.
	if !missing {
		return core.NoChange(path), nil
	}

	if rc.DryRun {
		return core.Preview(fmt.Sprintf("append marker to %s", path)), nil
	}

	if _, err := rc.Backups.Preserve(path); err != nil {
		return core.Result{}, err
	}
	current, err := rc.FS.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return core.Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	out := string(current)
	if out != "" && out[len(out)-1] != '\n' {
		out += "\n"
	}
	out += line + "\n"
	if err := rc.FS.WriteFile(path, []byte(out), 0o644); err != nil {
		return core.Result{}, fmt.Errorf("append to %s: %w", path, err)
	}
	return core.Applied(fmt.Sprintf("appended marker to %s", path)), nil
}

// merge folds a sub-target result into an item-level aggregate.
func merge(agg *core.Result, sub core.Result, rc *core.RunContext) {
	if !sub.Changed() {
		return
	}
	if agg.Verdict == core.Unchanged {
		if rc.DryRun {
			agg.Verdict = core.WouldUpdate
		} else {
			agg.Verdict = core.Updated
		}
	}
	if agg.Message == "" {
		agg.Message = sub.Message
	} else {
		agg.Message += "; " + sub.Message
	}
	if sub.Diff != "" {
		if agg.Diff != "" {
			agg.Diff += "\n"
		}
		agg.Diff += sub.Diff
	}
	if sub.Reboot {
		agg.Reboot = true
	}
}

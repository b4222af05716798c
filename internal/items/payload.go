package items

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kioskworks/kioskctl/internal/adapters/archive"
	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/state"
)

// Payload installs the application archive. Exempt from change detection:
// the archive's internal version is not locally inspectable, so every
// non-dry-run invocation re-extracts to guarantee upgrades take effect. The
// ancillary sub-targets (udev rule, compatibility symlink) remain
// independently idempotent.
type Payload struct {
	Settings *config.Settings
	UdevPath string
	LinkPath string
}

func NewPayload(s *config.Settings) *Payload {
	return &Payload{
		Settings: s,
		UdevPath: "/etc/udev/rules.d/99-kiosk-input.rules",
		LinkPath: "/usr/local/bin/kiosk-player",
	}
}

func (p *Payload) Name() string { return state.ItemPayload }

func (p *Payload) Apply(rc *core.RunContext) (core.Result, error) {
	// Missing payload is a precondition failure, not drift.
	if _, err := rc.FS.Stat(p.Settings.PayloadArchive); os.IsNotExist(err) {
		return core.Result{}, fmt.Errorf("payload archive not found: %s", p.Settings.PayloadArchive)
	} else if err != nil {
		return core.Result{}, fmt.Errorf("stat payload archive: %w", err)
	}

	if rc.DryRun {
		res := core.Preview(fmt.Sprintf("extract %s into %s", p.Settings.PayloadArchive, p.Settings.InstallDir))
		return res, nil
	}

	if err := archive.Extract(rc.FS, p.Settings.PayloadArchive, p.Settings.InstallDir); err != nil {
		return core.Result{}, err
	}
	if out, err := rc.Runner.Run(rc, "chown", "-R", p.Settings.AppUser+":"+p.Settings.AppUser, p.Settings.InstallDir); err != nil {
		return core.Result{}, fmt.Errorf("chown %s: %w: %s", p.Settings.InstallDir, err, out)
	}

	udevRes, err := contentTarget(rc, p.UdevPath, []byte(p.renderUdevRule()), 0o644)
	if err != nil {
		return core.Result{}, err
	}

	if err := p.ensureSymlink(rc); err != nil {
		return core.Result{}, err
	}

	if err := rc.Ledger.RecordApplied(state.ItemPayload, p.Settings.PayloadArchive); err != nil {
		return core.Result{}, err
	}

	msg := fmt.Sprintf("extracted %s into %s", p.Settings.PayloadArchive, p.Settings.InstallDir)
	if udevRes.Verdict == core.Updated {
		msg += "; installed udev rule"
	}
	return core.Applied(msg), nil
}

// ensureSymlink keeps the compatibility link pointing at the installed
// binary. A link that already resolves correctly is success, not an error;
// a wrong link or a stale file in the way is replaced.
func (p *Payload) ensureSymlink(rc *core.RunContext) error {
	target := filepath.Join(p.Settings.InstallDir, "bin", "player")

	info, err := rc.FS.Lstat(p.LinkPath)
	if err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if dest, err := rc.FS.Readlink(p.LinkPath); err == nil && dest == target {
				return nil
			}
		}
		if err := rc.FS.Remove(p.LinkPath); err != nil {
			return fmt.Errorf("replace %s: %w", p.LinkPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("lstat %s: %w", p.LinkPath, err)
	}

	if err := rc.FS.MkdirAll(filepath.Dir(p.LinkPath), 0o755); err != nil {
		return err
	}
	if err := rc.FS.Symlink(target, p.LinkPath); err != nil {
		return fmt.Errorf("symlink %s: %w", p.LinkPath, err)
	}
	return nil
}

// renderUdevRule grants the app user's group access to input devices so the
// player can read touch events without running as root.
func (p *Payload) renderUdevRule() string {
	return fmt.Sprintf(`# Managed by kioskctl. Manual edits are overwritten.
SUBSYSTEM=="input", GROUP="input", MODE="0660"
KERNEL=="event*", GROUP="input", MODE="0660"
SUBSYSTEM=="vchiq", GROUP="%s", MODE="0660"
`, p.Settings.AppUser)
}

package items

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/state"
)

// SSH converges the sshd policy file. A rewritten policy is syntax-checked
// with `sshd -t` before it replaces the live file; a policy that fails the
// check aborts the whole run, since a broken sshd_config could cut off the
// only remote management path.
//
// This item never restarts sshd, by policy: the apply may be running over an
// SSH session on this very service, so activation is deferred to the next
// service restart or reboot.
type SSH struct {
	Settings *config.Settings
	Path     string
}

func NewSSH(s *config.Settings) *SSH {
	return &SSH{Settings: s, Path: "/etc/ssh/sshd_config"}
}

func (s *SSH) Name() string { return state.ItemSSH }

func (s *SSH) Apply(rc *core.RunContext) (core.Result, error) {
	desired := []byte(s.render())

	needs, err := core.ContentNeedsUpdate(rc.FS, s.Path, desired)
	if err != nil {
		return core.Result{}, err
	}
	dec := rc.Decide(needs, "policy differs")
	if !dec.Needs {
		return core.NoChange(s.Path), nil
	}

	if rc.DryRun {
		current, _ := rc.FS.ReadFile(s.Path)
		res := core.Preview(fmt.Sprintf("rewrite %s (%s)", s.Path, dec.Reason))
		res.Diff = core.GenerateDiff(string(current), string(desired))
		return res, nil
	}

	if _, err := rc.Backups.Preserve(s.Path); err != nil {
		return core.Result{}, err
	}

	// Stage, validate, then swap in; the live file is replaced only by a
	// config sshd itself accepts.
	staged := filepath.Join(filepath.Dir(s.Path), ".sshd_config.staged")
	if err := rc.FS.WriteFile(staged, desired, 0o600); err != nil {
		return core.Result{}, fmt.Errorf("stage sshd_config: %w", err)
	}
	if out, err := rc.Runner.Run(rc, "sshd", "-t", "-f", staged); err != nil {
		rc.FS.Remove(staged)
		return core.Result{}, fmt.Errorf("sshd config validation failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	if err := rc.FS.Rename(staged, s.Path); err != nil {
		return core.Result{}, fmt.Errorf("install sshd_config: %w", err)
	}

	if err := rc.Ledger.RecordApplied(state.ItemSSH, fmt.Sprintf("port=%d", s.Settings.SSHPort)); err != nil {
		return core.Result{}, err
	}
	return core.Applied(fmt.Sprintf("rewrote %s; takes effect at next sshd restart", s.Path)), nil
}

func (s *SSH) render() string {
	onOff := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}

	var b strings.Builder
	b.WriteString("# Managed by kioskctl. Manual edits are overwritten.\n")
	fmt.Fprintf(&b, "Port %d\n", s.Settings.SSHPort)
	b.WriteString("Protocol 2\n")
	b.WriteString("PermitRootLogin no\n")
	b.WriteString("PasswordAuthentication yes\n")
	b.WriteString("ChallengeResponseAuthentication no\n")
	b.WriteString("UsePAM yes\n")
	b.WriteString("X11Forwarding no\n")
	fmt.Fprintf(&b, "AllowAgentForwarding %s\n", onOff(s.Settings.SSHAgentForwarding))
	fmt.Fprintf(&b, "AllowTcpForwarding %s\n", onOff(s.Settings.SSHTCPForwarding))
	b.WriteString("PrintMotd no\n")
	b.WriteString("ClientAliveInterval 300\n")
	b.WriteString("ClientAliveCountMax 2\n")
	b.WriteString("MaxAuthTries 3\n")
	if s.Settings.SSHUser != "" {
		user := s.Settings.SSHUser
		if s.Settings.SSHAllowedNetwork != "" {
			user = fmt.Sprintf("%s@%s", user, s.Settings.SSHAllowedNetwork)
		}
		fmt.Fprintf(&b, "AllowUsers %s\n", user)
	}
	b.WriteString("Subsystem sftp /usr/lib/openssh/sftp-server\n")
	b.WriteString("AcceptEnv LANG LC_*\n")
	return b.String()
}

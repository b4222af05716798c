package items

import (
	"fmt"
	"os"
	"strings"

	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/state"
	"github.com/kioskworks/kioskctl/internal/system"
)

// Boot converges the firmware boot parameters: several scalar targets inside
// the shared config.txt (memory scheme, wifi/bt overlays) and one token
// inside the kernel command line. The memory scheme variant is detected once
// per run and passed in; it is not re-probed here.
//
// Every change requires a reboot to take effect.
type Boot struct {
	Settings    *config.Settings
	Scheme      system.MemoryScheme
	ConfigPath  string
	CmdlinePath string
}

func NewBoot(s *config.Settings, scheme system.MemoryScheme) *Boot {
	return &Boot{
		Settings:    s,
		Scheme:      scheme,
		ConfigPath:  "/boot/config.txt",
		CmdlinePath: "/boot/cmdline.txt",
	}
}

func (b *Boot) Name() string { return state.ItemBoot }

func (b *Boot) Apply(rc *core.RunContext) (core.Result, error) {
	agg := core.NoChange("")

	cfgRes, err := b.applyConfig(rc)
	if err != nil {
		return agg, err
	}
	merge(&agg, cfgRes, rc)

	cmdRes, err := b.applyCmdline(rc)
	if err != nil {
		return agg, err
	}
	merge(&agg, cmdRes, rc)

	if agg.Verdict == core.Updated {
		agg.Reboot = true
		if err := rc.Ledger.RecordApplied(state.ItemBoot, b.schemeValue()); err != nil {
			return agg, err
		}
	}
	if agg.Verdict == core.Unchanged {
		agg.Message = "boot parameters configured"
	}
	return agg, nil
}

// applyConfig edits config.txt in memory, then replaces the file once: the
// backup precedes the only mutation and the write stays atomic even when
// several scalars change.
func (b *Boot) applyConfig(rc *core.RunContext) (core.Result, error) {
	current, err := rc.FS.ReadFile(b.ConfigPath)
	if err != nil && !os.IsNotExist(err) {
		return core.Result{}, fmt.Errorf("read %s: %w", b.ConfigPath, err)
	}
	lines := strings.Split(strings.TrimRight(string(current), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		lines = nil
	}

	var changes []string

	switch b.Scheme.Kind {
	case system.DynamicPool:
		want := fmt.Sprintf("dtoverlay=vc4-kms-v3d,cma-%d", b.Scheme.Size)
		var changed bool
		lines, changed = ensurePrefixedLine(lines, "dtoverlay=vc4-kms-v3d", want)
		if changed {
			changes = append(changes, want)
		}
	default:
		want := fmt.Sprintf("%d", b.Scheme.Size)
		var changed bool
		lines, changed = ensureScalar(lines, "gpu_mem", want)
		if changed {
			changes = append(changes, "gpu_mem="+want)
		}
	}

	if b.Settings.DisableWifi {
		var changed bool
		lines, changed = ensurePrefixedLine(lines, "dtoverlay=disable-wifi", "dtoverlay=disable-wifi")
		if changed {
			changes = append(changes, "disable-wifi")
		}
	}
	if b.Settings.DisableBT {
		var changed bool
		lines, changed = ensurePrefixedLine(lines, "dtoverlay=disable-bt", "dtoverlay=disable-bt")
		if changed {
			changes = append(changes, "disable-bt")
		}
	}

	dec := rc.Decide(len(changes) > 0, strings.Join(changes, ", "))
	if !dec.Needs {
		return core.NoChange(b.ConfigPath), nil
	}

	desired := strings.Join(lines, "\n") + "\n"
	if rc.DryRun {
		res := core.Preview(fmt.Sprintf("update %s (%s)", b.ConfigPath, dec.Reason))
		res.Diff = core.GenerateDiff(string(current), desired)
		return res, nil
	}
	if _, err := rc.Backups.Preserve(b.ConfigPath); err != nil {
		return core.Result{}, err
	}
	if err := core.WriteFileAtomic(rc.FS, b.ConfigPath, []byte(desired), 0o644); err != nil {
		return core.Result{}, fmt.Errorf("write %s: %w", b.ConfigPath, err)
	}
	return core.Applied(fmt.Sprintf("updated %s (%s)", b.ConfigPath, dec.Reason)), nil
}

// applyCmdline ensures the ipv6.disable token inside the single-line kernel
// command line. Token presence, not line presence: the file holds one line
// of space-separated boot arguments.
func (b *Boot) applyCmdline(rc *core.RunContext) (core.Result, error) {
	if !b.Settings.DisableIPv6 {
		return core.NoChange(b.CmdlinePath), nil
	}
	const token = "ipv6.disable=1"

	current, err := rc.FS.ReadFile(b.CmdlinePath)
	if err != nil && !os.IsNotExist(err) {
		return core.Result{}, fmt.Errorf("read %s: %w", b.CmdlinePath, err)
	}
	line := strings.TrimSpace(string(current))

	has := false
	for _, f := range strings.Fields(line) {
		if f == token {
			has = true
			break
		}
	}
	dec := rc.Decide(!has, "ipv6 boot flag absent")
	if !dec.Needs || has {
		return core.NoChange(b.CmdlinePath), nil
	}

	if rc.DryRun {
		return core.Preview(fmt.Sprintf("append %s to %s", token, b.CmdlinePath)), nil
	}
	if _, err := rc.Backups.Preserve(b.CmdlinePath); err != nil {
		return core.Result{}, err
	}
	desired := strings.TrimSpace(line + " " + token)
	if err := core.WriteFileAtomic(rc.FS, b.CmdlinePath, []byte(desired+"\n"), 0o644); err != nil {
		return core.Result{}, fmt.Errorf("write %s: %w", b.CmdlinePath, err)
	}
	return core.Applied(fmt.Sprintf("appended %s to %s", token, b.CmdlinePath)), nil
}

func (b *Boot) schemeValue() string {
	if b.Scheme.Kind == system.DynamicPool {
		return fmt.Sprintf("cma-%d", b.Scheme.Size)
	}
	return fmt.Sprintf("gpu_mem=%d", b.Scheme.Size)
}

// ensureScalar makes the last word on key=value: all existing assignments of
// key collapse into one canonical line, appended when absent.
func ensureScalar(lines []string, key, value string) ([]string, bool) {
	want := key + "=" + value
	return ensurePrefixedLine(lines, key+"=", want)
}

// ensurePrefixedLine keeps exactly one non-comment line starting with prefix
// and makes it equal want. Reports whether anything changed.
func ensurePrefixedLine(lines []string, prefix, want string) ([]string, bool) {
	var out []string
	found := false
	changed := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, prefix) || strings.HasPrefix(trimmed, "#") {
			out = append(out, line)
			continue
		}
		if found {
			// Duplicate assignment, drop it.
			changed = true
			continue
		}
		found = true
		if trimmed != want {
			changed = true
		}
		out = append(out, want)
	}
	if !found {
		out = append(out, want)
		changed = true
	}
	return out, changed
}

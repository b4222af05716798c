package items

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kioskworks/kioskctl/internal/adapters/firewall"
	"github.com/kioskworks/kioskctl/internal/adapters/service"
	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/state"
	"github.com/kioskworks/kioskctl/internal/system"
)

// denylist names background services the appliance never needs. Disabling a
// unit that does not exist is equivalent to success.
var denylist = []string{
	"bluetooth",
	"hciuart",
	"triggerhappy",
	"avahi-daemon",
	"apt-daily.timer",
	"apt-daily-upgrade.timer",
}

// Hardening converges the hardening bundle: log policy, mount options, swap
// deactivation, kernel tunables, firewall rule set, intrusion-prevention
// jail and the service deny-list. Each sub-target is independently
// idempotent; the bundle's verdict is their aggregate.
type Hardening struct {
	Settings      *config.Settings
	Services      service.Manager
	Firewall      firewall.Manager
	JournaldPath  string
	FstabPath     string
	BlacklistPath string
	SysctlSwap    string
	SysctlIPv6    string
	JailPath      string

	// Probes are injectable for tests; defaults read /proc.
	SwapActive   func(core.FileSystem) (bool, error)
	ModuleLoaded func(core.FileSystem, string) bool
}

func NewHardening(s *config.Settings, svc service.Manager, fw firewall.Manager) *Hardening {
	return &Hardening{
		Settings:      s,
		Services:      svc,
		Firewall:      fw,
		JournaldPath:  "/etc/systemd/journald.conf",
		FstabPath:     "/etc/fstab",
		BlacklistPath: "/etc/modprobe.d/blacklist-zram.conf",
		SysctlSwap:    "/etc/sysctl.d/98-kiosk-swappiness.conf",
		SysctlIPv6:    "/etc/sysctl.d/97-kiosk-ipv6.conf",
		JailPath:      "/etc/fail2ban/jail.local",
		SwapActive:    system.SwapActive,
		ModuleLoaded:  system.ModuleLoaded,
	}
}

func (h *Hardening) Name() string { return state.ItemHardening }

func (h *Hardening) Apply(rc *core.RunContext) (core.Result, error) {
	agg := core.NoChange("")

	steps := []func(*core.RunContext) (core.Result, error){
		h.journalVolatile,
		h.logTmpfs,
		h.rootNoatime,
		h.swapOff,
		h.swappiness,
		h.ipv6Tunables,
		h.firewallRules,
		h.fail2ban,
		h.disableDenylist,
	}
	for _, step := range steps {
		res, err := step(rc)
		if err != nil {
			return agg, err
		}
		merge(&agg, res, rc)
	}

	if agg.Verdict == core.Updated {
		if err := rc.Ledger.RecordApplied(state.ItemHardening, "applied"); err != nil {
			return agg, err
		}
	}
	if agg.Verdict == core.Unchanged {
		agg.Message = "hardening in place"
	}
	return agg, nil
}

// journalVolatile keeps the journal in memory so the SD card is not worn
// down by log writes.
func (h *Hardening) journalVolatile(rc *core.RunContext) (core.Result, error) {
	needs, err := core.ScalarNeedsUpdate(rc.FS, h.JournaldPath, "Storage", "=", "volatile")
	if err != nil {
		return core.Result{}, err
	}
	dec := rc.Decide(needs, "journald storage not volatile")
	if !dec.Needs {
		return core.NoChange(h.JournaldPath), nil
	}
	if rc.DryRun {
		return core.Preview("set journald Storage=volatile"), nil
	}

	if _, err := rc.Backups.Preserve(h.JournaldPath); err != nil {
		return core.Result{}, err
	}
	current, err := rc.FS.ReadFile(h.JournaldPath)
	if err != nil && !os.IsNotExist(err) {
		return core.Result{}, fmt.Errorf("read %s: %w", h.JournaldPath, err)
	}
	lines := splitLines(string(current))
	if len(lines) == 0 {
		lines = []string{"[Journal]"}
	}
	lines, _ = ensureScalar(lines, "Storage", "volatile")
	if err := core.WriteFileAtomic(rc.FS, h.JournaldPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return core.Result{}, err
	}
	return core.Applied("set journald Storage=volatile"), nil
}

// logTmpfs mounts /var/log on tmpfs via an fstab line-existence target.
func (h *Hardening) logTmpfs(rc *core.RunContext) (core.Result, error) {
	const line = "tmpfs /var/log tmpfs defaults,noatime,nosuid,mode=0755,size=64m 0 0"
	return appendMarker(rc, h.FstabPath, "tmpfs /var/log ", line)
}

// rootNoatime adds the noatime mount option to the root filesystem entry.
func (h *Hardening) rootNoatime(rc *core.RunContext) (core.Result, error) {
	current, err := rc.FS.ReadFile(h.FstabPath)
	if os.IsNotExist(err) {
		return core.NoChange(h.FstabPath), nil
	}
	if err != nil {
		return core.Result{}, fmt.Errorf("read %s: %w", h.FstabPath, err)
	}

	lines := splitLines(string(current))
	changedLine := -1
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 4 || strings.HasPrefix(fields[0], "#") || fields[1] != "/" {
			continue
		}
		opts := strings.Split(fields[3], ",")
		has := false
		for _, o := range opts {
			if o == "noatime" {
				has = true
				break
			}
		}
		if !has {
			fields[3] = fields[3] + ",noatime"
			lines[i] = strings.Join(fields, " ")
			changedLine = i
		}
	}

	dec := rc.Decide(changedLine >= 0, "root mount missing noatime")
	if !dec.Needs || changedLine < 0 {
		return core.NoChange(h.FstabPath), nil
	}
	if rc.DryRun {
		return core.Preview("add noatime to root mount"), nil
	}
	if _, err := rc.Backups.Preserve(h.FstabPath); err != nil {
		return core.Result{}, err
	}
	if err := core.WriteFileAtomic(rc.FS, h.FstabPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return core.Result{}, err
	}
	return core.Applied("added noatime to root mount"), nil
}

// swapOff deactivates every swap mechanism. The check is the derived boolean
// "is any swap active" from /proc/swaps, not a single config key, plus the
// conservative zram condition: a loaded zram module without a blacklist
// entry needs action even when it currently provides no swap, because only
// the blacklist makes the state stick across reboots.
func (h *Hardening) swapOff(rc *core.RunContext) (core.Result, error) {
	active, err := h.SwapActive(rc.FS)
	if err != nil {
		return core.Result{}, fmt.Errorf("probe swap: %w", err)
	}

	zramLoaded := h.ModuleLoaded(rc.FS, "zram")
	_, blErr := rc.FS.Stat(h.BlacklistPath)
	blacklisted := blErr == nil
	zramPending := zramLoaded && !blacklisted

	dec := rc.Decide(active || zramPending, "swap still provisioned")
	if !dec.Needs {
		return core.NoChange("no swap active"), nil
	}
	if rc.DryRun {
		return core.Preview("deactivate swap (" + dec.Reason + ")"), nil
	}

	if out, err := rc.Runner.Run(rc, "swapoff", "-a"); err != nil {
		return core.Result{}, fmt.Errorf("swapoff: %w: %s", err, out)
	}

	// dphys-swapfile: uninstall releases the swap file itself.
	if out, err := rc.Runner.Run(rc, "dphys-swapfile", "swapoff"); err != nil {
		core.BestEffort(rc, "dphys-swapfile swapoff: "+string(out), err)
	}
	if out, err := rc.Runner.Run(rc, "dphys-swapfile", "uninstall"); err != nil {
		core.BestEffort(rc, "dphys-swapfile uninstall: "+string(out), err)
	}
	core.BestEffort(rc, "disable dphys-swapfile", h.Services.DisableNow(rc, "dphys-swapfile"))
	core.BestEffort(rc, "mask dphys-swapfile", h.Services.Mask(rc, "dphys-swapfile"))

	// zram: its own multi-step teardown plus the module blacklist.
	core.BestEffort(rc, "stop zramswap", h.Services.Stop(rc, "zramswap"))
	core.BestEffort(rc, "disable zramswap", h.Services.Disable(rc, "zramswap"))
	if err := rc.FS.MkdirAll(filepath.Dir(h.BlacklistPath), 0o755); err != nil {
		return core.Result{}, err
	}
	if err := rc.FS.WriteFile(h.BlacklistPath, []byte("blacklist zram\n"), 0o644); err != nil {
		return core.Result{}, fmt.Errorf("write zram blacklist: %w", err)
	}
	if out, err := rc.Runner.Run(rc, "modprobe", "-r", "zram"); err != nil {
		core.BestEffort(rc, "modprobe -r zram: "+string(out), err)
	}

	res := core.Applied("deactivated swap (" + dec.Reason + ")")
	res.Reboot = true
	return res, nil
}

func (h *Hardening) swappiness(rc *core.RunContext) (core.Result, error) {
	content := fmt.Sprintf("vm.swappiness=%d\n", h.Settings.Swappiness)
	res, err := contentTarget(rc, h.SysctlSwap, []byte(content), 0o644)
	if err != nil {
		return res, err
	}
	if res.Verdict == core.Updated {
		if out, err := rc.Runner.Run(rc, "sysctl", "-w", fmt.Sprintf("vm.swappiness=%d", h.Settings.Swappiness)); err != nil {
			core.BestEffort(rc, "sysctl vm.swappiness: "+string(out), err)
		}
	}
	return res, nil
}

func (h *Hardening) ipv6Tunables(rc *core.RunContext) (core.Result, error) {
	if !h.Settings.DisableIPv6 {
		return core.NoChange("ipv6 left enabled"), nil
	}
	content := "net.ipv6.conf.all.disable_ipv6=1\nnet.ipv6.conf.default.disable_ipv6=1\nnet.ipv6.conf.lo.disable_ipv6=1\n"
	res, err := contentTarget(rc, h.SysctlIPv6, []byte(content), 0o644)
	if err != nil {
		return res, err
	}
	if res.Verdict == core.Updated {
		res.Reboot = true
	}
	return res, nil
}

func (h *Hardening) firewallRules(rc *core.RunContext) (core.Result, error) {
	rules := h.rules()

	ok, err := h.Firewall.Satisfied(rc, rules)
	if err != nil {
		return core.Result{}, err
	}
	dec := rc.Decide(!ok, "rule set incomplete or inactive")
	if !dec.Needs {
		return core.NoChange("firewall active"), nil
	}
	if rc.DryRun {
		var lines []string
		for _, r := range rules {
			lines = append(lines, r.String())
		}
		return core.Preview("apply firewall rules: " + strings.Join(lines, "; ")), nil
	}
	if err := h.Firewall.Apply(rc, rules); err != nil {
		return core.Result{}, err
	}
	return core.Applied("applied firewall rule set"), nil
}

// rules derives the allow tuples from network-derived addressing, which is
// why the network item must converge before this one.
func (h *Hardening) rules() []firewall.Rule {
	rules := []firewall.Rule{
		{From: h.Settings.SSHAllowedNetwork, Port: h.Settings.SSHPort, Proto: "tcp"},
	}
	for _, port := range h.Settings.FirewallTCPPorts {
		rules = append(rules, firewall.Rule{From: h.Settings.AllowedNetwork, Port: port, Proto: "tcp"})
	}
	return rules
}

func (h *Hardening) fail2ban(rc *core.RunContext) (core.Result, error) {
	res, err := contentTarget(rc, h.JailPath, []byte(h.renderJail()), 0o644)
	if err != nil {
		return res, err
	}
	if res.Verdict == core.Updated {
		if err := h.Services.Enable(rc, "fail2ban"); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (h *Hardening) renderJail() string {
	ignore := "127.0.0.1/8"
	if h.Settings.SSHAllowedNetwork != "" {
		ignore += " " + h.Settings.SSHAllowedNetwork
	}
	return fmt.Sprintf(`# Managed by kioskctl. Manual edits are overwritten.
[DEFAULT]
bantime = 1h
findtime = 10m
maxretry = 5
ignoreip = %s

[sshd]
enabled = true
port = %d
`, ignore, h.Settings.SSHPort)
}

// disableDenylist turns off the fixed list of background services. A unit
// that is already disabled, or does not exist at all, is success.
func (h *Hardening) disableDenylist(rc *core.RunContext) (core.Result, error) {
	var pending []string
	for _, unit := range denylist {
		enabled, err := h.Services.IsEnabled(rc, unit)
		if err != nil {
			return core.Result{}, err
		}
		active, err := h.Services.IsActive(rc, unit)
		if err != nil {
			return core.Result{}, err
		}
		if enabled || active {
			pending = append(pending, unit)
		}
	}

	dec := rc.Decide(len(pending) > 0, "denylisted services running")
	if !dec.Needs || len(pending) == 0 {
		return core.NoChange("denylisted services off"), nil
	}
	if rc.DryRun {
		return core.Preview("disable " + strings.Join(pending, ", ")), nil
	}
	for _, unit := range pending {
		core.BestEffort(rc, "disable "+unit, h.Services.DisableNow(rc, unit))
	}
	return core.Applied("disabled " + strings.Join(pending, ", ")), nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

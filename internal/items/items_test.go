package items

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/kioskworks/kioskctl/internal/adapters/firewall"
	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/state"
)

func testSettings() *config.Settings {
	return &config.Settings{
		Interface:    "eth0",
		StaticIP:     "192.168.1.50",
		SubnetPrefix: 24,
		Gateway:      "192.168.1.1",
		DNSServers:   []string{"192.168.1.1", "8.8.8.8"},

		SSHPort:           2222,
		SSHUser:           "admin",
		SSHAllowedNetwork: "192.168.1.0/24",

		Packages: []string{"xserver-xorg", "xinit", "x11-xserver-utils"},

		GPUMem:      128,
		CMASize:     256,
		DisableWifi: true,
		DisableBT:   true,
		DisableIPv6: true,

		NumDisplays: 2,
		Displays: []config.Display{
			{Output: "HDMI-1", Resolution: "1920x1080", Enabled: true},
			{Output: "HDMI-2", Resolution: "1080x1920", Rotate: "right", Enabled: true, Position: "right-of", RelativeTo: "HDMI-1"},
		},

		PayloadArchive: "/srv/kiosk-app.tar.gz",
		InstallDir:     "/opt/kiosk",
		AppUser:        "kiosk",

		AllowedNetwork:   "192.168.1.0/24",
		FirewallTCPPorts: []int{8080},
		Swappiness:       1,
	}
}

func testRun(t *testing.T, dryRun, force bool) (*core.RunContext, *core.MockRunner) {
	t.Helper()
	dir := t.TempDir()
	fsys := &core.RealFS{}
	started := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	led, err := state.NewLedger(filepath.Join(dir, "state"), fsys, dryRun)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	arch, err := state.NewArchive(filepath.Join(dir, "backups"), fsys, started, dryRun)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	runner := core.NewMockRunner()
	rc := &core.RunContext{
		Context: context.Background(),
		DryRun:  dryRun,
		Force:   force,
		RunID:   "test-run",
		Started: started,
		FS:      fsys,
		Runner:  runner,
		Logger:  core.NewDefaultLogger(io.Discard, core.LevelError),
		Ledger:  led,
		Backups: arch,
	}
	return rc, runner
}

// stubServices records every lifecycle call and answers state probes from
// its maps.
type stubServices struct {
	enabled map[string]bool
	active  map[string]bool
	masked  map[string]bool
	calls   []string
}

func newStubServices() *stubServices {
	return &stubServices{
		enabled: make(map[string]bool),
		active:  make(map[string]bool),
		masked:  make(map[string]bool),
	}
}

func (s *stubServices) IsActive(_ context.Context, unit string) (bool, error) {
	return s.active[unit], nil
}

func (s *stubServices) IsEnabled(_ context.Context, unit string) (bool, error) {
	return s.enabled[unit], nil
}

func (s *stubServices) IsMasked(_ context.Context, unit string) (bool, error) {
	return s.masked[unit], nil
}

func (s *stubServices) Enable(_ context.Context, unit string) error {
	s.calls = append(s.calls, "enable "+unit)
	s.enabled[unit] = true
	return nil
}

func (s *stubServices) Disable(_ context.Context, unit string) error {
	s.calls = append(s.calls, "disable "+unit)
	s.enabled[unit] = false
	return nil
}

func (s *stubServices) DisableNow(_ context.Context, unit string) error {
	s.calls = append(s.calls, "disable-now "+unit)
	s.enabled[unit] = false
	s.active[unit] = false
	return nil
}

func (s *stubServices) Mask(_ context.Context, unit string) error {
	s.calls = append(s.calls, "mask "+unit)
	s.masked[unit] = true
	return nil
}

func (s *stubServices) Stop(_ context.Context, unit string) error {
	s.calls = append(s.calls, "stop "+unit)
	s.active[unit] = false
	return nil
}

func (s *stubServices) DaemonReload(_ context.Context) error {
	s.calls = append(s.calls, "daemon-reload")
	return nil
}

func (s *stubServices) called(call string) bool {
	for _, c := range s.calls {
		if c == call {
			return true
		}
	}
	return false
}

// stubPackages answers Installed from a fixed set and records mutations.
type stubPackages struct {
	installed   map[string]bool
	installs    [][]string
	upgrades    int
	autoremoves int
}

func (p *stubPackages) Installed(_ context.Context) (map[string]bool, error) {
	return p.installed, nil
}

func (p *stubPackages) Install(_ context.Context, pkgs []string) error {
	p.installs = append(p.installs, pkgs)
	return nil
}

func (p *stubPackages) Upgrade(_ context.Context) error {
	p.upgrades++
	return nil
}

func (p *stubPackages) Autoremove(_ context.Context) error {
	p.autoremoves++
	return nil
}

// stubFirewall reports a fixed satisfaction answer and records applied rule
// sets.
type stubFirewall struct {
	satisfied bool
	applied   [][]firewall.Rule
}

func (f *stubFirewall) Satisfied(_ context.Context, _ []firewall.Rule) (bool, error) {
	return f.satisfied, nil
}

func (f *stubFirewall) Apply(_ context.Context, rules []firewall.Rule) error {
	f.applied = append(f.applied, rules)
	f.satisfied = true
	return nil
}

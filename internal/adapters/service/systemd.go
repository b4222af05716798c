// Package service wraps the init system behind a capability interface:
// "ensure unit U is in state {enabled, active, masked}".
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kioskworks/kioskctl/internal/core"
)

// Manager is the service-lifecycle capability consumed by the appliers.
type Manager interface {
	IsActive(ctx context.Context, unit string) (bool, error)
	IsEnabled(ctx context.Context, unit string) (bool, error)
	IsMasked(ctx context.Context, unit string) (bool, error)
	Enable(ctx context.Context, unit string) error
	Disable(ctx context.Context, unit string) error
	// DisableNow disables and stops the unit in one step.
	DisableNow(ctx context.Context, unit string) error
	Mask(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	DaemonReload(ctx context.Context) error
}

// Systemd implements Manager via systemctl.
type Systemd struct {
	Runner core.CommandRunner
}

func NewSystemd(runner core.CommandRunner) *Systemd {
	return &Systemd{Runner: runner}
}

// IsActive probes the unit's active state. systemctl exits non-zero for
// inactive units, which is a state answer, not an error.
func (s *Systemd) IsActive(ctx context.Context, unit string) (bool, error) {
	out, err := s.Runner.Run(ctx, "systemctl", "is-active", unit)
	state := strings.TrimSpace(string(out))
	if err != nil {
		return false, nil
	}
	return state == "active", nil
}

func (s *Systemd) IsEnabled(ctx context.Context, unit string) (bool, error) {
	out, _ := s.Runner.Run(ctx, "systemctl", "is-enabled", unit)
	return strings.TrimSpace(string(out)) == "enabled", nil
}

func (s *Systemd) IsMasked(ctx context.Context, unit string) (bool, error) {
	out, _ := s.Runner.Run(ctx, "systemctl", "is-enabled", unit)
	return strings.TrimSpace(string(out)) == "masked", nil
}

func (s *Systemd) Enable(ctx context.Context, unit string) error {
	return s.ctl(ctx, "enable", unit)
}

func (s *Systemd) Disable(ctx context.Context, unit string) error {
	return s.ctl(ctx, "disable", unit)
}

func (s *Systemd) DisableNow(ctx context.Context, unit string) error {
	return s.ctl(ctx, "disable", "--now", unit)
}

func (s *Systemd) Mask(ctx context.Context, unit string) error {
	return s.ctl(ctx, "mask", unit)
}

func (s *Systemd) Stop(ctx context.Context, unit string) error {
	return s.ctl(ctx, "stop", unit)
}

func (s *Systemd) DaemonReload(ctx context.Context) error {
	return s.ctl(ctx, "daemon-reload")
}

func (s *Systemd) ctl(ctx context.Context, args ...string) error {
	if out, err := s.Runner.Run(ctx, "systemctl", args...); err != nil {
		return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Package pkgmgr wraps the OS package manager behind a capability interface:
// "ensure set S installed, then upgrade all, then autoremove".
package pkgmgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/kioskworks/kioskctl/internal/core"
)

// Manager is the package-manager capability consumed by the packages item.
type Manager interface {
	Installed(ctx context.Context) (map[string]bool, error)
	Install(ctx context.Context, pkgs []string) error
	Upgrade(ctx context.Context) error
	Autoremove(ctx context.Context) error
}

// Apt implements Manager for Debian-family systems (the appliance runs
// Raspberry Pi OS).
type Apt struct {
	Runner core.CommandRunner
}

func NewApt(runner core.CommandRunner) *Apt {
	return &Apt{Runner: runner}
}

// Installed returns the set of installed package names via dpkg-query.
func (a *Apt) Installed(ctx context.Context) (map[string]bool, error) {
	out, err := a.Runner.Run(ctx, "dpkg-query", "-W", "-f", "${Package}\n")
	if err != nil {
		return nil, fmt.Errorf("dpkg-query: %w", err)
	}
	installed := make(map[string]bool)
	for _, name := range strings.Split(string(out), "\n") {
		if name = strings.TrimSpace(name); name != "" {
			installed[name] = true
		}
	}
	return installed, nil
}

func (a *Apt) Install(ctx context.Context, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	if out, err := a.Runner.Run(ctx, "apt-get", "update"); err != nil {
		return fmt.Errorf("apt-get update: %w: %s", err, out)
	}
	args := append([]string{"install", "-y"}, pkgs...)
	if out, err := a.Runner.Run(ctx, "apt-get", args...); err != nil {
		return fmt.Errorf("apt-get install: %w: %s", err, out)
	}
	return nil
}

func (a *Apt) Upgrade(ctx context.Context) error {
	if out, err := a.Runner.Run(ctx, "apt-get", "upgrade", "-y"); err != nil {
		return fmt.Errorf("apt-get upgrade: %w: %s", err, out)
	}
	return nil
}

func (a *Apt) Autoremove(ctx context.Context) error {
	if out, err := a.Runner.Run(ctx, "apt-get", "autoremove", "-y"); err != nil {
		return fmt.Errorf("apt-get autoremove: %w: %s", err, out)
	}
	return nil
}

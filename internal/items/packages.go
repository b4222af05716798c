package items

import (
	"fmt"
	"strings"

	"github.com/kioskworks/kioskctl/internal/adapters/pkgmgr"
	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/state"
)

// Packages converges the required package set. Set-membership target:
// update-needed only when a required package is missing; packages installed
// for other reasons are never touched (detection is additive).
type Packages struct {
	Settings *config.Settings
	Manager  pkgmgr.Manager
}

func NewPackages(s *config.Settings, m pkgmgr.Manager) *Packages {
	return &Packages{Settings: s, Manager: m}
}

func (p *Packages) Name() string { return state.ItemPackages }

func (p *Packages) Apply(rc *core.RunContext) (core.Result, error) {
	required := p.Settings.Packages
	if len(required) == 0 {
		return core.NoChange("no packages required"), nil
	}

	installed, err := p.Manager.Installed(rc)
	if err != nil {
		return core.Result{}, err
	}
	missing := core.MissingElements(required, installed)

	dec := rc.Decide(len(missing) > 0, fmt.Sprintf("%d missing", len(missing)))
	if !dec.Needs {
		return core.NoChange("all packages present"), nil
	}

	if rc.DryRun {
		if len(missing) > 0 {
			return core.Preview("install " + strings.Join(missing, " ")), nil
		}
		return core.Preview("reinstall full set (forced)"), nil
	}

	// Install the full required set in one pass: installs of already-present
	// packages are cheap and idempotent.
	if err := p.Manager.Install(rc, required); err != nil {
		return core.Result{}, err
	}
	if err := p.Manager.Upgrade(rc); err != nil {
		return core.Result{}, err
	}
	if err := p.Manager.Autoremove(rc); err != nil {
		return core.Result{}, err
	}

	if err := rc.Ledger.RecordApplied(state.ItemPackages, strings.Join(required, " ")); err != nil {
		return core.Result{}, err
	}
	if len(missing) > 0 {
		return core.Applied("installed " + strings.Join(missing, " ")), nil
	}
	return core.Applied("reinstalled full set (forced)"), nil
}

package items

import (
	"fmt"

	"github.com/kioskworks/kioskctl/internal/adapters/service"
	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/state"
)

// Autologin converges two independent sub-targets: the getty override unit
// (content target) and the startx hook in the app user's shell profile
// (append-only line-existence target).
type Autologin struct {
	Settings    *config.Settings
	Services    service.Manager
	UnitPath    string
	ProfilePath string
	GettyUnit   string
}

func NewAutologin(s *config.Settings, svc service.Manager) *Autologin {
	return &Autologin{
		Settings:    s,
		Services:    svc,
		UnitPath:    "/etc/systemd/system/getty@tty1.service.d/autologin.conf",
		ProfilePath: fmt.Sprintf("/home/%s/.bash_profile", s.AppUser),
		GettyUnit:   "getty@tty1",
	}
}

func (a *Autologin) Name() string { return state.ItemAutologin }

func (a *Autologin) Apply(rc *core.RunContext) (core.Result, error) {
	agg := core.NoChange("")

	unitRes, err := contentTarget(rc, a.UnitPath, []byte(a.renderUnit()), 0o644)
	if err != nil {
		return agg, err
	}
	merge(&agg, unitRes, rc)

	if unitRes.Verdict == core.Updated {
		if err := a.Services.DaemonReload(rc); err != nil {
			return agg, err
		}
		if err := a.Services.Enable(rc, a.GettyUnit); err != nil {
			return agg, err
		}
	}

	hookRes, err := appendMarker(rc, a.ProfilePath, a.marker(), a.marker())
	if err != nil {
		return agg, err
	}
	merge(&agg, hookRes, rc)

	if agg.Verdict == core.Updated {
		if err := rc.Ledger.RecordApplied(state.ItemAutologin, a.Settings.AppUser); err != nil {
			return agg, err
		}
	}
	if agg.Verdict == core.Unchanged {
		agg.Message = "autologin configured"
	}
	return agg, nil
}

func (a *Autologin) renderUnit() string {
	return fmt.Sprintf(`[Service]
ExecStart=
ExecStart=-/sbin/agetty --autologin %s --noclear %%I $TERM
`, a.Settings.AppUser)
}

// marker is the exact substring checked for in the shell profile; the hook
// starts X only on the first virtual console.
func (a *Autologin) marker() string {
	return `[ "$(tty)" = "/dev/tty1" ] && exec startx -- -nocursor`
}

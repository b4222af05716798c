package items

import (
	"fmt"

	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/state"
)

// Display converges the display-server init files: the app user's xinit
// script and the X11 device driver config. Two independent content targets.
type Display struct {
	Settings   *config.Settings
	XinitPath  string
	DevicePath string
	ScriptPath string
}

func NewDisplay(s *config.Settings) *Display {
	return &Display{
		Settings:   s,
		XinitPath:  fmt.Sprintf("/home/%s/.xinitrc", s.AppUser),
		DevicePath: "/etc/X11/xorg.conf.d/99-vc4.conf",
		ScriptPath: fmt.Sprintf("/home/%s/start-kiosk.sh", s.AppUser),
	}
}

func (d *Display) Name() string { return state.ItemDisplay }

func (d *Display) Apply(rc *core.RunContext) (core.Result, error) {
	agg := core.NoChange("")

	xinitRes, err := contentTarget(rc, d.XinitPath, []byte(d.renderXinit()), 0o644)
	if err != nil {
		return agg, err
	}
	merge(&agg, xinitRes, rc)

	devRes, err := contentTarget(rc, d.DevicePath, []byte(d.renderDevice()), 0o644)
	if err != nil {
		return agg, err
	}
	merge(&agg, devRes, rc)

	if agg.Verdict == core.Updated {
		if err := rc.Ledger.RecordApplied(state.ItemDisplay, fmt.Sprintf("displays=%d", d.Settings.NumDisplays)); err != nil {
			return agg, err
		}
	}
	if agg.Verdict == core.Unchanged {
		agg.Message = "display server configured"
	}
	return agg, nil
}

func (d *Display) renderXinit() string {
	return fmt.Sprintf(`#!/bin/sh
# Managed by kioskctl. Manual edits are overwritten.
xset s off
xset -dpms
xset s noblank
exec %s
`, d.ScriptPath)
}

func (d *Display) renderDevice() string {
	return `# Managed by kioskctl. Manual edits are overwritten.
Section "OutputClass"
    Identifier "vc4"
    MatchDriver "vc4"
    Driver "modesetting"
    Option "PrimaryGPU" "true"
EndSection
`
}

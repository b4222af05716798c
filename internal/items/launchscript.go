package items

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/state"
)

// launchTemplate renders the autostart script from the display topology and
// payload descriptor. Fully re-derived every run so unrelated manual edits
// are detected as drift and overwritten (with backup).
const launchTemplate = `#!/bin/sh
# Managed by kioskctl. Manual edits are overwritten.
{{- range .Displays }}
{{- if .Enabled }}
xrandr --output {{ .Output }} --mode {{ .Resolution }} --rotate {{ .Rotate | default "normal" }}{{ if .RelativeTo }} --{{ .Position }} {{ .RelativeTo }}{{ end }}
{{- else }}
xrandr --output {{ .Output }} --off
{{- end }}
{{- end }}

cd {{ .InstallDir }}
exec {{ .InstallDir }}/bin/player
`

// LaunchScript converges the generated autostart script. Content target
// against the freshly rendered script.
type LaunchScript struct {
	Settings *config.Settings
	Path     string
}

func NewLaunchScript(s *config.Settings) *LaunchScript {
	return &LaunchScript{
		Settings: s,
		Path:     fmt.Sprintf("/home/%s/start-kiosk.sh", s.AppUser),
	}
}

func (l *LaunchScript) Name() string { return state.ItemLaunchScript }

func (l *LaunchScript) Apply(rc *core.RunContext) (core.Result, error) {
	desired, err := l.Render()
	if err != nil {
		return core.Result{}, err
	}

	res, err := contentTarget(rc, l.Path, []byte(desired), 0o755)
	if err != nil {
		return res, err
	}
	if res.Verdict == core.Updated {
		if out, err := rc.Runner.Run(rc, "chown", l.Settings.AppUser+":"+l.Settings.AppUser, l.Path); err != nil {
			return res, fmt.Errorf("chown %s: %w: %s", l.Path, err, out)
		}
		if err := rc.Ledger.RecordApplied(state.ItemLaunchScript, l.Path); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Render produces the script content from current Settings.
func (l *LaunchScript) Render() (string, error) {
	tmpl, err := template.New("launch").Funcs(sprig.TxtFuncMap()).Parse(launchTemplate)
	if err != nil {
		return "", fmt.Errorf("parse launch template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, l.Settings); err != nil {
		return "", fmt.Errorf("render launch script: %w", err)
	}
	return buf.String(), nil
}

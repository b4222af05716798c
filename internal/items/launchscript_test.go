package items

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kioskworks/kioskctl/internal/core"
)

func testLaunchScript(t *testing.T) *LaunchScript {
	t.Helper()
	l := NewLaunchScript(testSettings())
	l.Path = filepath.Join(t.TempDir(), "start-kiosk.sh")
	return l
}

func TestLaunchScriptRender(t *testing.T) {
	l := testLaunchScript(t)

	got, err := l.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"#!/bin/sh",
		"xrandr --output HDMI-1 --mode 1920x1080 --rotate normal",
		"xrandr --output HDMI-2 --mode 1080x1920 --rotate right --right-of HDMI-1",
		"cd /opt/kiosk",
		"exec /opt/kiosk/bin/player",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("script missing %q:\n%s", want, got)
		}
	}
}

func TestLaunchScriptDisabledOutputTurnedOff(t *testing.T) {
	l := testLaunchScript(t)
	l.Settings.Displays[1].Enabled = false

	got, err := l.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(got, "xrandr --output HDMI-2 --off") {
		t.Errorf("script = %q, want the disabled output switched off", got)
	}
	if strings.Contains(got, "HDMI-2 --mode") {
		t.Error("disabled output must not get a mode line")
	}
}

func TestLaunchScriptApplyAndChown(t *testing.T) {
	rc, runner := testRun(t, false, false)
	l := testLaunchScript(t)

	res, err := l.Apply(rc)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Verdict != core.Updated {
		t.Fatalf("verdict = %v, want Updated", res.Verdict)
	}
	info, err := os.Stat(l.Path)
	if err != nil {
		t.Fatalf("stat script: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want executable", info.Mode().Perm())
	}
	if !runner.Ran("chown kiosk:kiosk") {
		t.Error("script ownership must be handed to the app user")
	}
}

func TestLaunchScriptRotationChangeIsDrift(t *testing.T) {
	rc, _ := testRun(t, false, false)
	l := testLaunchScript(t)

	if _, err := l.Apply(rc); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	res, err := l.Apply(rc)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if res.Verdict != core.Unchanged {
		t.Fatalf("verdict = %v, want Unchanged before the topology change", res.Verdict)
	}

	l.Settings.Displays[1].Rotate = "inverted"
	res, err = l.Apply(rc)
	if err != nil {
		t.Fatalf("apply after rotation change: %v", err)
	}
	if res.Verdict != core.Updated {
		t.Fatalf("verdict = %v, want Updated after rotation change", res.Verdict)
	}
	content, _ := os.ReadFile(l.Path)
	if !strings.Contains(string(content), "--rotate inverted") {
		t.Errorf("script = %q, want the new rotation", content)
	}
}

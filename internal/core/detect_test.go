package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestContentNeedsUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target.conf")

	// Absent target is always update-needed, never an error.
	needs, err := ContentNeedsUpdate(&RealFS{}, path, []byte("desired"))
	if err != nil {
		t.Fatal(err)
	}
	if !needs {
		t.Error("missing file should need update")
	}

	if err := os.WriteFile(path, []byte("desired"), 0o644); err != nil {
		t.Fatal(err)
	}
	needs, err = ContentNeedsUpdate(&RealFS{}, path, []byte("desired"))
	if err != nil {
		t.Fatal(err)
	}
	if needs {
		t.Error("identical content should not need update")
	}

	needs, _ = ContentNeedsUpdate(&RealFS{}, path, []byte("desired\n"))
	if !needs {
		t.Error("byte-level difference should need update")
	}
}

func TestLineMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile")
	if err := os.WriteFile(path, []byte("export PATH\nalias ll='ls -l'\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	missing, err := LineMissing(&RealFS{}, path, "exec startx")
	if err != nil {
		t.Fatal(err)
	}
	if !missing {
		t.Error("marker should be reported missing")
	}

	missing, err = LineMissing(&RealFS{}, path, "alias ll")
	if err != nil {
		t.Fatal(err)
	}
	if missing {
		t.Error("substring match should count as present")
	}
}

func TestScalarNeedsUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.txt")
	content := "# gpu_mem=64\ndisable_overscan=1\ngpu_mem=128\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	needs, err := ScalarNeedsUpdate(&RealFS{}, path, "gpu_mem", "=", "128")
	if err != nil {
		t.Fatal(err)
	}
	if needs {
		t.Error("matching scalar should not need update (comment must be ignored)")
	}

	needs, _ = ScalarNeedsUpdate(&RealFS{}, path, "gpu_mem", "=", "256")
	if !needs {
		t.Error("mismatched scalar should need update")
	}

	needs, _ = ScalarNeedsUpdate(&RealFS{}, path, "arm_freq", "=", "1500")
	if !needs {
		t.Error("absent key should need update")
	}
}

func TestScalarValueLastWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.txt")
	if err := os.WriteFile(path, []byte("gpu_mem=64\ngpu_mem=256\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	v, found, err := ScalarValue(&RealFS{}, path, "gpu_mem", "=")
	if err != nil {
		t.Fatal(err)
	}
	if !found || v != "256" {
		t.Errorf("got %q found=%v, want last occurrence 256", v, found)
	}
}

func TestMissingElementsIsMonotonic(t *testing.T) {
	installed := map[string]bool{"vlc": true, "xserver-xorg": true, "vim": true, "htop": true}

	// Superset of required: nothing missing, extras ignored.
	if m := MissingElements([]string{"vlc", "xserver-xorg"}, installed); len(m) != 0 {
		t.Errorf("expected no missing elements, got %v", m)
	}

	m := MissingElements([]string{"vlc", "chromium"}, installed)
	if len(m) != 1 || m[0] != "chromium" {
		t.Errorf("got %v", m)
	}
}

func TestDecideForceOverride(t *testing.T) {
	rc := NewRunContext(context.Background(), false, false)
	if d := rc.Decide(false, "match"); d.Needs {
		t.Error("unforced converged state should not need update")
	}

	forced := NewRunContext(context.Background(), false, true)
	d := forced.Decide(false, "match")
	if !d.Needs {
		t.Error("force must report update-needed")
	}
	if d.Reason != "forced" {
		t.Errorf("reason = %q", d.Reason)
	}

	// Honest drift keeps its own reason even under force.
	d = forced.Decide(true, "content differs")
	if !d.Needs || d.Reason != "content differs" {
		t.Errorf("got %+v", d)
	}
}

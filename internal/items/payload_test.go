package items

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kioskworks/kioskctl/internal/core"
)

func testPayload(t *testing.T, version string) *Payload {
	t.Helper()
	dir := t.TempDir()
	s := testSettings()
	s.PayloadArchive = filepath.Join(dir, "app.tar.gz")
	s.InstallDir = filepath.Join(dir, "opt", "kiosk")
	writePayloadArchive(t, s.PayloadArchive, version)

	p := NewPayload(s)
	p.UdevPath = filepath.Join(dir, "99-kiosk-input.rules")
	p.LinkPath = filepath.Join(dir, "bin", "kiosk-player")
	return p
}

func TestPayloadAlwaysReapplies(t *testing.T) {
	rc, runner := testRun(t, false, false)
	p := testPayload(t, "v1")

	for run := 1; run <= 2; run++ {
		res, err := p.Apply(rc)
		if err != nil {
			t.Fatalf("apply %d: %v", run, err)
		}
		if res.Verdict != core.Updated {
			t.Fatalf("apply %d verdict = %v, want Updated every run", run, res.Verdict)
		}
	}

	player, err := os.ReadFile(filepath.Join(p.Settings.InstallDir, "bin", "player"))
	if err != nil {
		t.Fatalf("read extracted binary: %v", err)
	}
	if string(player) != "v1" {
		t.Errorf("binary = %q, want archive content", player)
	}
	if !runner.Ran("chown -R kiosk:kiosk") {
		t.Error("extracted tree ownership must go to the app user")
	}
}

func TestPayloadUpgradeTakesEffect(t *testing.T) {
	rc, _ := testRun(t, false, false)
	p := testPayload(t, "v1")

	if _, err := p.Apply(rc); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	writePayloadArchive(t, p.Settings.PayloadArchive, "v2")
	if _, err := p.Apply(rc); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	player, _ := os.ReadFile(filepath.Join(p.Settings.InstallDir, "bin", "player"))
	if string(player) != "v2" {
		t.Errorf("binary = %q, want the upgraded content", player)
	}
}

func TestPayloadSymlink(t *testing.T) {
	rc, _ := testRun(t, false, false)
	p := testPayload(t, "v1")

	// A stale link pointing elsewhere must be replaced.
	if err := os.MkdirAll(filepath.Dir(p.LinkPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/usr/bin/false", p.LinkPath); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Apply(rc); err != nil {
		t.Fatalf("apply: %v", err)
	}

	dest, err := os.Readlink(p.LinkPath)
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	want := filepath.Join(p.Settings.InstallDir, "bin", "player")
	if dest != want {
		t.Errorf("link -> %q, want %q", dest, want)
	}
}

func TestPayloadMissingArchiveIsFatal(t *testing.T) {
	rc, _ := testRun(t, false, false)
	p := testPayload(t, "v1")
	os.Remove(p.Settings.PayloadArchive)

	_, err := p.Apply(rc)
	if err == nil || !strings.Contains(err.Error(), "payload archive not found") {
		t.Fatalf("err = %v, want missing-archive failure", err)
	}
}

func TestPayloadDryRunExtractsNothing(t *testing.T) {
	rc, runner := testRun(t, true, false)
	p := testPayload(t, "v1")

	res, err := p.Apply(rc)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Verdict != core.WouldUpdate {
		t.Fatalf("verdict = %v, want WouldUpdate", res.Verdict)
	}
	if _, err := os.Stat(p.Settings.InstallDir); !os.IsNotExist(err) {
		t.Error("dry-run must not extract the archive")
	}
	if len(runner.Commands) != 0 {
		t.Errorf("dry-run must run no commands, got %v", runner.Commands)
	}
}

// writePayloadArchive builds a minimal tar.gz payload whose bin/player file
// carries version as content.
func writePayloadArchive(t *testing.T, path, version string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	if err := tw.WriteHeader(&tar.Header{
		Name: "bin/", Typeflag: tar.TypeDir, Mode: 0o755,
	}); err != nil {
		t.Fatal(err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name: "bin/player", Typeflag: tar.TypeReg, Mode: 0o755, Size: int64(len(version)),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(version)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
}

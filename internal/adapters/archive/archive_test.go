package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/kioskworks/kioskctl/internal/core"
)

func writeTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for name, content := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o755,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.tar.gz")
	dest := filepath.Join(dir, "install")

	writeTarGz(t, src, map[string]string{
		"bin/player":  "#!/bin/sh\necho player\n",
		"assets/logo": "image-bytes",
	})

	if err := Extract(&core.RealFS{}, src, dest); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "bin", "player"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("echo player")) {
		t.Errorf("player content = %q", data)
	}
}

func TestExtractOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.tar.gz")
	dest := filepath.Join(dir, "install")

	if err := os.MkdirAll(filepath.Join(dest, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "bin", "player"), []byte("old version"), 0o755); err != nil {
		t.Fatal(err)
	}

	writeTarGz(t, src, map[string]string{"bin/player": "new version"})
	if err := Extract(&core.RealFS{}, src, dest); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(filepath.Join(dest, "bin", "player"))
	if string(data) != "new version" {
		t.Errorf("got %q", data)
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, src, map[string]string{"../outside": "nope"})

	if err := Extract(&core.RealFS{}, src, filepath.Join(dir, "install")); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}

func TestExtractMissingArchive(t *testing.T) {
	if err := Extract(&core.RealFS{}, "/does/not/exist.tar.gz", t.TempDir()); err == nil {
		t.Fatal("expected error for missing archive")
	}
}

package pkgmgr

import (
	"context"
	"errors"
	"testing"

	"github.com/kioskworks/kioskctl/internal/core"
)

func TestAptInstalled(t *testing.T) {
	runner := core.NewMockRunner()
	runner.Responses["dpkg-query"] = "vlc\nxserver-xorg\nxinit\n"

	apt := NewApt(runner)
	installed, err := apt.Installed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !installed["vlc"] || !installed["xinit"] {
		t.Errorf("parsed set incomplete: %v", installed)
	}
	if len(installed) != 3 {
		t.Errorf("expected 3 packages, got %d", len(installed))
	}
}

func TestAptInstallRunsUpdateFirst(t *testing.T) {
	runner := core.NewMockRunner()
	apt := NewApt(runner)

	if err := apt.Install(context.Background(), []string{"vlc", "xinit"}); err != nil {
		t.Fatal(err)
	}
	if len(runner.Commands) != 2 {
		t.Fatalf("expected 2 commands, got %v", runner.Commands)
	}
	if runner.Commands[0] != "apt-get update" {
		t.Errorf("first command = %q", runner.Commands[0])
	}
	if runner.Commands[1] != "apt-get install -y vlc xinit" {
		t.Errorf("second command = %q", runner.Commands[1])
	}
}

func TestAptInstallEmptySetIsNoop(t *testing.T) {
	runner := core.NewMockRunner()
	if err := NewApt(runner).Install(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(runner.Commands) != 0 {
		t.Errorf("no commands expected, got %v", runner.Commands)
	}
}

func TestAptInstallError(t *testing.T) {
	runner := core.NewMockRunner()
	runner.Errors["apt-get install"] = errors.New("exit status 100")

	err := NewApt(runner).Install(context.Background(), []string{"vlc"})
	if err == nil {
		t.Fatal("expected error")
	}
}

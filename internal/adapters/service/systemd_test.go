package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kioskworks/kioskctl/internal/core"
)

func TestSystemdIsEnabled(t *testing.T) {
	runner := core.NewMockRunner()
	runner.Responses["systemctl is-enabled dhcpcd"] = "enabled\n"
	runner.Responses["systemctl is-enabled bluetooth"] = "disabled\n"

	sd := NewSystemd(runner)

	enabled, err := sd.IsEnabled(context.Background(), "dhcpcd")
	if err != nil {
		t.Fatal(err)
	}
	if !enabled {
		t.Error("dhcpcd should be enabled")
	}

	enabled, _ = sd.IsEnabled(context.Background(), "bluetooth")
	if enabled {
		t.Error("bluetooth should be disabled")
	}
}

func TestSystemdIsActiveTreatsExitAsState(t *testing.T) {
	runner := core.NewMockRunner()
	runner.Responses["systemctl is-active fail2ban"] = "active\n"
	runner.Errors["systemctl is-active triggerhappy"] = errors.New("exit status 3")

	sd := NewSystemd(runner)

	active, err := sd.IsActive(context.Background(), "fail2ban")
	if err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Error("fail2ban should be active")
	}

	// Non-zero exit from is-active is an answer, not an error.
	active, err = sd.IsActive(context.Background(), "triggerhappy")
	if err != nil {
		t.Fatal(err)
	}
	if active {
		t.Error("triggerhappy should be inactive")
	}
}

func TestSystemdIsMasked(t *testing.T) {
	runner := core.NewMockRunner()
	runner.Responses["systemctl is-enabled dphys-swapfile"] = "masked\n"

	masked, err := NewSystemd(runner).IsMasked(context.Background(), "dphys-swapfile")
	if err != nil {
		t.Fatal(err)
	}
	if !masked {
		t.Error("dphys-swapfile should be masked")
	}
}

func TestSystemdDisableNow(t *testing.T) {
	runner := core.NewMockRunner()
	if err := NewSystemd(runner).DisableNow(context.Background(), "avahi-daemon"); err != nil {
		t.Fatal(err)
	}
	if !runner.Ran("systemctl disable --now avahi-daemon") {
		t.Errorf("unexpected commands: %v", runner.Commands)
	}
}

func TestSystemdErrorIncludesOutput(t *testing.T) {
	runner := core.NewMockRunner()
	runner.Errors["systemctl enable"] = errors.New("exit status 1")

	err := NewSystemd(runner).Enable(context.Background(), "nosuch")
	if err == nil {
		t.Fatal("expected error")
	}
}

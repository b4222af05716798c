package core

import (
	"context"
	"os/exec"
)

// CommandRunner abstracts external command execution so adapters can be
// tested without touching the live system.
type CommandRunner interface {
	// Run executes the command and returns its combined output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// LocalRunner executes commands on the local host via os/exec.
type LocalRunner struct{}

func (r *LocalRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

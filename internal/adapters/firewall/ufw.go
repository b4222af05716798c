// Package firewall wraps ufw behind a capability interface: "ensure rule
// set R is active".
package firewall

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kioskworks/kioskctl/internal/core"
)

// Rule is one allow tuple.
type Rule struct {
	From  string // source network, empty means anywhere
	Port  int
	Proto string // tcp or udp
}

func (r Rule) String() string {
	from := r.From
	if from == "" {
		from = "any"
	}
	return fmt.Sprintf("allow from %s to port %d/%s", from, r.Port, r.Proto)
}

// Manager is the firewall capability consumed by the hardening item.
type Manager interface {
	// Satisfied reports whether the firewall is active and every rule is
	// present. Extra unrelated rules are not a mismatch.
	Satisfied(ctx context.Context, rules []Rule) (bool, error)
	// Apply resets to default-deny incoming / allow outgoing, adds the
	// rules, then enables the firewall.
	Apply(ctx context.Context, rules []Rule) error
}

// UFW implements Manager by shelling out to ufw.
type UFW struct {
	Runner core.CommandRunner
}

func NewUFW(runner core.CommandRunner) *UFW {
	return &UFW{Runner: runner}
}

func (u *UFW) Satisfied(ctx context.Context, rules []Rule) (bool, error) {
	out, err := u.Runner.Run(ctx, "ufw", "status")
	if err != nil {
		return false, fmt.Errorf("ufw status: %w", err)
	}
	status := string(out)
	if !strings.Contains(status, "Status: active") {
		return false, nil
	}
	for _, r := range rules {
		if !ruleListed(status, r) {
			return false, nil
		}
	}
	return true, nil
}

// ruleListed matches one rule against `ufw status` output lines, which look
// like "2222/tcp    ALLOW    192.168.1.0/24".
func ruleListed(status string, r Rule) bool {
	portSpec := strconv.Itoa(r.Port) + "/" + r.Proto
	from := r.From
	if from == "" {
		from = "Anywhere"
	}
	for _, line := range strings.Split(status, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if fields[0] == portSpec && strings.Contains(line, "ALLOW") && fields[len(fields)-1] == from {
			return true
		}
	}
	return false
}

func (u *UFW) Apply(ctx context.Context, rules []Rule) error {
	steps := [][]string{
		{"--force", "reset"},
		{"default", "deny", "incoming"},
		{"default", "allow", "outgoing"},
	}
	for _, r := range rules {
		args := []string{"allow"}
		if r.From != "" {
			args = append(args, "from", r.From, "to", "any", "port", strconv.Itoa(r.Port), "proto", r.Proto)
		} else {
			args = append(args, fmt.Sprintf("%d/%s", r.Port, r.Proto))
		}
		steps = append(steps, args)
	}
	steps = append(steps, []string{"--force", "enable"})

	for _, args := range steps {
		if out, err := u.Runner.Run(ctx, "ufw", args...); err != nil {
			return fmt.Errorf("ufw %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

package items

import (
	"fmt"
	"strings"

	"github.com/kioskworks/kioskctl/internal/adapters/service"
	"github.com/kioskworks/kioskctl/internal/config"
	"github.com/kioskworks/kioskctl/internal/core"
	"github.com/kioskworks/kioskctl/internal/state"
)

// Network converges the static network profile. Whole-file content target:
// the profile is fully owned by this tool, manual edits are drift.
type Network struct {
	Settings *config.Settings
	Services service.Manager
	Path     string
	Unit     string
}

func NewNetwork(s *config.Settings, svc service.Manager) *Network {
	return &Network{
		Settings: s,
		Services: svc,
		Path:     "/etc/dhcpcd.conf",
		Unit:     "dhcpcd",
	}
}

func (n *Network) Name() string { return state.ItemNetwork }

func (n *Network) Apply(rc *core.RunContext) (core.Result, error) {
	desired := n.render()

	res, err := contentTarget(rc, n.Path, []byte(desired), 0o644)
	if err != nil {
		return res, err
	}

	if res.Verdict == core.Updated {
		// A rewritten profile only takes effect once dhcpcd picks it up.
		res.Reboot = true

		// Separately idempotent: only act when the unit is not already
		// enabled.
		enabled, err := n.Services.IsEnabled(rc, n.Unit)
		if err != nil {
			return res, err
		}
		if !enabled {
			if err := n.Services.Enable(rc, n.Unit); err != nil {
				return res, fmt.Errorf("enable %s: %w", n.Unit, err)
			}
		}

		if err := rc.Ledger.RecordApplied(state.ItemNetwork, n.Settings.StaticIP); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (n *Network) render() string {
	var b strings.Builder
	b.WriteString("# Managed by kioskctl. Manual edits are overwritten.\n")
	b.WriteString("hostname\n")
	b.WriteString("clientid\n")
	b.WriteString("persistent\n")
	b.WriteString("option rapid_commit\n")
	b.WriteString("option domain_name_servers, domain_name, domain_search, host_name\n")
	b.WriteString("require dhcp_server_identifier\n")
	b.WriteString("slaac private\n\n")
	fmt.Fprintf(&b, "interface %s\n", n.Settings.Interface)
	fmt.Fprintf(&b, "static ip_address=%s/%d\n", n.Settings.StaticIP, n.Settings.SubnetPrefix)
	fmt.Fprintf(&b, "static routers=%s\n", n.Settings.Gateway)
	fmt.Fprintf(&b, "static domain_name_servers=%s\n", strings.Join(n.Settings.DNSServers, " "))
	return b.String()
}

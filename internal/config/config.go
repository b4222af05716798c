package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Display describes one output of the appliance's display topology.
type Display struct {
	Output     string
	Resolution string
	Rotate     string
	Enabled    bool
	Position   string // right-of, left-of, above, below
	RelativeTo string // output this display is positioned against
}

// Settings is the immutable desired-state snapshot for one reconciliation
// run. Loaded once at startup, never mutated.
type Settings struct {
	// Network identity
	Interface    string
	StaticIP     string
	SubnetPrefix int
	Gateway      string
	DNSServers   []string

	// SSH policy
	SSHPort              int
	SSHUser              string
	SSHAllowedNetwork    string
	SSHAgentForwarding   bool
	SSHTCPForwarding     bool

	// Package set (order irrelevant)
	Packages []string

	// Boot parameters
	GPUMem      int
	CMASize     int
	DisableWifi bool
	DisableBT   bool
	DisableIPv6 bool

	// Display topology; exactly NumDisplays descriptors are consulted.
	NumDisplays int
	Displays    []Display

	// Application payload
	PayloadArchive string
	InstallDir     string
	AppUser        string

	// Firewall / hardening
	AllowedNetwork   string
	FirewallTCPPorts []int
	Swappiness       int
	RebootOnChange   bool
}

var validRotations = map[string]bool{
	"normal": true, "left": true, "right": true, "inverted": true,
}

var validPositions = map[string]bool{
	"right-of": true, "left-of": true, "above": true, "below": true,
}

// Load parses the flat key=value settings file into a Settings snapshot.
// A missing file is a fatal startup error for the caller.
func Load(path string) (*Settings, error) {
	kv, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	return parse(kv)
}

func parse(kv map[string]string) (*Settings, error) {
	p := &parser{kv: kv}

	s := &Settings{
		Interface:          p.str("NETWORK_INTERFACE", "eth0"),
		StaticIP:           p.str("STATIC_IP", ""),
		SubnetPrefix:       p.num("SUBNET_PREFIX", 24),
		Gateway:            p.str("GATEWAY", ""),
		DNSServers:         p.list("DNS_SERVERS", "1.1.1.1 8.8.8.8"),
		SSHPort:            p.num("SSH_PORT", 22),
		SSHUser:            p.str("SSH_USER", ""),
		SSHAllowedNetwork:  p.str("SSH_ALLOWED_NETWORK", ""),
		SSHAgentForwarding: p.flag("SSH_ALLOW_AGENT_FORWARDING", false),
		SSHTCPForwarding:   p.flag("SSH_ALLOW_TCP_FORWARDING", false),
		Packages:           p.list("PACKAGES", ""),
		GPUMem:             p.num("GPU_MEM", 256),
		CMASize:            p.num("CMA_SIZE", 512),
		DisableWifi:        p.flag("DISABLE_WIFI", true),
		DisableBT:          p.flag("DISABLE_BT", true),
		DisableIPv6:        p.flag("DISABLE_IPV6", true),
		NumDisplays:        p.num("NUM_DISPLAYS", 1),
		PayloadArchive:     p.str("PAYLOAD_ARCHIVE", ""),
		InstallDir:         p.str("INSTALL_DIR", "/opt/kiosk"),
		AppUser:            p.str("APP_USER", ""),
		AllowedNetwork:     p.str("ALLOWED_NETWORK", ""),
		Swappiness:         p.num("SWAPPINESS", 1),
		RebootOnChange:     p.flag("REBOOT_ON_CHANGE", true),
	}

	for _, port := range p.list("FIREWALL_TCP_PORTS", "") {
		n, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("FIREWALL_TCP_PORTS: invalid port %q", port)
		}
		s.FirewallTCPPorts = append(s.FirewallTCPPorts, n)
	}

	// Only the first NumDisplays descriptors are consulted; later ones are
	// ignored even if present in the file.
	for i := 1; i <= s.NumDisplays; i++ {
		d := Display{
			Output:     p.str(fmt.Sprintf("DISPLAY%d_OUTPUT", i), ""),
			Resolution: p.str(fmt.Sprintf("DISPLAY%d_RESOLUTION", i), "1920x1080"),
			Rotate:     p.str(fmt.Sprintf("DISPLAY%d_ROTATE", i), "normal"),
			Enabled:    p.flag(fmt.Sprintf("DISPLAY%d_ENABLED", i), true),
			Position:   p.str(fmt.Sprintf("DISPLAY%d_POSITION", i), ""),
			RelativeTo: p.str(fmt.Sprintf("DISPLAY%d_RELATIVE_TO", i), ""),
		}
		s.Displays = append(s.Displays, d)
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.StaticIP == "" {
		return fmt.Errorf("STATIC_IP is required")
	}
	if s.Gateway == "" {
		return fmt.Errorf("GATEWAY is required")
	}
	if s.SSHUser == "" {
		return fmt.Errorf("SSH_USER is required")
	}
	if s.AppUser == "" {
		return fmt.Errorf("APP_USER is required")
	}
	if s.PayloadArchive == "" {
		return fmt.Errorf("PAYLOAD_ARCHIVE is required")
	}
	if s.NumDisplays < 1 || s.NumDisplays > 3 {
		return fmt.Errorf("NUM_DISPLAYS must be between 1 and 3, got %d", s.NumDisplays)
	}
	if s.SSHPort < 1 || s.SSHPort > 65535 {
		return fmt.Errorf("SSH_PORT out of range: %d", s.SSHPort)
	}
	for i, d := range s.Displays {
		if d.Output == "" {
			return fmt.Errorf("DISPLAY%d_OUTPUT is required", i+1)
		}
		if !validRotations[d.Rotate] {
			return fmt.Errorf("DISPLAY%d_ROTATE: unknown rotation %q", i+1, d.Rotate)
		}
		if d.Position != "" && !validPositions[d.Position] {
			return fmt.Errorf("DISPLAY%d_POSITION: unknown position %q", i+1, d.Position)
		}
		if d.Position != "" && d.RelativeTo == "" {
			return fmt.Errorf("DISPLAY%d_RELATIVE_TO is required when a position is set", i+1)
		}
	}
	return nil
}

// parser accumulates the first conversion error instead of returning one per
// field, keeping the Load call site flat.
type parser struct {
	kv  map[string]string
	err error
}

func (p *parser) str(key, def string) string {
	if v, ok := p.kv[key]; ok && v != "" {
		return v
	}
	return def
}

func (p *parser) num(key string, def int) int {
	v, ok := p.kv[key]
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: expected integer, got %q", key, v)
	}
	return n
}

func (p *parser) flag(key string, def bool) bool {
	v, ok := p.kv[key]
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: expected boolean, got %q", key, v)
	}
	return b
}

func (p *parser) list(key, def string) []string {
	v, ok := p.kv[key]
	if !ok || v == "" {
		v = def
	}
	return strings.Fields(v)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/muurk/wrtpresence/internal/wrt"
)

const (
	// CurrentVersion is the config file schema version
	CurrentVersion = 1

	// DefaultHTTPTimeout bounds each web UI request
	DefaultHTTPTimeout = 4 * time.Second

	// DefaultCommandTimeout bounds SSH/Telnet login and each shell command
	DefaultCommandTimeout = 10 * time.Second

	// DefaultMinInterval is the minimum time between two real scans
	DefaultMinInterval = 5 * time.Second
)

// interfacePattern restricts interface names, which are substituted into
// shell commands
var interfacePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// DefaultInterfaces are the wireless interfaces queried with `wl assoclist`
var DefaultInterfaces = []string{"eth1", "eth2"}

// Config represents the entire configuration file.
type Config struct {
	Version int                `yaml:"version"`
	Scan    ScanSettings       `yaml:"scan"`
	Devices map[string]*Device `yaml:"devices"` // Keyed by a user-chosen device name
}

// ScanSettings tune polling behaviour shared by all devices.
type ScanSettings struct {
	MinInterval    time.Duration `yaml:"min_interval"`    // Scans closer together return the last result; negative disables
	HTTPTimeout    time.Duration `yaml:"http_timeout"`    // Per-request timeout for the web UI
	CommandTimeout time.Duration `yaml:"command_timeout"` // Login and per-command timeout for ssh/telnet
}

// Device is one router or access point as written in the config file.
type Device struct {
	Host       string   `yaml:"host"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password,omitempty"` // Mutually exclusive with SSHKey
	SSHKey     string   `yaml:"ssh_key,omitempty"`  // Path to a private key file
	Protocol   string   `yaml:"protocol,omitempty"` // http (default), ssh or telnet
	Mode       string   `yaml:"mode,omitempty"`     // router (default) or ap
	Port       int      `yaml:"port,omitempty"`     // Defaults per protocol
	APs        []string `yaml:"aps,omitempty"`      // Companion access points polled through this device's credentials
	Interfaces []string `yaml:"interfaces,omitempty"`
	KnownHosts string   `yaml:"known_hosts,omitempty"` // known_hosts file for ssh host key checks
}

// New creates a Config with default values and no devices.
func New() *Config {
	c := &Config{
		Version: CurrentVersion,
		Devices: make(map[string]*Device),
	}
	c.applyDefaults()
	return c
}

// applyDefaults fills unset fields. It never overrides explicit values.
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	if c.Devices == nil {
		c.Devices = make(map[string]*Device)
	}
	if c.Scan.HTTPTimeout == 0 {
		c.Scan.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.Scan.CommandTimeout == 0 {
		c.Scan.CommandTimeout = DefaultCommandTimeout
	}
	if c.Scan.MinInterval == 0 {
		c.Scan.MinInterval = DefaultMinInterval
	}
	for _, d := range c.Devices {
		if d != nil {
			d.applyDefaults()
		}
	}
}

func (d *Device) applyDefaults() {
	if d.Protocol == "" {
		d.Protocol = string(wrt.ProtocolHTTP)
	}
	if d.Mode == "" {
		d.Mode = string(wrt.ModeRouter)
	}
	if d.Port == 0 {
		if p, err := wrt.ParseProtocol(d.Protocol); err == nil {
			d.Port = p.DefaultPort()
		}
	}
	if len(d.Interfaces) == 0 {
		d.Interfaces = append([]string(nil), DefaultInterfaces...)
	}
}

// Names returns the device names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Devices))
	for name := range c.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the whole configuration. All problems are reported as
// configuration errors before any network I/O happens.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return wrt.NewConfigurationError(fmt.Sprintf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion))
	}
	if len(c.Devices) == 0 {
		return wrt.NewConfigurationError("no devices configured")
	}
	if c.Scan.HTTPTimeout < 0 || c.Scan.CommandTimeout < 0 {
		return wrt.NewConfigurationError("scan timeouts must not be negative")
	}
	for _, name := range c.Names() {
		if err := c.Devices[name].Validate(name); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single device entry.
func (d *Device) Validate(name string) error {
	fail := func(format string, args ...any) error {
		return wrt.NewConfigurationError(fmt.Sprintf("device %q: ", name) + fmt.Sprintf(format, args...))
	}

	if d == nil {
		return fail("empty device entry")
	}
	if strings.TrimSpace(d.Host) == "" {
		return fail("host is required")
	}
	if strings.TrimSpace(d.Username) == "" {
		return fail("username is required")
	}
	if d.Password != "" && d.SSHKey != "" {
		return fail("password and ssh_key are mutually exclusive")
	}

	protocol, err := wrt.ParseProtocol(d.Protocol)
	if err != nil {
		return fail("%v", err)
	}
	if _, err := wrt.ParseMode(d.Mode); err != nil {
		return fail("%v", err)
	}

	switch protocol {
	case wrt.ProtocolSSH:
		if d.Password == "" && d.SSHKey == "" {
			return fail("no password or private key specified")
		}
	default:
		if d.SSHKey != "" {
			return fail("ssh_key is only supported with protocol ssh")
		}
		if d.Password == "" {
			return fail("no password specified")
		}
	}

	if d.SSHKey != "" {
		info, err := os.Stat(ExpandHome(d.SSHKey))
		if err != nil {
			return fail("ssh_key %s: %v", d.SSHKey, err)
		}
		if info.IsDir() {
			return fail("ssh_key %s is a directory", d.SSHKey)
		}
	}

	if d.Port < 0 || d.Port > 65535 {
		return fail("port %d out of range", d.Port)
	}

	for _, iface := range d.Interfaces {
		if !interfacePattern.MatchString(iface) {
			return fail("invalid interface name %q", iface)
		}
	}

	for _, ap := range d.APs {
		if strings.TrimSpace(ap) == "" {
			return fail("empty access point host")
		}
	}
	return nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

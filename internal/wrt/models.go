package wrt

import (
	"fmt"
	"sort"
	"strings"
)

// Protocol is the transport used to reach a router
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolSSH    Protocol = "ssh"
	ProtocolTelnet Protocol = "telnet"
)

// ParseProtocol converts a config string to a Protocol. Empty means http.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "http":
		return ProtocolHTTP, nil
	case "ssh":
		return ProtocolSSH, nil
	case "telnet":
		return ProtocolTelnet, nil
	default:
		return "", NewConfigurationError(fmt.Sprintf("unknown protocol %q (expected http, ssh or telnet)", s))
	}
}

// DefaultPort returns the conventional port for the protocol
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolSSH:
		return 22
	case ProtocolTelnet:
		return 23
	default:
		return 80
	}
}

// Mode is the role a device plays on the network
type Mode string

const (
	// ModeRouter devices run DHCP and can resolve hostnames
	ModeRouter Mode = "router"
	// ModeAP devices only bridge wireless clients
	ModeAP Mode = "ap"
)

// ParseMode converts a config string to a Mode. Empty means router.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "router":
		return ModeRouter, nil
	case "ap":
		return ModeAP, nil
	default:
		return "", NewConfigurationError(fmt.Sprintf("unknown mode %q (expected router or ap)", s))
	}
}

// Operation selects which data set a transport fetches
type Operation int

const (
	// OpLeases fetches the DHCP lease table
	OpLeases Operation = iota
	// OpWireless fetches the associated wireless clients
	OpWireless
)

func (op Operation) String() string {
	switch op {
	case OpLeases:
		return "leases"
	case OpWireless:
		return "wireless"
	default:
		return fmt.Sprintf("Operation(%d)", int(op))
	}
}

// Status is the connectivity of one polled host as seen by the tracker
type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Attribute keys carried in DeviceRecord.Attributes
const (
	AttrIP           = "ip"
	AttrLeaseExpires = "lease_expires"
	AttrVendor       = "vendor"
	AttrSource       = "source"
)

// DeviceRecord is a client device known from a lease table. Identity is MAC.
type DeviceRecord struct {
	// MAC is lowercase, colon separated, six two-digit octets
	MAC string `json:"mac"`

	// Hostname may be empty when the lease carries no name
	Hostname string `json:"hostname,omitempty"`

	// Attributes holds the fixed set of Attr* keys
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attr returns an attribute value, or "" when absent
func (d DeviceRecord) Attr(key string) string {
	if d.Attributes == nil {
		return ""
	}
	return d.Attributes[key]
}

// SetAttr sets an attribute, ignoring empty values
func (d *DeviceRecord) SetAttr(key, value string) {
	if value == "" {
		return
	}
	if d.Attributes == nil {
		d.Attributes = make(map[string]string)
	}
	d.Attributes[key] = value
}

// String returns a human-readable representation
func (d DeviceRecord) String() string {
	if d.Hostname == "" {
		return d.MAC
	}
	return fmt.Sprintf("%s (%s)", d.Hostname, d.MAC)
}

// SortedMACs returns the keys of a lease map in sorted order
func SortedMACs(records map[string]DeviceRecord) []string {
	macs := make([]string, 0, len(records))
	for mac := range records {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs
}

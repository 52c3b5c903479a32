package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wrtpresence/internal/wrt"
)

const (
	// DefaultHTTPTimeout bounds a single web UI request
	DefaultHTTPTimeout = 4 * time.Second

	// DefaultCommandTimeout bounds a login or a single shell command
	DefaultCommandTimeout = 10 * time.Second

	// maxPayloadBytes caps how much of a response is read
	maxPayloadBytes = 1 << 20
)

// Transport fetches raw data sets from a router. Implementations are chosen
// once per session and never switched.
type Transport interface {
	// Fetch returns the raw payload for op from host. Failures are *wrt.Error.
	Fetch(ctx context.Context, host string, op wrt.Operation) ([]byte, error)

	// Close releases any persistent connections.
	Close() error
}

// Options configure a transport. Zero values fall back to defaults.
type Options struct {
	Username string
	Password string

	// KeyFile is a private key path (ssh only). Mutually exclusive with Password.
	KeyFile string

	// Port applies to every host the transport talks to. 0 means the protocol default.
	Port int

	// Timeout bounds each request (http) or login/command (ssh, telnet)
	Timeout time.Duration

	// Interfaces are the wireless interfaces queried over ssh/telnet
	Interfaces []string

	// KnownHosts is a known_hosts file for ssh host key verification.
	// Empty disables verification (typical for LAN routers).
	KnownHosts string

	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) timeout(def time.Duration) time.Duration {
	if o.Timeout <= 0 {
		return def
	}
	return o.Timeout
}

// New creates the transport for protocol.
func New(protocol wrt.Protocol, opts Options) (Transport, error) {
	switch protocol {
	case wrt.ProtocolHTTP:
		return NewHTTPClient(opts), nil
	case wrt.ProtocolSSH:
		client, err := NewSSHClient(opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	case wrt.ProtocolTelnet:
		return NewTelnetClient(opts), nil
	default:
		return nil, wrt.NewConfigurationError(fmt.Sprintf("unsupported protocol %q", protocol))
	}
}

// Shell commands run over ssh and telnet. DD-WRT keeps leases in /tmp,
// AsusWRT in /var/lib/misc; whichever exists is read.
const leasesCommand = `cat /tmp/dnsmasq.leases /var/lib/misc/dnsmasq.leases 2>/dev/null | awk '{print $2","$4","$3","$1}'`

// WirelessCommand lists associated client MACs, one per line, for each interface.
func WirelessCommand(interfaces []string) string {
	if len(interfaces) == 0 {
		interfaces = []string{"eth1", "eth2"}
	}
	parts := make([]string, 0, len(interfaces))
	for _, iface := range interfaces {
		parts = append(parts, fmt.Sprintf("wl -i %s assoclist 2>/dev/null | awk '{print $2}'", iface))
	}
	return strings.Join(parts, " ; ")
}

// LeasesCommand prints one lease per line as mac,hostname,ip,expiry.
func LeasesCommand() string {
	return leasesCommand
}

// shellCommand maps an operation to its shell command
func shellCommand(op wrt.Operation, interfaces []string) (string, error) {
	switch op {
	case wrt.OpLeases:
		return LeasesCommand(), nil
	case wrt.OpWireless:
		return WirelessCommand(interfaces), nil
	default:
		return "", fmt.Errorf("unsupported operation %v", op)
	}
}

// hostPort appends port to host unless host already carries one
func hostPort(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil || port == 0 {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}

package router

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/wrtpresence/internal/parser"
	"github.com/muurk/wrtpresence/internal/transport"
	"github.com/muurk/wrtpresence/internal/wrt"
)

// State is the lifecycle position of a Session
type State int

const (
	StateUninitialized State = iota
	StateProbing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateProbing:
		return "probing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config describes one configured device. It is fixed for the life of the session.
type Config struct {
	// Name is the user-chosen device name from the config file
	Name string

	// Host is the primary host polled for wireless clients and leases
	Host string

	Protocol wrt.Protocol
	Mode     wrt.Mode

	// APs are companion access points polled for wireless clients only
	APs []string
}

// Hosts returns the primary host followed by the companion APs
func (c Config) Hosts() []string {
	hosts := make([]string, 0, 1+len(c.APs))
	hosts = append(hosts, c.Host)
	return append(hosts, c.APs...)
}

// Session polls one configured device through a single transport.
// Operations are serialized: a session never has two requests in flight.
type Session struct {
	config    Config
	transport transport.Transport
	logger    *zap.Logger

	mu       sync.Mutex
	state    State
	probeErr error
}

// New creates a session in StateUninitialized. The transport is owned by the
// session from here on and released by Close.
func New(config Config, tr transport.Transport, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		config:    config,
		transport: tr,
		logger:    logger.With(zap.String("device", config.Name)),
		state:     StateUninitialized,
	}
}

// Name returns the configured device name
func (s *Session) Name() string {
	return s.config.Name
}

// Config returns the session's device configuration
func (s *Session) Config() Config {
	return s.config
}

// Mode returns router or ap
func (s *Session) Mode() wrt.Mode {
	return s.config.Mode
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Probe validates connectivity and credentials against the primary host.
// The wireless list is fetched, plus the lease table in router mode. Any
// transport failure moves the session to StateFailed for good. An empty
// wireless list is accepted: a router with no associated clients is healthy.
func (s *Session) Probe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReady:
		return nil
	case StateFailed:
		return s.probeErr
	}

	s.state = StateProbing
	s.logger.Debug("Probing router", zap.String("host", s.config.Host), zap.String("protocol", string(s.config.Protocol)))

	err := s.probe(ctx)
	if err != nil {
		s.state = StateFailed
		s.probeErr = err
		s.logger.Error("Router probe failed", zap.String("host", s.config.Host), zap.Error(err))
		return err
	}

	s.state = StateReady
	s.logger.Info("Router session ready", zap.String("host", s.config.Host), zap.String("mode", string(s.config.Mode)))
	return nil
}

func (s *Session) probe(ctx context.Context) error {
	if _, err := s.fetchWireless(ctx, s.config.Host); err != nil && !wrt.IsNoDataError(err) {
		return err
	}
	if s.config.Mode == wrt.ModeRouter {
		if _, err := s.fetchLeases(ctx); err != nil && !wrt.IsNoDataError(err) {
			return err
		}
	}
	return nil
}

// ActiveClients fetches the wireless client list from the primary host and
// every companion AP, in order. A failing host is recorded in its
// HostResult and never discards the results of the others.
func (s *Session) ActiveClients(ctx context.Context) (*ClientReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady(); err != nil {
		return nil, err
	}

	report := &ClientReport{Device: s.config.Name}
	for _, host := range s.config.Hosts() {
		macs, err := s.fetchWireless(ctx, host)
		if err != nil {
			s.logger.Debug("Wireless poll failed", zap.String("host", host), zap.Error(err))
		}
		report.Results = append(report.Results, HostResult{Host: host, MACs: macs, Err: err})
	}
	return report, nil
}

// Leases returns the DHCP lease table of the primary host. Access points own
// no DHCP state: in ap mode the result is empty and no request is made.
func (s *Session) Leases(ctx context.Context) (map[string]wrt.DeviceRecord, error) {
	if s.config.Mode != wrt.ModeRouter {
		return map[string]wrt.DeviceRecord{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady(); err != nil {
		return nil, err
	}
	return s.fetchLeases(ctx)
}

// Close releases the transport
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport.Close()
}

func (s *Session) requireReady() error {
	if s.state != StateReady {
		return wrt.NewConfigurationError(fmt.Sprintf("device %q is %s, not ready", s.config.Name, s.state))
	}
	return nil
}

func (s *Session) fetchWireless(ctx context.Context, host string) ([]string, error) {
	payload, err := s.transport.Fetch(ctx, host, wrt.OpWireless)
	if err != nil {
		return nil, err
	}

	if s.config.Protocol != wrt.ProtocolHTTP {
		return parser.ParseMACLines(string(payload)), nil
	}

	tokens := parser.ParseDataTokens(string(payload))
	macs, ok := parser.ParseWirelessClients(tokens[parser.KeyActiveWireless])
	if !ok {
		return nil, wrt.NewNoDataError(host, "No active clients received")
	}
	return macs, nil
}

func (s *Session) fetchLeases(ctx context.Context) (map[string]wrt.DeviceRecord, error) {
	host := s.config.Host
	payload, err := s.transport.Fetch(ctx, host, wrt.OpLeases)
	if err != nil {
		return nil, err
	}

	var records map[string]wrt.DeviceRecord
	if s.config.Protocol == wrt.ProtocolHTTP {
		leases, ok := parser.ParseDataTokens(string(payload))[parser.KeyDHCPLeases]
		if !ok {
			return nil, wrt.NewNoDataError(host, "Can't find any active leases")
		}
		records = parser.ParseHTTPLeases(leases)
	} else {
		records = parser.ParseSSHLeases(string(payload))
	}

	for mac, record := range records {
		record.SetAttr(wrt.AttrVendor, wrt.Vendor(mac))
		record.SetAttr(wrt.AttrSource, s.config.Name)
		records[mac] = record
	}
	s.logger.Debug("Parsed leases", zap.Int("count", len(records)))
	return records, nil
}

package tracker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/wrtpresence/internal/config"
	"github.com/muurk/wrtpresence/internal/router"
	"github.com/muurk/wrtpresence/internal/transport"
	"github.com/muurk/wrtpresence/internal/wrt"
)

// DeviceError is a setup failure of one configured device
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// NewSession builds the session for one configured device. The transport
// is chosen here from the device protocol and never changes afterwards.
func NewSession(name string, d *config.Device, scan config.ScanSettings, logger *zap.Logger) (*router.Session, error) {
	if err := d.Validate(name); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	protocol, err := wrt.ParseProtocol(d.Protocol)
	if err != nil {
		return nil, err
	}
	mode, err := wrt.ParseMode(d.Mode)
	if err != nil {
		return nil, err
	}

	timeout := scan.CommandTimeout
	if protocol == wrt.ProtocolHTTP {
		timeout = scan.HTTPTimeout
	}

	var keyFile, knownHosts string
	if d.SSHKey != "" {
		keyFile = config.ExpandHome(d.SSHKey)
	}
	if d.KnownHosts != "" {
		knownHosts = config.ExpandHome(d.KnownHosts)
	}

	tr, err := transport.New(protocol, transport.Options{
		Username:   d.Username,
		Password:   d.Password,
		KeyFile:    keyFile,
		Port:       d.Port,
		Timeout:    timeout,
		Interfaces: d.Interfaces,
		KnownHosts: knownHosts,
		Logger:     logger.Named("transport").With(zap.String("device", name)),
	})
	if err != nil {
		return nil, err
	}

	return router.New(router.Config{
		Name:     name,
		Host:     d.Host,
		Protocol: protocol,
		Mode:     mode,
		APs:      append([]string(nil), d.APs...),
	}, tr, logger.Named("router")), nil
}

// Setup builds and probes a session for every configured device, in
// parallel. A device that fails is recorded in Tracker.Failures and left
// out; the others proceed. The error is non-nil only for an invalid
// configuration, in which case no network I/O has happened.
func Setup(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	names := cfg.Names()
	sessions := make([]*router.Session, len(names))
	for i, name := range names {
		s, err := NewSession(name, cfg.Devices[name], cfg.Scan, logger)
		if err != nil {
			return nil, err
		}
		sessions[i] = s
	}

	probeErrs := make([]error, len(sessions))
	var g errgroup.Group
	for i, s := range sessions {
		i, s := i, s
		g.Go(func() error {
			probeErrs[i] = s.Probe(ctx)
			return nil
		})
	}
	_ = g.Wait()

	t := New(sessions, Options{MinInterval: cfg.Scan.MinInterval, Logger: logger.Named("tracker")})
	for i, err := range probeErrs {
		if err == nil {
			continue
		}
		name := names[i]
		t.failed[name] = &DeviceError{Device: name, Err: err}
		_ = sessions[i].Close()
		logger.Error("Device setup failed", zap.String("device", name), zap.String("hint", wrt.ShortMessage(err)))
	}

	logger.Info("Setup complete",
		zap.Int("devices", len(names)),
		zap.Int("ready", len(t.sessions)),
		zap.Duration("min_interval", cfg.Scan.MinInterval))
	return t, nil
}

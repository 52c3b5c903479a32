package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/wrtpresence/internal/hostcache"
	"github.com/muurk/wrtpresence/internal/logging"
	"github.com/muurk/wrtpresence/internal/router"
	"github.com/muurk/wrtpresence/internal/wrt"
)

// Options tune a Tracker
type Options struct {
	// MinInterval is the minimum time between two real scans. A Scan
	// inside the interval returns the previous result without I/O.
	// Zero or negative disables throttling.
	MinInterval time.Duration

	Logger *zap.Logger
}

// HostStatus is the connectivity of one polled host
type HostStatus struct {
	Device    string     `json:"device"`
	Host      string     `json:"host"`
	Primary   bool       `json:"primary"`
	Status    wrt.Status `json:"-"`
	State     string     `json:"status"`
	Since     *time.Time `json:"since,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Clients   int        `json:"clients"`
}

type hostKey struct {
	device string
	host   string
}

// Tracker coordinates scans across all ready sessions. It owns the
// per-host status table and the hostname cache.
type Tracker struct {
	sessions    []*router.Session
	cache       *hostcache.Cache
	minInterval time.Duration
	logger      *zap.Logger
	now         func() time.Time

	// Devices that failed setup, by name
	failed map[string]error

	mu     sync.Mutex
	status map[hostKey]*HostStatus

	scanMu     sync.Mutex
	lastScan   time.Time
	lastResult []string

	events broker
}

// New creates a tracker over sessions. Only sessions in StateReady are
// polled; their primary host starts ONLINE since the probe just reached it.
func New(sessions []*router.Session, opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracker{
		minInterval: opts.MinInterval,
		logger:      logger,
		now:         time.Now,
		failed:      make(map[string]error),
		status:      make(map[hostKey]*HostStatus),
	}

	now := t.now()
	for _, s := range sessions {
		if s.State() != router.StateReady {
			continue
		}
		t.sessions = append(t.sessions, s)
		for i, host := range s.Config().Hosts() {
			hs := &HostStatus{Device: s.Name(), Host: host, Primary: i == 0, Status: wrt.StatusUnknown}
			if i == 0 {
				hs.Status = wrt.StatusOnline
				hs.Since = stamp(now)
			}
			hs.State = hs.Status.String()
			t.status[hostKey{s.Name(), host}] = hs
		}
	}

	t.cache = hostcache.New(t.leaseSources, logger.Named("hostcache"))
	return t
}

// leaseSources returns the router-mode sessions whose primary host is ONLINE
func (t *Tracker) leaseSources() []hostcache.LeaseSource {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sources []hostcache.LeaseSource
	for _, s := range t.sessions {
		if s.Mode() != wrt.ModeRouter {
			continue
		}
		if hs := t.status[hostKey{s.Name(), s.Config().Host}]; hs != nil && hs.Status == wrt.StatusOnline {
			sources = append(sources, s)
		}
	}
	return sources
}

// Sessions returns the polled sessions in configuration order
func (t *Tracker) Sessions() []*router.Session {
	return append([]*router.Session(nil), t.sessions...)
}

// Failures returns the devices that failed setup and why
func (t *Tracker) Failures() map[string]error {
	out := make(map[string]error, len(t.failed))
	for name, err := range t.failed {
		out[name] = err
	}
	return out
}

// Cache returns the hostname cache
func (t *Tracker) Cache() *hostcache.Cache {
	return t.cache
}

// Scan polls every session concurrently and returns the merged, sorted,
// de-duplicated set of associated client MACs. Host failures are absorbed
// into the status table; Scan itself never fails.
func (t *Tracker) Scan(ctx context.Context) []string {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()

	if t.minInterval > 0 && !t.lastScan.IsZero() && t.now().Sub(t.lastScan) < t.minInterval {
		t.logger.Debug("Scan throttled, returning previous result", zap.Duration("min_interval", t.minInterval))
		return append([]string(nil), t.lastResult...)
	}

	t.logger.Debug("Scanning devices")
	reports := make([]*router.ClientReport, len(t.sessions))

	var g errgroup.Group
	for i, s := range t.sessions {
		i, s := i, s
		g.Go(func() error {
			report, err := s.ActiveClients(ctx)
			if err != nil {
				t.logger.Warn("Session not pollable", zap.String("device", s.Name()), zap.Error(err))
				return nil
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	// Errors after ctx ended are not router failures; status and the
	// throttle state stay as they were
	cancelled := ctx.Err() != nil

	seen := make(map[string]bool)
	result := []string{}
	for _, report := range reports {
		if report == nil {
			continue
		}
		for _, hr := range report.Results {
			if hr.Err != nil && cancelled {
				continue
			}
			t.record(report.Device, hr)
			if hr.Err != nil {
				continue
			}
			for _, mac := range hr.MACs {
				if !seen[mac] {
					seen[mac] = true
					result = append(result, mac)
				}
			}
		}
	}
	sort.Strings(result)

	if cancelled {
		t.logger.Debug("Scan cancelled", zap.Error(ctx.Err()), zap.Int("clients", len(result)))
		return result
	}

	t.lastScan = t.now()
	t.lastResult = result

	t.events.publish(Event{Type: EventScan, Time: t.lastScan, MACs: append([]string(nil), result...)})
	t.logger.Debug("Scan complete", zap.Int("clients", len(result)))
	return append([]string(nil), result...)
}

// record applies one host result to the status table, emitting a
// transition notice only when the status actually changes.
func (t *Tracker) record(device string, hr router.HostResult) {
	now := t.now()

	t.mu.Lock()
	hs := t.status[hostKey{device, hr.Host}]
	if hs == nil {
		hs = &HostStatus{Device: device, Host: hr.Host}
		t.status[hostKey{device, hr.Host}] = hs
	}

	next := wrt.StatusOnline
	switch {
	case hr.Err == nil:
		hs.LastError = ""
		hs.LastSeen = stamp(now)
		hs.Clients = len(hr.MACs)
	case wrt.IsNoDataError(hr.Err):
		// The host answered, so it is reachable; it just had nothing to say
		hs.LastError = hr.Err.Error()
		hs.LastSeen = stamp(now)
		hs.Clients = 0
	default:
		hs.LastError = hr.Err.Error()
		next = wrt.StatusOffline
	}

	prev := hs.Status
	changed := prev != next
	if changed {
		hs.Status = next
		hs.State = next.String()
		hs.Since = stamp(now)
	}
	t.mu.Unlock()

	if !changed {
		return
	}
	// Unknown -> online is the normal first contact with an AP, not an edge
	if prev == wrt.StatusUnknown && next == wrt.StatusOnline {
		return
	}
	logging.LogTransition(t.logger, device, hr.Host, prev.String(), next.String())
	if hr.Err != nil && next == wrt.StatusOffline {
		t.logger.Debug("Offline cause", zap.String("host", hr.Host), zap.String("hint", wrt.ShortMessage(hr.Err)))
	}
	t.events.publish(transitionEvent(device, hr.Host, prev, next, hr.Err, now))
}

func stamp(t time.Time) *time.Time {
	return &t
}

// Resolve returns the lease record for mac, rebuilding the hostname cache
// once on a miss. ok is false when the device is unknown.
func (t *Tracker) Resolve(ctx context.Context, mac string) (wrt.DeviceRecord, bool) {
	return t.cache.Lookup(ctx, mac)
}

// Known returns the cached lease record for mac without any I/O
func (t *Tracker) Known(mac string) (wrt.DeviceRecord, bool) {
	return t.cache.Get(mac)
}

// DeviceName returns the hostname leased to mac. ok is false when the MAC
// is unknown; a known device may still have an empty hostname.
func (t *Tracker) DeviceName(ctx context.Context, mac string) (string, bool) {
	record, ok := t.Resolve(ctx, mac)
	if !ok {
		return "", false
	}
	return record.Hostname, true
}

// ExtraAttributes returns the fixed attribute set for mac (ip,
// lease_expires, vendor, source) as a fresh map.
func (t *Tracker) ExtraAttributes(ctx context.Context, mac string) (map[string]string, bool) {
	record, ok := t.Resolve(ctx, mac)
	if !ok {
		return nil, false
	}
	attrs := make(map[string]string, len(record.Attributes))
	for k, v := range record.Attributes {
		attrs[k] = v
	}
	return attrs, true
}

// Leases rebuilds the hostname cache and returns its contents
func (t *Tracker) Leases(ctx context.Context) (map[string]wrt.DeviceRecord, error) {
	err := t.cache.Rebuild(ctx)
	return t.cache.Snapshot(), err
}

// Status returns the status of every polled host, ordered by device name
// with the primary host first
func (t *Tracker) Status() []HostStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []HostStatus
	for _, s := range t.sessions {
		for _, host := range s.Config().Hosts() {
			if hs := t.status[hostKey{s.Name(), host}]; hs != nil {
				out = append(out, *hs)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// Online reports whether device's primary host is ONLINE
func (t *Tracker) Online(device string) bool {
	for _, s := range t.sessions {
		if s.Name() != device {
			continue
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		hs := t.status[hostKey{device, s.Config().Host}]
		return hs != nil && hs.Status == wrt.StatusOnline
	}
	return false
}

// Subscribe returns a channel of tracker events and a function that ends
// the subscription. Events are dropped for subscribers that fall behind.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	return t.events.subscribe()
}

// Close ends all subscriptions and releases every session's transport
func (t *Tracker) Close() error {
	t.events.close()

	var errs []error
	for _, s := range t.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package hostcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/muurk/wrtpresence/internal/wrt"
)

// LeaseSource is a device that can report its DHCP lease table
type LeaseSource interface {
	Name() string
	Mode() wrt.Mode
	Leases(ctx context.Context) (map[string]wrt.DeviceRecord, error)
}

// SourceFunc returns the sources eligible for a rebuild, typically the
// router-mode sessions currently ONLINE
type SourceFunc func() []LeaseSource

// Cache maps MAC addresses to lease records. It is filled only by Rebuild,
// which replaces the whole table; entries are never merged or expired.
type Cache struct {
	sources SourceFunc
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[string]wrt.DeviceRecord

	group    singleflight.Group
	rebuilds int
}

// New creates an empty cache fed by sources
func New(sources SourceFunc, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		sources: sources,
		logger:  logger,
		entries: make(map[string]wrt.DeviceRecord),
	}
}

// Get returns the cached record for mac without triggering a rebuild
func (c *Cache) Get(mac string) (wrt.DeviceRecord, bool) {
	normalized, ok := wrt.NormalizeMAC(mac)
	if !ok {
		return wrt.DeviceRecord{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.entries[normalized]
	return record, ok
}

// Lookup returns the record for mac. On a miss the cache is rebuilt once
// and checked again; a second miss means the device is unknown, which is
// not an error.
func (c *Cache) Lookup(ctx context.Context, mac string) (wrt.DeviceRecord, bool) {
	if _, ok := wrt.NormalizeMAC(mac); !ok {
		return wrt.DeviceRecord{}, false
	}

	if record, ok := c.Get(mac); ok {
		return record, true
	}

	if err := c.Rebuild(ctx); err != nil {
		c.logger.Warn("Lease cache rebuild incomplete", zap.Error(err))
	}
	return c.Get(mac)
}

// Rebuild fetches leases from every router-mode source and publishes the
// result as the new table. Concurrent callers share one rebuild. Sources
// that fail are skipped and their errors returned joined. If ctx ends
// before the rebuild completes the current table is kept and ctx.Err() is
// returned.
func (c *Cache) Rebuild(ctx context.Context) error {
	_, err, _ := c.group.Do("rebuild", func() (any, error) {
		return nil, c.rebuild(ctx)
	})
	return err
}

func (c *Cache) rebuild(ctx context.Context) error {
	next := make(map[string]wrt.DeviceRecord)
	var errs []error

	for _, src := range c.sources() {
		if src.Mode() != wrt.ModeRouter {
			continue
		}
		leases, err := src.Leases(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		for mac, record := range leases {
			next[mac] = record
		}
	}

	if err := ctx.Err(); err != nil {
		c.logger.Debug("Lease cache rebuild abandoned", zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.entries = next
	c.rebuilds++
	c.mu.Unlock()

	c.logger.Debug("Lease cache rebuilt", zap.Int("entries", len(next)), zap.Int("failed_sources", len(errs)))
	return errors.Join(errs...)
}

// Len returns the number of cached records
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Rebuilds returns how many rebuilds have completed
func (c *Cache) Rebuilds() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rebuilds
}

// Snapshot returns a copy of the table
func (c *Cache) Snapshot() map[string]wrt.DeviceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]wrt.DeviceRecord, len(c.entries))
	for mac, record := range c.entries {
		out[mac] = record
	}
	return out
}

// Package tracker is the scan coordinator.
//
// A Tracker holds the ready router sessions, polls them concurrently on
// every Scan and merges the results into one sorted set of client MACs.
// It also owns the per-host ONLINE/OFFLINE table: a host that stops
// answering is logged and announced once, stays out of the results while
// it is down, and is announced once more when it recovers.
//
// Hostname resolution goes through the tracker's hostcache.Cache, which is
// only ever filled from router-mode devices that are currently ONLINE.
//
// Setup turns a config.Config into a Tracker, probing each device and
// recording the ones that fail without holding the others back.
package tracker

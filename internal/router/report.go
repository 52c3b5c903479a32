package router

import (
	"errors"
	"fmt"
)

// HostResult is the outcome of polling one host for wireless clients
type HostResult struct {
	Host string
	MACs []string
	Err  error
}

// OK reports whether the host answered with client data
func (r HostResult) OK() bool {
	return r.Err == nil
}

// ClientReport collects per-host results of one ActiveClients call,
// primary host first
type ClientReport struct {
	Device  string
	Results []HostResult
}

// MACs merges the MACs of every successful host, de-duplicated, in order of
// first appearance
func (r *ClientReport) MACs() []string {
	var macs []string
	seen := make(map[string]bool)
	for _, result := range r.Results {
		for _, mac := range result.MACs {
			if !seen[mac] {
				seen[mac] = true
				macs = append(macs, mac)
			}
		}
	}
	return macs
}

// Err joins the per-host errors, or returns nil when every host answered
func (r *ClientReport) Err() error {
	var errs []error
	for _, result := range r.Results {
		if result.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", result.Host, result.Err))
		}
	}
	return errors.Join(errs...)
}

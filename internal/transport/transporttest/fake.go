// Package transporttest provides a scriptable in-memory transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/muurk/wrtpresence/internal/wrt"
)

type key struct {
	host string
	op   wrt.Operation
}

type response struct {
	payload []byte
	err     error
}

// Fake answers Fetch calls from a table of canned responses. It also
// records concurrent calls so tests can check callers serialize access.
type Fake struct {
	mu        sync.Mutex
	responses map[key]response
	calls     map[key]int
	closed    bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	// Hook runs inside Fetch before the canned response is returned
	Hook func(ctx context.Context, host string, op wrt.Operation)
}

// New returns an empty Fake. Unscripted requests fail with a network error.
func New() *Fake {
	return &Fake{
		responses: make(map[key]response),
		calls:     make(map[key]int),
	}
}

// Set scripts a successful payload for host and op
func (f *Fake) Set(host string, op wrt.Operation, payload string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key{host, op}] = response{payload: []byte(payload)}
	return f
}

// Fail scripts an error for host and op
func (f *Fake) Fail(host string, op wrt.Operation, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key{host, op}] = response{err: err}
	return f
}

// Calls returns how many times host and op were fetched
func (f *Fake) Calls(host string, op wrt.Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key{host, op}]
}

// TotalCalls returns the number of Fetch calls for any host
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// MaxInFlight returns the highest number of simultaneous Fetch calls seen
func (f *Fake) MaxInFlight() int {
	return int(f.maxInFlight.Load())
}

// Closed reports whether Close was called
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Fetch implements transport.Transport
func (f *Fake) Fetch(ctx context.Context, host string, op wrt.Operation) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	if f.Hook != nil {
		f.Hook(ctx, host, op)
	}

	f.mu.Lock()
	k := key{host, op}
	f.calls[k]++
	resp, ok := f.responses[k]
	f.mu.Unlock()

	if !ok {
		return nil, wrt.NewNetworkError(host, fmt.Sprintf("no scripted %s response", op), nil)
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return resp.payload, nil
}

// Close implements transport.Transport
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

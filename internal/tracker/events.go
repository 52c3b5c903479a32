package tracker

import (
	"sync"
	"time"

	"github.com/muurk/wrtpresence/internal/wrt"
)

// EventType distinguishes tracker events
type EventType string

const (
	// EventTransition is emitted once per ONLINE/OFFLINE edge of a host
	EventTransition EventType = "transition"
	// EventScan is emitted after every completed (not throttled) scan
	EventScan EventType = "scan"
)

// Event is published to subscribers
type Event struct {
	Type   EventType `json:"type"`
	Time   time.Time `json:"time"`
	Device string    `json:"device,omitempty"`
	Host   string    `json:"host,omitempty"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to,omitempty"`
	Error  string    `json:"error,omitempty"`
	MACs   []string  `json:"macs,omitempty"`
}

func transitionEvent(device, host string, from, to wrt.Status, err error, at time.Time) Event {
	e := Event{
		Type:   EventTransition,
		Time:   at,
		Device: device,
		Host:   host,
		From:   from.String(),
		To:     to.String(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// subscriberBuffer is the per-subscriber backlog; slow readers lose events
const subscriberBuffer = 32

type broker struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[chan Event]struct{})
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// publish never blocks
func (b *broker) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

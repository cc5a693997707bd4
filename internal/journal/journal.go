// Package journal records what the supervisor decided: state transitions
// and relay lifecycle events. An in-memory ring answers the operational
// "last N transitions" query; pluggable sinks export every event to
// external storage.
package journal

import (
	"context"
	"sync"
	"time"
)

// EventKind classifies journal events.
type EventKind string

const (
	EventTransition EventKind = "transition"
	EventRelayStart EventKind = "relay_start"
	EventRelayStop  EventKind = "relay_stop"
	EventRelayCrash EventKind = "relay_crash"
)

// Event is one journal row. Transition events carry From/To/Reason; relay
// lifecycle events carry Role/RunID/PID and, for exits, the exit code.
type Event struct {
	Kind     EventKind `json:"kind"`
	At       time.Time `json:"at"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Role     string    `json:"role,omitempty"`
	RunID    string    `json:"run_id,omitempty"`
	PID      int       `json:"pid,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
}

// Entry is the in-memory view of one state transition.
type Entry struct {
	At     time.Time `json:"at"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason"`
}

// Sink exports journal events to external storage. Implementations must be
// safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Ring is a fixed-capacity transition log. Oldest entries fall off once
// capacity is reached.
type Ring struct {
	mu   sync.Mutex
	buf  []Entry
	next int
	full bool
}

// NewRing builds a ring holding up to capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]Entry, capacity)}
}

// Append adds one entry, evicting the oldest when full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Len reports how many entries are currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Last returns up to n entries, newest first.
func (r *Ring) Last(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

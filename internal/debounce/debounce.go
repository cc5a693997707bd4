// Package debounce turns a flickery boolean sample stream into a stable
// signal. It is a pure state machine over caller-supplied timestamps: no
// goroutines, no clock reads, fully deterministic under test.
package debounce

import "time"

// Policy debounces a boolean signal with asymmetric holds: the output flips
// to true only after raw has stayed true for holdUp, and back to false only
// after raw has stayed false for holdDown. Any disagreement shorter than
// the applicable hold leaves the output untouched.
//
// Samples arrive once per poll interval and each one attests the signal
// state for that whole interval, so a run of N consecutive samples counts
// as N intervals of agreement. The initial output is false.
type Policy struct {
	holdUp   time.Duration
	holdDown time.Duration
	interval time.Duration

	value        bool
	pending      bool
	pendingSince time.Time
}

// New builds a Policy. interval is the poll interval backing the sample
// stream; pass 0 to measure pure elapsed time between samples instead.
func New(holdUp, holdDown, interval time.Duration) *Policy {
	if interval < 0 {
		interval = 0
	}
	return &Policy{holdUp: holdUp, holdDown: holdDown, interval: interval}
}

// Update feeds one raw sample observed at now and returns the debounced
// value. A sample that agrees with the current output cancels any pending
// flip; the hold starts over on the next disagreement.
func (p *Policy) Update(raw bool, now time.Time) bool {
	if raw == p.value {
		p.pending = false
		return p.value
	}
	if !p.pending {
		p.pending = true
		p.pendingSince = now
	}
	hold := p.holdDown
	if raw {
		hold = p.holdUp
	}
	if now.Sub(p.pendingSince)+p.interval >= hold {
		p.value = raw
		p.pending = false
	}
	return p.value
}

// Value returns the current debounced value without feeding a sample.
func (p *Policy) Value() bool { return p.value }

// Pending reports whether a flip is currently building and for how long it
// has been held at time now (including the interval the first disagreeing
// sample attests).
func (p *Policy) Pending(now time.Time) (bool, time.Duration) {
	if !p.pending {
		return false, 0
	}
	return true, now.Sub(p.pendingSince) + p.interval
}

// Hold returns the hold applicable to a flip toward the given value.
func (p *Policy) Hold(toward bool) time.Duration {
	if toward {
		return p.holdUp
	}
	return p.holdDown
}

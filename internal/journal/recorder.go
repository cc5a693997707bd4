package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// sinkTimeout bounds one fanout round; a dead database must not pile up
// goroutines forever.
const sinkTimeout = 3 * time.Second

// Recorder owns the in-memory transition ring and fans events out to the
// configured sinks. Sink sends run asynchronously so a slow database never
// stalls the control loop; Flush waits for pending sends to drain.
type Recorder struct {
	ring  *Ring
	log   *slog.Logger
	sinks []Sink
	wg    sync.WaitGroup
}

// NewRecorder builds a Recorder with the given ring capacity and sinks.
func NewRecorder(capacity int, log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{ring: NewRing(capacity), log: log, sinks: sinks}
}

// Record stores a transition event in the ring and exports the event to all
// sinks. Sink errors are logged, never propagated: journaling is advisory.
func (r *Recorder) Record(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Kind == EventTransition {
		r.ring.Append(Entry{At: e.At, From: e.From, To: e.To, Reason: e.Reason})
	}
	if len(r.sinks) == 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		for _, s := range r.sinks {
			if err := s.Send(ctx, e); err != nil {
				r.log.Warn("journal sink send failed", "kind", string(e.Kind), "error", err)
			}
		}
	}()
}

// Transitions returns up to n recorded transitions, newest first.
func (r *Recorder) Transitions(n int) []Entry { return r.ring.Last(n) }

// Flush blocks until all in-flight sink sends have completed.
func (r *Recorder) Flush() { r.wg.Wait() }

// Close flushes pending sends and closes every sink.
func (r *Recorder) Close() error {
	r.Flush()
	var first error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

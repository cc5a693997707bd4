package supervisor

import (
	"time"

	"github.com/loykin/switchr/internal/journal"
	"github.com/loykin/switchr/internal/metrics"
	"github.com/loykin/switchr/internal/process"
)

func (s *Supervisor) sweepLoop() {
	defer s.wg.Done()
	t := time.NewTicker(s.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-t.C:
			s.sweepDelivery(now)
		}
	}
}

// sweepDelivery keeps the delivery relay alive independently of the logical
// state. A crash schedules a restart after the current backoff interval;
// each consecutive failure doubles the interval up to the cap, and a run
// that outlives the interval it was born under resets the schedule. The
// schedule is a due timestamp, so shutdown aborts it by simply not sweeping.
func (s *Supervisor) sweepDelivery(now time.Time) {
	s.deliveryMu.Lock()
	defer s.deliveryMu.Unlock()

	st := s.deliveryRel.Poll()
	if st.State == process.StateRunning {
		return
	}

	s.mu.Lock()
	due := s.restartAt
	s.mu.Unlock()

	if due.IsZero() {
		rec := s.deliveryRel.Record()
		if st.State == process.StateExited {
			s.log.Warn("delivery relay exited unexpectedly", "pid", st.PID, "exit_code", st.ExitCode)
			s.record(journal.Event{Kind: journal.EventRelayCrash, Role: rec.Role, RunID: rec.RunID, PID: st.PID, ExitCode: rec.ExitCode, Reason: reasonCrash})
			metrics.IncCrash(rec.Role)
		}

		s.mu.Lock()
		if s.lastDelay > 0 && !rec.StartedAt.IsZero() {
			uptime := now.Sub(rec.StartedAt)
			if !rec.StoppedAt.IsZero() {
				uptime = rec.StoppedAt.Sub(rec.StartedAt)
			}
			if uptime > s.lastDelay {
				s.backoff.Reset()
			}
		}
		delay := s.backoff.NextBackOff()
		s.lastDelay = delay
		s.restartAt = now.Add(delay)
		s.mu.Unlock()

		metrics.SetDeliveryBackoff(delay.Seconds())
		s.log.Info("delivery relay restart scheduled", "delay", delay)
		return
	}

	if now.Before(due) {
		return
	}

	rec, err := s.deliveryRel.Start()
	if err != nil {
		s.mu.Lock()
		delay := s.backoff.NextBackOff()
		s.lastDelay = delay
		s.restartAt = now.Add(delay)
		s.mu.Unlock()

		metrics.SetDeliveryBackoff(delay.Seconds())
		s.log.Error("delivery relay restart failed", "error", err, "next_attempt_in", delay)
		return
	}

	s.mu.Lock()
	s.restartAt = time.Time{}
	s.mu.Unlock()

	metrics.SetDeliveryBackoff(0)
	metrics.IncStart(rec.Role)
	metrics.IncRestart(rec.Role)
	s.record(journal.Event{Kind: journal.EventRelayStart, Role: rec.Role, RunID: rec.RunID, PID: rec.PID, Reason: "crash restart"})
	s.log.Info("delivery relay restarted", "pid", rec.PID)
}

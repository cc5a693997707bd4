package supervisor

import (
	"errors"
	"time"

	"github.com/looplab/fsm"
	"github.com/loykin/switchr/internal/journal"
	"github.com/loykin/switchr/internal/metrics"
	"github.com/loykin/switchr/internal/process"
)

func (s *Supervisor) presenceLoop() {
	defer s.wg.Done()
	t := time.NewTicker(s.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-t.C:
			s.onPresenceTick(now)
		}
	}
}

// onPresenceTick samples presence, feeds the debounce policy and either
// performs a due transition or heals a crashed switch relay in place.
func (s *Supervisor) onPresenceTick(now time.Time) {
	raw, err := s.mon.Sample(s.ctx)
	if err != nil {
		s.log.Warn("presence poll failed, holding last signal", "held", raw, "error", err)
		metrics.IncFetchError()
	}
	debounced := s.pol.Update(raw, now)
	metrics.SetPresence(metrics.PresenceRaw, raw)
	metrics.SetPresence(metrics.PresenceDebounced, debounced)

	view := PresenceView{Raw: raw, Debounced: debounced, SampledAt: now}
	if err != nil {
		view.LastError = err.Error()
	}
	s.mu.Lock()
	s.presence = view
	s.mu.Unlock()

	desired, reason := StateOffline, reasonAbsent
	if debounced {
		desired, reason = StateLive, reasonPresent
	}
	if desired != s.State() && s.transition(now, desired, reason) {
		return
	}
	s.healSwitch()
}

// transition runs the switch procedure: stop the current relay to completion,
// hold the settle pause, start the new state's command line, then advance the
// state machine. The spacing guard is a second anti-flap layer independent of
// debouncing. Returns false when nothing changed.
func (s *Supervisor) transition(now time.Time, to State, reason string) bool {
	s.mu.Lock()
	last := s.lastTransition
	s.mu.Unlock()
	if !last.IsZero() && now.Sub(last) < s.cfg.MinSpacing {
		s.log.Debug("transition held by spacing guard",
			"to", string(to), "since_last", now.Sub(last), "min_spacing", s.cfg.MinSpacing)
		return false
	}

	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	prev := s.switchRel.Record()
	if err := s.switchRel.Stop(s.cfg.StopGrace); err != nil {
		var te *process.StopTimeoutError
		if errors.As(err, &te) {
			s.log.Warn("switch relay survived grace, killed", "pid", te.PID, "grace", te.Grace)
		} else {
			s.log.Error("switch relay stop failed", "error", err)
			return false
		}
	}
	if prev.PID != 0 {
		s.record(journal.Event{Kind: journal.EventRelayStop, Role: prev.Role, RunID: prev.RunID, PID: prev.PID, Reason: reason})
		metrics.IncStop(prev.Role)
	}

	// The old process is gone; give the sockets a moment to release before
	// the replacement binds the same endpoints.
	if s.cfg.SwitchPause > 0 {
		select {
		case <-time.After(s.cfg.SwitchPause):
		case <-s.ctx.Done():
			return false
		}
	}

	spec := s.cfg.OfflineSpec
	if to == StateLive {
		spec = s.cfg.LiveSpec
	}
	if err := s.switchRel.SetSpec(spec); err != nil {
		s.log.Error("switch relay spec rejected", "state", string(to), "error", err)
		return false
	}
	rec, err := s.switchRel.Start()
	if err != nil {
		// State not advanced; the next tick retries the whole procedure.
		s.log.Error("switch relay start failed", "state", string(to), "error", err)
		return false
	}
	s.record(journal.Event{Kind: journal.EventRelayStart, Role: rec.Role, RunID: rec.RunID, PID: rec.PID, Reason: reason})
	metrics.IncStart(rec.Role)

	if err := s.machine.Event(s.ctx, eventFor(to), reason); err != nil {
		s.log.Error("state machine rejected transition", "to", string(to), "error", err)
	}
	s.mu.Lock()
	s.lastTransition = now
	s.mu.Unlock()
	return true
}

// healSwitch restarts a switch relay that died while the state is unchanged.
// A mid-state crash must self-heal without waiting for a signal change.
func (s *Supervisor) healSwitch() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	st := s.switchRel.Poll()
	if st.State == process.StateRunning {
		return
	}
	rec := s.switchRel.Record()
	if st.State == process.StateExited {
		s.log.Warn("switch relay exited unexpectedly, restarting",
			"state", string(s.State()), "pid", st.PID, "exit_code", st.ExitCode)
		s.record(journal.Event{Kind: journal.EventRelayCrash, Role: rec.Role, RunID: rec.RunID, PID: st.PID, ExitCode: rec.ExitCode, Reason: reasonCrash})
		metrics.IncCrash(rec.Role)
	}
	newRec, err := s.switchRel.Start()
	if err != nil {
		s.log.Error("switch relay restart failed", "error", err)
		return
	}
	s.record(journal.Event{Kind: journal.EventRelayStart, Role: newRec.Role, RunID: newRec.RunID, PID: newRec.PID, Reason: reasonCrash})
	metrics.IncStart(newRec.Role)
	metrics.IncRestart(newRec.Role)
	s.log.Info("switch relay restarted", "pid", newRec.PID, "state", string(s.State()))
}

// onEnterState is the fsm enter_state hook: it journals and logs the
// transition once the machine has actually moved.
func (s *Supervisor) onEnterState(e *fsm.Event) {
	reason := ""
	if len(e.Args) > 0 {
		if r, ok := e.Args[0].(string); ok {
			reason = r
		}
	}
	s.log.Info("logical state changed", "from", e.Src, "to", e.Dst, "reason", reason)
	metrics.RecordTransition(e.Src, e.Dst)
	metrics.SetState(e.Src, false)
	metrics.SetState(e.Dst, true)
	s.record(journal.Event{Kind: journal.EventTransition, From: e.Src, To: e.Dst, Reason: reason})
}

func eventFor(to State) string {
	if to == StateLive {
		return eventGoLive
	}
	return eventGoOffline
}

// Package supervisor owns the offline/live decision loop. It polls stream
// presence, debounces it, and swaps the switch relay's command line on state
// changes while keeping the delivery relay alive across every switch.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/looplab/fsm"
	"github.com/loykin/switchr/internal/debounce"
	"github.com/loykin/switchr/internal/journal"
	"github.com/loykin/switchr/internal/metrics"
	"github.com/loykin/switchr/internal/monitor"
	"github.com/loykin/switchr/internal/process"
)

// State is the supervisor's stable belief about the live source.
type State string

const (
	StateOffline State = "offline"
	StateLive    State = "live"
)

const (
	eventGoLive    = "go_live"
	eventGoOffline = "go_offline"
)

const (
	reasonPresent = "live source present"
	reasonAbsent  = "live source absent"
	reasonCrash   = "unexpected exit"
)

// Config carries the relay specs and the timing knobs of the control loop.
type Config struct {
	OfflineSpec  process.Spec
	LiveSpec     process.Spec
	DeliverySpec process.Spec

	PollInterval   time.Duration // presence sampling cadence
	SweepInterval  time.Duration // delivery liveness cadence
	MinSpacing     time.Duration // floor between consecutive transitions
	SwitchPause    time.Duration // settle time between stop and start on a switch
	StopGrace      time.Duration // SIGTERM grace before SIGKILL
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Second
	}
	if c.MinSpacing <= 0 {
		c.MinSpacing = c.PollInterval
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 5 * time.Second
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = c.BackoffInitial
	}
}

// PresenceView is a snapshot of the monitor's latest sample.
type PresenceView struct {
	Raw       bool      `json:"raw"`
	Debounced bool      `json:"debounced"`
	SampledAt time.Time `json:"sampled_at"`
	LastError string    `json:"last_error,omitempty"`
}

// RelayStatus pairs a relay's liveness with its run record.
type RelayStatus struct {
	Role   string         `json:"role"`
	Status process.Status `json:"status"`
	Record process.Record `json:"record"`
}

// Supervisor drives the two relay processes from the debounced presence
// signal. The presence path and the delivery sweep run on separate tickers;
// per-role mutexes keep their process actions from interleaving.
type Supervisor struct {
	cfg Config
	log *slog.Logger
	mon *monitor.Monitor
	pol *debounce.Policy
	rec *journal.Recorder

	machine *fsm.FSM

	switchRel   *process.Handle
	deliveryRel *process.Handle
	switchMu    sync.Mutex
	deliveryMu  sync.Mutex

	mu             sync.Mutex
	startedAt      time.Time
	lastTransition time.Time
	presence       PresenceView
	restartAt      time.Time     // delivery restart due time; zero when not backing off
	lastDelay      time.Duration // backoff interval that produced restartAt
	backoff        *backoff.ExponentialBackOff

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
}

// New assembles a supervisor. The monitor and debounce policy are required;
// a nil recorder disables journalling, a nil logger falls back to the default.
func New(cfg Config, mon *monitor.Monitor, pol *debounce.Policy, rec *journal.Recorder, log *slog.Logger) (*Supervisor, error) {
	if mon == nil {
		return nil, errors.New("supervisor: monitor is required")
	}
	if pol == nil {
		return nil, errors.New("supervisor: debounce policy is required")
	}
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}

	switchRel, err := process.NewHandle(cfg.OfflineSpec)
	if err != nil {
		return nil, err
	}
	deliveryRel, err := process.NewHandle(cfg.DeliverySpec)
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BackoffInitial
	bo.MaxInterval = cfg.BackoffMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	s := &Supervisor{
		cfg:         cfg,
		log:         log,
		mon:         mon,
		pol:         pol,
		rec:         rec,
		switchRel:   switchRel,
		deliveryRel: deliveryRel,
		backoff:     bo,
	}
	s.machine = fsm.NewFSM(
		string(StateOffline),
		fsm.Events{
			{Name: eventGoLive, Src: []string{string(StateOffline)}, Dst: string(StateLive)},
			{Name: eventGoOffline, Src: []string{string(StateLive)}, Dst: string(StateOffline)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) { s.onEnterState(e) },
		},
	)
	return s, nil
}

// Start launches the offline switch relay, then the delivery relay, and
// begins the presence and sweep loops. Startup is fail-safe: the broadcast
// carries the offline asset until a live source is positively confirmed.
func (s *Supervisor) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("supervisor already started")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.switchMu.Lock()
	rec, err := s.switchRel.Start()
	s.switchMu.Unlock()
	if err != nil {
		s.started.Store(false)
		return err
	}
	s.record(journal.Event{Kind: journal.EventRelayStart, Role: rec.Role, RunID: rec.RunID, PID: rec.PID, Reason: "startup"})
	metrics.IncStart(rec.Role)
	s.log.Info("switch relay started", "pid", rec.PID, "state", string(StateOffline))

	s.deliveryMu.Lock()
	rec, err = s.deliveryRel.Start()
	s.deliveryMu.Unlock()
	if err != nil {
		s.switchMu.Lock()
		_ = s.switchRel.Stop(s.cfg.StopGrace)
		s.switchMu.Unlock()
		s.started.Store(false)
		return err
	}
	s.record(journal.Event{Kind: journal.EventRelayStart, Role: rec.Role, RunID: rec.RunID, PID: rec.PID, Reason: "startup"})
	metrics.IncStart(rec.Role)
	s.log.Info("delivery relay started", "pid", rec.PID)

	metrics.SetState(string(StateOffline), true)
	metrics.SetState(string(StateLive), false)
	metrics.SetDeliveryBackoff(0)

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.wg.Add(2)
	go s.presenceLoop()
	go s.sweepLoop()
	return nil
}

// Shutdown cancels the loops, then stops the switch relay followed by the
// delivery relay with full grace-then-force semantics. A pending delivery
// backoff is abandoned, never served. Returns once both are confirmed gone.
func (s *Supervisor) Shutdown() error {
	if !s.started.Load() {
		return nil
	}
	s.cancel()
	s.wg.Wait()

	var firstErr error
	s.switchMu.Lock()
	if err := s.stopRelay(s.switchRel); err != nil {
		firstErr = err
	}
	s.switchMu.Unlock()

	s.deliveryMu.Lock()
	if err := s.stopRelay(s.deliveryRel); err != nil && firstErr == nil {
		firstErr = err
	}
	s.deliveryMu.Unlock()

	s.mu.Lock()
	s.restartAt = time.Time{}
	s.lastDelay = 0
	s.mu.Unlock()
	metrics.SetDeliveryBackoff(0)

	s.started.Store(false)
	s.log.Info("supervisor stopped", "state", string(s.State()))
	return firstErr
}

// stopRelay stops one relay under its caller-held role mutex. An escalated
// stop still ends with the process dead, so the timeout is logged, not
// propagated.
func (s *Supervisor) stopRelay(h *process.Handle) error {
	rec := h.Record()
	if h.Poll().State == process.StateNotFound {
		return nil
	}
	err := h.Stop(s.cfg.StopGrace)
	var te *process.StopTimeoutError
	if errors.As(err, &te) {
		s.log.Warn("relay survived grace, killed", "role", rec.Role, "pid", te.PID, "grace", te.Grace)
		err = nil
	}
	if rec.PID != 0 {
		s.record(journal.Event{Kind: journal.EventRelayStop, Role: rec.Role, RunID: rec.RunID, PID: rec.PID, Reason: "shutdown"})
		metrics.IncStop(rec.Role)
	}
	return err
}

func (s *Supervisor) record(e journal.Event) {
	if s.rec != nil {
		s.rec.Record(e)
	}
}

// State returns the current logical state.
func (s *Supervisor) State() State { return State(s.machine.Current()) }

// Running reports whether the control loops are active.
func (s *Supervisor) Running() bool { return s.started.Load() }

// StartedAt returns when the supervisor started, zero before the first Start.
func (s *Supervisor) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Presence returns the latest monitor sample view.
func (s *Supervisor) Presence() PresenceView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence
}

// Transitions returns up to n journal entries, newest first.
func (s *Supervisor) Transitions(n int) []journal.Entry {
	if s.rec == nil {
		return nil
	}
	return s.rec.Transitions(n)
}

// RelayStatuses reports both relays, switch first.
func (s *Supervisor) RelayStatuses() []RelayStatus {
	out := make([]RelayStatus, 0, 2)
	for _, h := range []*process.Handle{s.switchRel, s.deliveryRel} {
		rec := h.Record()
		out = append(out, RelayStatus{Role: rec.Role, Status: h.Poll(), Record: rec})
	}
	return out
}

// RelayPIDs returns the PIDs of currently running relays by role, for
// resource sampling.
func (s *Supervisor) RelayPIDs() map[string]int32 {
	out := make(map[string]int32, 2)
	for _, rs := range s.RelayStatuses() {
		if rs.Status.State == process.StateRunning {
			out[rs.Role] = int32(rs.Status.PID)
		}
	}
	return out
}

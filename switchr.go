// Package switchr supervises a live-broadcast relay: it watches stream
// presence on an ingest tier, debounces it, and keeps the broadcast fed with
// either a looped offline asset or the live source while a persistent relay
// delivers the result downstream. This facade wires the internal packages
// together so switchr can run standalone or be embedded in a larger
// media-control plane.
package switchr

import (
	"log/slog"
	"net/http"

	"github.com/loykin/switchr/internal/config"
	"github.com/loykin/switchr/internal/debounce"
	"github.com/loykin/switchr/internal/journal"
	chsink "github.com/loykin/switchr/internal/journal/clickhouse"
	"github.com/loykin/switchr/internal/journal/factory"
	"github.com/loykin/switchr/internal/metrics"
	"github.com/loykin/switchr/internal/monitor"
	"github.com/loykin/switchr/internal/process"
	"github.com/loykin/switchr/internal/relay"
	"github.com/loykin/switchr/internal/server"
	"github.com/loykin/switchr/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Config = config.Config

type Spec = process.Spec

type Record = process.Record

type ProcessStatus = process.Status

type State = supervisor.State

type RelayStatus = supervisor.RelayStatus

type PresenceView = supervisor.PresenceView

type Transition = journal.Entry

type JournalSink = journal.Sink

const (
	StateOffline = supervisor.StateOffline
	StateLive    = supervisor.StateLive
)

// LoadConfig reads, defaults and validates a TOML config file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Switcher is the assembled system: monitor, debounce policy, journal
// recorder and the supervisor driving both relay processes.
type Switcher struct {
	sup *supervisor.Supervisor
	rec *journal.Recorder
	log *slog.Logger
}

// New assembles a Switcher from a resolved config. Pass a nil logger to
// build one from cfg.Log.
func New(cfg *Config, log *slog.Logger) (*Switcher, error) {
	if log == nil {
		log = cfg.Log.NewSlogger()
	}

	mon, err := monitor.New(monitor.Config{
		URL:         cfg.Monitor.URL,
		Format:      monitor.Format(cfg.Monitor.Format),
		Application: cfg.Monitor.Application,
		Stream:      cfg.Monitor.Stream,
		Timeout:     cfg.Monitor.Timeout,
	})
	if err != nil {
		return nil, err
	}
	pol := debounce.New(cfg.Switch.HoldUp, cfg.Switch.HoldDown, cfg.Monitor.PollInterval)

	var sinks []journal.Sink
	if cfg.Journal.DSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.Journal.DSN)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if ch := cfg.Journal.ClickHouse; ch != nil && len(ch.Addr) > 0 {
		sink, err := chsink.New(chsink.Options{
			Addr:     ch.Addr,
			Database: ch.Database,
			Username: ch.Username,
			Password: ch.Password,
			Table:    ch.Table,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	rec := journal.NewRecorder(cfg.Journal.Capacity, log, sinks...)

	rc := relay.Config{
		Engine:       cfg.Switch.Engine,
		OfflineAsset: cfg.Switch.OfflineAsset,
		LiveSource:   cfg.Switch.LiveSource,
		SwitchOutput: cfg.Switch.Output,
		Destination:  cfg.Delivery.StreamURL(),
		WorkDir:      cfg.Process.WorkDir,
		Env:          cfg.Process.Env,
		Log:          cfg.Log,
	}
	sup, err := supervisor.New(supervisor.Config{
		OfflineSpec:    rc.OfflineSpec(),
		LiveSpec:       rc.LiveSpec(),
		DeliverySpec:   rc.DeliverySpec(),
		PollInterval:   cfg.Monitor.PollInterval,
		SweepInterval:  cfg.Delivery.SweepInterval,
		MinSpacing:     cfg.Switch.MinSpacing,
		SwitchPause:    cfg.Switch.Pause,
		StopGrace:      cfg.Process.StopGrace,
		BackoffInitial: cfg.Delivery.BackoffInitial,
		BackoffMax:     cfg.Delivery.BackoffMax,
	}, mon, pol, rec, log)
	if err != nil {
		_ = rec.Close()
		return nil, err
	}
	return &Switcher{sup: sup, rec: rec, log: log}, nil
}

// Start launches both relays and the control loops.
func (s *Switcher) Start() error { return s.sup.Start() }

// Shutdown stops the control loops and both relays with grace-then-force
// semantics, then drains and closes the journal sinks.
func (s *Switcher) Shutdown() error {
	err := s.sup.Shutdown()
	if cerr := s.rec.Close(); err == nil {
		err = cerr
	}
	return err
}

// Supervisor exposes the underlying supervisor for read-only inspection.
func (s *Switcher) Supervisor() *supervisor.Supervisor { return s.sup }

func (s *Switcher) State() State                   { return s.sup.State() }
func (s *Switcher) Presence() PresenceView         { return s.sup.Presence() }
func (s *Switcher) Transitions(n int) []Transition { return s.sup.Transitions(n) }
func (s *Switcher) RelayStatuses() []RelayStatus   { return s.sup.RelayStatuses() }

// NewHTTPServer starts the read-only operational surface on addr.
func NewHTTPServer(addr, basePath string, s *Switcher, collector *RelayCollector) (*http.Server, error) {
	return server.NewServer(addr, basePath, s.sup, collector)
}

// NewRouterHandler returns a mountable http.Handler with the operational
// endpoints under basePath.
func NewRouterHandler(basePath string, s *Switcher, collector *RelayCollector) http.Handler {
	return server.NewRouter(s.sup, collector, basePath).Handler()
}

// Metrics facade.

type RelayCollector = metrics.RelayCollector

type RelayCollectorConfig = metrics.RelayCollectorConfig

// RegisterMetrics registers the switchr collectors with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers the switchr collectors with the default
// Prometheus registry.
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }

// NewRelayCollector builds the gopsutil-backed per-relay resource sampler.
func NewRelayCollector(cfg RelayCollectorConfig) *RelayCollector {
	return metrics.NewRelayCollector(cfg)
}

// RegisterRelayCollectorDefault registers the collector's gauges with the
// default Prometheus registry.
func RegisterRelayCollectorDefault(c *RelayCollector) error {
	return c.RegisterMetrics(prometheus.DefaultRegisterer)
}

// ServeMetrics serves the Prometheus endpoint on addr at /metrics.
// It blocks; run it in a goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	return srv.ListenAndServe()
}

// NewJournalSink builds a journal export sink from a DSN
// (sqlite path, postgres://, clickhouse:// or opensearch://).
func NewJournalSink(dsn string) (JournalSink, error) { return factory.NewSinkFromDSN(dsn) }

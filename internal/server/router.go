// Package server exposes the supervisor's read-only operational surface over
// HTTP. There are no mutating endpoints: the offline/live decision belongs to
// the supervisor alone, a dashboard only observes it.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/switchr/internal/journal"
	"github.com/loykin/switchr/internal/metrics"
	"github.com/loykin/switchr/internal/supervisor"
)

// Router provides embeddable HTTP handlers for observing the supervisor.
// Endpoints:
//
//	GET {basePath}/status            logical state, presence, last transition
//	GET {basePath}/relays            both relay records and liveness
//	GET {basePath}/transitions      ?limit=N, newest first
//	GET {basePath}/healthz           200 while the control loop runs
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup       *supervisor.Supervisor
	collector *metrics.RelayCollector
	basePath  string
}

// NewRouter constructs a Router with a configurable basePath. The collector
// is optional; when present, relay responses carry resource samples.
func NewRouter(sup *supervisor.Supervisor, collector *metrics.RelayCollector, basePath string) *Router {
	return &Router{sup: sup, collector: collector, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/relays", r.handleRelays)
	group.GET("/transitions", r.handleTransitions)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down by calling Close on the returned server.
func NewServer(addr, basePath string, sup *supervisor.Supervisor, collector *metrics.RelayCollector) (*http.Server, error) {
	r := NewRouter(sup, collector, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	State          string                  `json:"state"`
	Running        bool                    `json:"running"`
	StartedAt      time.Time               `json:"started_at"`
	UptimeSeconds  float64                 `json:"uptime_seconds"`
	Presence       supervisor.PresenceView `json:"presence"`
	LastTransition *journal.Entry          `json:"last_transition,omitempty"`
}

// RelayResponse is one element of the /relays payload.
type RelayResponse struct {
	supervisor.RelayStatus
	Resources *metrics.ResourceSample `json:"resources,omitempty"`
}

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := StatusResponse{
		State:     string(r.sup.State()),
		Running:   r.sup.Running(),
		StartedAt: r.sup.StartedAt(),
		Presence:  r.sup.Presence(),
	}
	if !resp.StartedAt.IsZero() && resp.Running {
		resp.UptimeSeconds = time.Since(resp.StartedAt).Seconds()
	}
	if last := r.sup.Transitions(1); len(last) > 0 {
		resp.LastTransition = &last[0]
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleRelays(c *gin.Context) {
	statuses := r.sup.RelayStatuses()
	out := make([]RelayResponse, 0, len(statuses))
	for _, st := range statuses {
		rr := RelayResponse{RelayStatus: st}
		if r.collector != nil && r.collector.Enabled() {
			if sample, ok := r.collector.Latest(st.Role); ok {
				rr.Resources = &sample
			}
		}
		out = append(out, rr)
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleTransitions(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	entries := r.sup.Transitions(limit)
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(c, http.StatusOK, entries)
}

func (r *Router) handleHealthz(c *gin.Context) {
	resp := HealthResponse{OK: r.sup.Running(), State: string(r.sup.State())}
	code := http.StatusOK
	if !resp.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, resp)
}

package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// ResourceSample holds CPU and memory usage for one relay process at a point in time.
type ResourceSample struct {
	PID        int32     `json:"pid"`
	Role       string    `json:"role"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// roleHistory keeps recent samples for one role in a circular buffer.
type roleHistory struct {
	mu       sync.RWMutex
	samples  []ResourceSample
	startIdx int
	count    int
}

func (h *roleHistory) add(s ResourceSample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count < len(h.samples) {
		h.samples[h.count] = s
		h.count++
		return
	}
	h.samples[h.startIdx] = s
	h.startIdx = (h.startIdx + 1) % len(h.samples)
}

func (h *roleHistory) latest() (ResourceSample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return ResourceSample{}, false
	}
	idx := h.count - 1
	if h.count == len(h.samples) {
		idx = (h.startIdx - 1 + len(h.samples)) % len(h.samples)
	}
	return h.samples[idx], true
}

func (h *roleHistory) chronological() []ResourceSample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return nil
	}
	out := make([]ResourceSample, h.count)
	if h.count < len(h.samples) {
		copy(out, h.samples[:h.count])
		return out
	}
	n := copy(out, h.samples[h.startIdx:])
	copy(out[n:], h.samples[:h.startIdx])
	return out
}

// RelayCollectorConfig holds configuration for relay resource collection.
type RelayCollectorConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	MaxHistory int           `mapstructure:"max_history"`
}

// RelayCollector periodically samples CPU and memory usage of the relay
// processes and exposes them as Prometheus gauges labelled by role.
type RelayCollector struct {
	enabled    bool
	interval   time.Duration
	maxHistory int

	historyMu sync.RWMutex
	history   map[string]*roleHistory

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
	numFDs     *prometheus.GaugeVec
}

// NewRelayCollector creates a collector; zero config fields get defaults.
func NewRelayCollector(cfg RelayCollectorConfig) *RelayCollector {
	interval := cfg.Interval
	if interval == 0 {
		interval = 5 * time.Second
	}
	maxHistory := cfg.MaxHistory
	if maxHistory == 0 {
		maxHistory = 100
	}
	return &RelayCollector{
		enabled:    cfg.Enabled,
		interval:   interval,
		maxHistory: maxHistory,
		history:    make(map[string]*roleHistory),
		stopCh:     make(chan struct{}),
		cpuPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "switchr",
				Subsystem: "relay",
				Name:      "cpu_percent",
				Help:      "CPU usage percentage per relay process.",
			}, []string{"role"},
		),
		memoryMB: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "switchr",
				Subsystem: "relay",
				Name:      "memory_mb",
				Help:      "Resident memory in MB per relay process.",
			}, []string{"role"},
		),
		numThreads: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "switchr",
				Subsystem: "relay",
				Name:      "num_threads",
				Help:      "Thread count per relay process.",
			}, []string{"role"},
		),
		numFDs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "switchr",
				Subsystem: "relay",
				Name:      "num_fds",
				Help:      "Open file descriptors per relay process (Unix only).",
			}, []string{"role"},
		),
	}
}

// RegisterMetrics registers the collector's gauges with the provided registerer.
func (c *RelayCollector) RegisterMetrics(r prometheus.Registerer) error {
	if !c.enabled {
		return nil
	}
	collectors := []prometheus.Collector{c.cpuPercent, c.memoryMB, c.numThreads}
	if runtime.GOOS != "windows" {
		collectors = append(collectors, c.numFDs)
	}
	for _, col := range collectors {
		if err := r.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start begins periodic sampling. getRelays returns the live relay PIDs by role;
// roles mapped to pid <= 0 are skipped.
func (c *RelayCollector) Start(ctx context.Context, getRelays func() map[string]int32) {
	if !c.enabled {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.collect(getRelays())
			}
		}
	}()
}

// Stop terminates sampling and waits for the loop to exit.
func (c *RelayCollector) Stop() {
	if !c.enabled {
		return
	}
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *RelayCollector) collect(relays map[string]int32) {
	now := time.Now()
	for role, pid := range relays {
		if pid <= 0 {
			continue
		}
		s, err := c.sample(role, pid, now)
		if err != nil {
			slog.Debug("relay resource sample failed", "role", role, "pid", pid, "error", err)
			continue
		}
		c.cpuPercent.WithLabelValues(role).Set(s.CPUPercent)
		c.memoryMB.WithLabelValues(role).Set(s.MemoryMB)
		c.numThreads.WithLabelValues(role).Set(float64(s.NumThreads))
		if runtime.GOOS != "windows" && s.NumFDs > 0 {
			c.numFDs.WithLabelValues(role).Set(float64(s.NumFDs))
		}
		c.record(role, s)
	}
	c.cleanup(relays)
}

func (c *RelayCollector) sample(role string, pid int32, now time.Time) (ResourceSample, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("process handle for pid %d: %w", pid, err)
	}
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		cpuPercent = 0
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return ResourceSample{}, fmt.Errorf("memory info for pid %d: %w", pid, err)
	}
	s := ResourceSample{
		PID:        pid,
		Role:       role,
		CPUPercent: cpuPercent,
		MemoryMB:   float64(memInfo.RSS) / 1024 / 1024,
		MemoryRSS:  memInfo.RSS,
		MemoryVMS:  memInfo.VMS,
		Timestamp:  now,
	}
	if n, err := proc.NumThreads(); err == nil {
		s.NumThreads = n
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDs(); err == nil {
			s.NumFDs = n
		}
	}
	return s, nil
}

func (c *RelayCollector) record(role string, s ResourceSample) {
	c.historyMu.Lock()
	h, ok := c.history[role]
	if !ok {
		h = &roleHistory{samples: make([]ResourceSample, c.maxHistory)}
		c.history[role] = h
	}
	c.historyMu.Unlock()
	h.add(s)
}

// cleanup drops gauges and history for roles that are no longer running.
func (c *RelayCollector) cleanup(active map[string]int32) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	for role := range c.history {
		if pid, ok := active[role]; ok && pid > 0 {
			continue
		}
		delete(c.history, role)
		c.cpuPercent.DeleteLabelValues(role)
		c.memoryMB.DeleteLabelValues(role)
		c.numThreads.DeleteLabelValues(role)
		if runtime.GOOS != "windows" {
			c.numFDs.DeleteLabelValues(role)
		}
	}
}

// Latest returns the most recent sample for a role.
func (c *RelayCollector) Latest(role string) (ResourceSample, bool) {
	if !c.enabled {
		return ResourceSample{}, false
	}
	c.historyMu.RLock()
	h, ok := c.history[role]
	c.historyMu.RUnlock()
	if !ok {
		return ResourceSample{}, false
	}
	return h.latest()
}

// History returns recent samples for a role in chronological order.
func (c *RelayCollector) History(role string) ([]ResourceSample, bool) {
	if !c.enabled {
		return nil, false
	}
	c.historyMu.RLock()
	h, ok := c.history[role]
	c.historyMu.RUnlock()
	if !ok {
		return nil, false
	}
	out := h.chronological()
	return out, out != nil
}

// All returns the latest sample per role.
func (c *RelayCollector) All() map[string]ResourceSample {
	out := make(map[string]ResourceSample)
	if !c.enabled {
		return out
	}
	c.historyMu.RLock()
	defer c.historyMu.RUnlock()
	for role, h := range c.history {
		if s, ok := h.latest(); ok {
			out[role] = s
		}
	}
	return out
}

// Enabled reports whether the collector is active.
func (c *RelayCollector) Enabled() bool { return c.enabled }

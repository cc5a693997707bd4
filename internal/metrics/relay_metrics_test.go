package metrics

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func enabledCollector(t *testing.T, maxHistory int) *RelayCollector {
	t.Helper()
	return NewRelayCollector(RelayCollectorConfig{
		Enabled:    true,
		Interval:   10 * time.Millisecond,
		MaxHistory: maxHistory,
	})
}

func TestRelayCollectorSamplesSelf(t *testing.T) {
	c := enabledCollector(t, 10)
	self := int32(os.Getpid())

	c.collect(map[string]int32{"switch": self})

	s, ok := c.Latest("switch")
	if !ok {
		t.Fatal("expected a sample for switch role")
	}
	if s.PID != self {
		t.Fatalf("expected pid %d, got %d", self, s.PID)
	}
	if s.MemoryRSS == 0 {
		t.Fatal("expected nonzero RSS for a live process")
	}
	if s.Role != "switch" {
		t.Fatalf("expected role switch, got %q", s.Role)
	}

	all := c.All()
	if _, ok := all["switch"]; !ok {
		t.Fatalf("All() missing switch role: %v", all)
	}
}

func TestRelayCollectorSkipsDeadAndZeroPIDs(t *testing.T) {
	c := enabledCollector(t, 10)
	c.collect(map[string]int32{"switch": 0, "delivery": -1})
	if _, ok := c.Latest("switch"); ok {
		t.Fatal("expected no sample for pid 0")
	}
	if _, ok := c.Latest("delivery"); ok {
		t.Fatal("expected no sample for negative pid")
	}
}

func TestRelayCollectorCleanup(t *testing.T) {
	c := enabledCollector(t, 10)
	self := int32(os.Getpid())

	c.collect(map[string]int32{"switch": self})
	if _, ok := c.Latest("switch"); !ok {
		t.Fatal("expected sample before cleanup")
	}

	// Role vanished from the active set; history and gauges must go.
	c.collect(map[string]int32{})
	if _, ok := c.Latest("switch"); ok {
		t.Fatal("expected history dropped after role became inactive")
	}
}

func TestRelayCollectorHistoryOrderAndWrap(t *testing.T) {
	c := enabledCollector(t, 3)
	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		c.record("delivery", ResourceSample{
			PID:       int32(100 + i),
			Role:      "delivery",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	hist, ok := c.History("delivery")
	if !ok {
		t.Fatal("expected history")
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 samples after wrap, got %d", len(hist))
	}
	// Oldest surviving sample first: pids 102, 103, 104.
	for i, want := range []int32{102, 103, 104} {
		if hist[i].PID != want {
			t.Fatalf("sample %d: expected pid %d, got %d", i, want, hist[i].PID)
		}
	}

	latest, ok := c.Latest("delivery")
	if !ok || latest.PID != 104 {
		t.Fatalf("expected latest pid 104, got %+v ok=%v", latest, ok)
	}
}

func TestRelayCollectorDisabled(t *testing.T) {
	c := NewRelayCollector(RelayCollectorConfig{Enabled: false})
	if c.Enabled() {
		t.Fatal("expected disabled")
	}
	if _, ok := c.Latest("switch"); ok {
		t.Fatal("disabled collector must report no samples")
	}
	if got := c.All(); len(got) != 0 {
		t.Fatalf("disabled collector must report empty All(), got %v", got)
	}
	if err := c.RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatalf("disabled RegisterMetrics should no-op: %v", err)
	}
	// Start and Stop must be safe no-ops.
	c.Start(context.Background(), func() map[string]int32 { return nil })
	c.Stop()
}

func TestRelayCollectorRegisterMetrics(t *testing.T) {
	c := enabledCollector(t, 10)
	reg := prometheus.NewRegistry()
	if err := c.RegisterMetrics(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Re-registering the same collectors is tolerated.
	if err := c.RegisterMetrics(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	c.collect(map[string]int32{"switch": int32(os.Getpid())})

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "switchr_relay_memory_mb" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected switchr_relay_memory_mb in gathered metrics")
	}
}

func TestRelayCollectorStartStop(t *testing.T) {
	c := enabledCollector(t, 10)
	self := int32(os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx, func() map[string]int32 {
		return map[string]int32{"delivery": self}
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := c.Latest("delivery"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("collector never produced a sample")
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.Stop()
	// Second Stop must not panic.
	c.Stop()
}

func BenchmarkRoleHistoryAdd(b *testing.B) {
	h := &roleHistory{samples: make([]ResourceSample, 100)}
	s := ResourceSample{PID: 1, Role: "switch", Timestamp: time.Now()}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.add(s)
	}
}

func BenchmarkRoleHistoryLatest(b *testing.B) {
	h := &roleHistory{samples: make([]ResourceSample, 100)}
	for i := 0; i < 150; i++ {
		h.add(ResourceSample{PID: int32(i)})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := h.latest(); !ok {
			b.Fatal("no sample")
		}
	}
}

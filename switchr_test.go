package switchr

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testTOML = `
[monitor]
url = "http://127.0.0.1:8080/stat"
format = "nginx-rtmp"
application = "live"
stream = "studio"
poll_interval = "1s"

[switch]
offline_asset = "/srv/media/offline.mp4"
live_source = "rtmp://127.0.0.1/live/studio"
output = "rtmp://127.0.0.1/switch/out"

[delivery]
destination = "rtmp://ingest.example.com/app"
stream_key = "streamkey"
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "switchr.toml")
	if err := os.WriteFile(path, []byte(testTOML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeTestConfig(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Switch.Engine != "ffmpeg" {
		t.Fatalf("engine default: %q", cfg.Switch.Engine)
	}
	if cfg.Switch.HoldUp != 3*time.Second || cfg.Switch.HoldDown != 2*time.Second {
		t.Fatalf("hold defaults: up=%s down=%s", cfg.Switch.HoldUp, cfg.Switch.HoldDown)
	}
	if cfg.Switch.MinSpacing != cfg.Switch.HoldUp {
		t.Fatalf("min spacing should default to the larger hold, got %s", cfg.Switch.MinSpacing)
	}
	if got := cfg.Delivery.StreamURL(); got != "rtmp://ingest.example.com/app/streamkey" {
		t.Fatalf("stream url: %q", got)
	}
}

func TestNewAssemblesWithoutStarting(t *testing.T) {
	cfg, err := LoadConfig(writeTestConfig(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = s.Shutdown() }()

	if s.State() != StateOffline {
		t.Fatalf("initial state %s, want offline", s.State())
	}
	statuses := s.RelayStatuses()
	if len(statuses) != 2 || statuses[0].Role != "switch" || statuses[1].Role != "delivery" {
		t.Fatalf("unexpected relay statuses: %+v", statuses)
	}
	for _, st := range statuses {
		if st.Record.Command != "ffmpeg" {
			t.Fatalf("relay %s engine %q", st.Role, st.Record.Command)
		}
	}
	if got := s.Transitions(10); len(got) != 0 {
		t.Fatalf("expected empty transition log, got %d entries", len(got))
	}
}

func TestRouterHandlerMountable(t *testing.T) {
	cfg, err := LoadConfig(writeTestConfig(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = s.Shutdown() }()

	h := NewRouterHandler("/api", s, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz before start: %d", w.Code)
	}
}

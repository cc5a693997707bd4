package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newDaemonStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"state":"offline","running":true,"presence":{"raw":false,"debounced":false}}`)
	})
	mux.HandleFunc("/api/relays", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `[{"role":"switch","status":{"state":"running","pid":41,"exit_code":0},"record":{"role":"switch","pid":41}}]`)
	})
	mux.HandleFunc("/api/transitions", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `[{"from":"offline","to":"live","reason":"live source present"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	done := make(chan string)
	go func() {
		var sb strings.Builder
		_, _ = io.Copy(&sb, r)
		done <- sb.String()
	}()
	runErr := fn()
	_ = w.Close()
	os.Stdout = old
	out := <-done
	_ = r.Close()
	return out, runErr
}

func TestRunStatusAgainstStub(t *testing.T) {
	srv := newDaemonStub(t)
	out, err := captureStdout(t, func() error {
		return runStatus(APIFlags{APIUrl: srv.URL + "/api", APITimeout: time.Second})
	})
	if err != nil {
		t.Fatalf("runStatus: %v", err)
	}
	if !strings.Contains(out, `"state": "offline"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRunRelaysAgainstStub(t *testing.T) {
	srv := newDaemonStub(t)
	out, err := captureStdout(t, func() error {
		return runRelays(APIFlags{APIUrl: srv.URL + "/api", APITimeout: time.Second})
	})
	if err != nil {
		t.Fatalf("runRelays: %v", err)
	}
	if !strings.Contains(out, `"role": "switch"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRunTransitionsAgainstStub(t *testing.T) {
	srv := newDaemonStub(t)
	out, err := captureStdout(t, func() error {
		return runTransitions(APIFlags{APIUrl: srv.URL + "/api", APITimeout: time.Second}, 5)
	})
	if err != nil {
		t.Fatalf("runTransitions: %v", err)
	}
	if !strings.Contains(out, `"reason": "live source present"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRunStatusUnreachable(t *testing.T) {
	err := runStatus(APIFlags{APIUrl: "http://127.0.0.1:1/api", APITimeout: 200 * time.Millisecond})
	if err == nil {
		t.Fatal("expected error for unreachable daemon")
	}
}

const validTOML = `
[monitor]
url = "http://127.0.0.1:8080/stat"
application = "live"
stream = "studio"

[switch]
offline_asset = "/srv/media/offline.mp4"
live_source = "rtmp://127.0.0.1/live/studio"
output = "rtmp://127.0.0.1/switch/out"

[delivery]
destination = "rtmp://ingest.example.com/app"
`

func TestRunCheckConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchr.toml")
	if err := os.WriteFile(path, []byte(validTOML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := captureStdout(t, func() error { return runCheckConfig(path) })
	if err != nil {
		t.Fatalf("check-config: %v", err)
	}
	if !strings.Contains(out, "OK") {
		t.Fatalf("expected OK, got: %s", out)
	}
}

func TestRunCheckConfigErrors(t *testing.T) {
	if err := runCheckConfig(""); err == nil {
		t.Fatal("expected error without path")
	}
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[monitor]\nurl = \"\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := runCheckConfig(path); err == nil {
		t.Fatal("expected validation error")
	}
}

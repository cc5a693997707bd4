package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Stats pages are small; anything beyond this is a misconfigured endpoint.
const maxStatsBody = 4 << 20

// Format identifies the stats dialect spoken by the endpoint.
type Format string

const (
	FormatNginxRTMP Format = "nginx-rtmp"
	FormatSRS       Format = "srs"
)

// ParseFormat validates a format name from config. Empty selects nginx-rtmp.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatNginxRTMP, FormatSRS:
		return Format(s), nil
	case "":
		return FormatNginxRTMP, nil
	default:
		return "", fmt.Errorf("unknown stats format %q", s)
	}
}

// FetchError reports a failed stats poll. The presence signal is held at its
// previous value while fetches fail; callers log and keep polling.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("stats fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Config describes one named input stream on one stats endpoint.
type Config struct {
	URL         string
	Format      Format
	Application string
	Stream      string
	Timeout     time.Duration
}

// Monitor polls an HTTP stats endpoint and reduces it to a boolean presence
// signal for a single named input stream.
type Monitor struct {
	cfg    Config
	client *http.Client

	mu   sync.Mutex
	last bool
}

// New builds a Monitor. The format must already be validated; Stream and URL
// must be set.
func New(cfg Config) (*Monitor, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("monitor: url is required")
	}
	if cfg.Stream == "" {
		return nil, fmt.Errorf("monitor: stream is required")
	}
	if _, err := ParseFormat(string(cfg.Format)); err != nil {
		return nil, err
	}
	if cfg.Format == "" {
		cfg.Format = FormatNginxRTMP
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Monitor{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Sample polls the endpoint once. On success it returns the fresh presence
// value. On fetch or parse failure it returns the previous known value along
// with a *FetchError: a broken stats page must not read as "input gone".
func (m *Monitor) Sample(ctx context.Context) (bool, error) {
	present, err := m.fetch(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		return m.last, &FetchError{URL: m.cfg.URL, Err: err}
	}
	m.last = present
	return present, nil
}

// Last returns the most recent known presence value without polling.
func (m *Monitor) Last() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Stream returns the monitored input stream name.
func (m *Monitor) Stream() string { return m.cfg.Stream }

func (m *Monitor) fetch(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatsBody))
	if err != nil {
		return false, err
	}
	switch m.cfg.Format {
	case FormatSRS:
		return srsPresent(body, m.cfg.Application, m.cfg.Stream)
	default:
		return nginxRTMPPresent(body, m.cfg.Application, m.cfg.Stream)
	}
}

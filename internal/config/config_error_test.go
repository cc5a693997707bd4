package config

import (
	"strings"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/switchr.toml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	p := writeConfig(t, "[monitor\nurl = ")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate_Errors(t *testing.T) {
	base := func() Config {
		c := Config{}
		c.Monitor.URL = "http://127.0.0.1/stat"
		c.Monitor.Application = "live"
		c.Monitor.Stream = "studio"
		c.Switch.OfflineAsset = "/srv/offline.mp4"
		c.Switch.LiveSource = "rtmp://127.0.0.1/live/studio"
		c.Switch.Output = "rtmp://127.0.0.1/switch/out"
		c.Delivery.Destination = "rtmp://ingest.example.com/live"
		c.ApplyDefaults()
		return c
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing monitor url", func(c *Config) { c.Monitor.URL = "" }, "monitor url"},
		{"bad monitor scheme", func(c *Config) { c.Monitor.URL = "rtmp://127.0.0.1/stat" }, "http or https"},
		{"bad format", func(c *Config) { c.Monitor.Format = "wowza" }, "unknown stats format"},
		{"missing stream", func(c *Config) { c.Monitor.Stream = "" }, "monitor stream"},
		{"missing application", func(c *Config) { c.Monitor.Application = "" }, "application"},
		{"missing offline asset", func(c *Config) { c.Switch.OfflineAsset = "" }, "offline_asset"},
		{"missing live source", func(c *Config) { c.Switch.LiveSource = "" }, "live_source"},
		{"missing output", func(c *Config) { c.Switch.Output = "" }, "output"},
		{"missing destination", func(c *Config) { c.Delivery.Destination = "" }, "destination"},
		{"backoff max below initial", func(c *Config) {
			c.Delivery.BackoffInitial = DefaultBackoffMax * 2
		}, "backoff_max"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.wantSub)
			}
		})
	}

	// the unmutated base must pass
	c := base()
	if err := c.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
}

func TestValidate_SRSNeedsNoApplication(t *testing.T) {
	c := Config{}
	c.Monitor.URL = "http://127.0.0.1:1985/api/v1/streams"
	c.Monitor.Format = "srs"
	c.Monitor.Stream = "studio"
	c.Switch.OfflineAsset = "/srv/offline.mp4"
	c.Switch.LiveSource = "rtmp://127.0.0.1/live/studio"
	c.Switch.Output = "rtmp://127.0.0.1/switch/out"
	c.Delivery.Destination = "rtmp://ingest.example.com/live"
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("srs config without application should validate: %v", err)
	}
}

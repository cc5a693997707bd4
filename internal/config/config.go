package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/switchr/internal/logger"
	"github.com/loykin/switchr/internal/monitor"
	"github.com/spf13/viper"
)

// Defaults applied by ApplyDefaults. Exposed so tests and embedders can
// reference the resolved values.
const (
	DefaultPollInterval    = 2 * time.Second
	DefaultHoldUpTicks     = 3 // hold_up defaults to this many poll intervals
	DefaultHoldDownTicks   = 2 // hold_down defaults to this many poll intervals
	DefaultSwitchPause     = 500 * time.Millisecond
	DefaultStopGrace       = 5 * time.Second
	DefaultBackoffInitial  = 1 * time.Second
	DefaultBackoffMax      = 30 * time.Second
	DefaultEngine          = "ffmpeg"
	DefaultJournalCapacity = 256
	DefaultListen          = ":8888"
	DefaultBasePath        = "/api"
	DefaultProcessInterval = 5 * time.Second
)

// MonitorConfig selects the stats endpoint that answers "is the input live".
type MonitorConfig struct {
	URL          string        `toml:"url" mapstructure:"url"`
	Format       string        `toml:"format" mapstructure:"format"`
	Application  string        `toml:"application" mapstructure:"application"`
	Stream       string        `toml:"stream" mapstructure:"stream"`
	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	Timeout      time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// SwitchConfig describes the state-dependent relay: what it plays in each
// state, where it publishes, and how transitions are paced.
type SwitchConfig struct {
	Engine       string        `toml:"engine" mapstructure:"engine"`
	OfflineAsset string        `toml:"offline_asset" mapstructure:"offline_asset"`
	LiveSource   string        `toml:"live_source" mapstructure:"live_source"`
	Output       string        `toml:"output" mapstructure:"output"`
	HoldUp       time.Duration `toml:"hold_up" mapstructure:"hold_up"`
	HoldDown     time.Duration `toml:"hold_down" mapstructure:"hold_down"`
	MinSpacing   time.Duration `toml:"min_spacing" mapstructure:"min_spacing"`
	Pause        time.Duration `toml:"pause" mapstructure:"pause"`
}

// DeliveryConfig describes the persistent relay to the external destination.
type DeliveryConfig struct {
	Destination    string        `toml:"destination" mapstructure:"destination"`
	StreamKey      string        `toml:"stream_key" mapstructure:"stream_key"`
	BackoffInitial time.Duration `toml:"backoff_initial" mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `toml:"backoff_max" mapstructure:"backoff_max"`
	SweepInterval  time.Duration `toml:"sweep_interval" mapstructure:"sweep_interval"`
}

// ProcessConfig holds knobs shared by both relay processes.
type ProcessConfig struct {
	StopGrace time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	WorkDir   string        `toml:"workdir" mapstructure:"workdir"`
	Env       []string      `toml:"env" mapstructure:"env"`
}

// ServerConfig configures the read-only HTTP surface.
type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// MetricsConfig configures the Prometheus endpoint and the relay resource
// sampler.
type MetricsConfig struct {
	Enabled         bool          `toml:"enabled" mapstructure:"enabled"`
	Listen          string        `toml:"listen" mapstructure:"listen"`
	ProcessInterval time.Duration `toml:"process_interval" mapstructure:"process_interval"`
}

// ClickHouseConfig configures the optional ClickHouse journal sink.
type ClickHouseConfig struct {
	Addr     []string `toml:"addr" mapstructure:"addr"`
	Database string   `toml:"database" mapstructure:"database"`
	Username string   `toml:"username" mapstructure:"username"`
	Password string   `toml:"password" mapstructure:"password"`
	Table    string   `toml:"table" mapstructure:"table"`
}

// JournalConfig configures the transition journal and its export sinks.
// DSN selects the SQL sink: postgres://... for PostgreSQL, anything else is
// treated as an SQLite path. Empty DSN disables SQL export.
type JournalConfig struct {
	Capacity   int               `toml:"capacity" mapstructure:"capacity"`
	DSN        string            `toml:"dsn" mapstructure:"dsn"`
	ClickHouse *ClickHouseConfig `toml:"clickhouse" mapstructure:"clickhouse"`
}

// Config is the top-level TOML structure. Loaded once at startup and treated
// as immutable afterwards.
type Config struct {
	Monitor  MonitorConfig  `toml:"monitor" mapstructure:"monitor"`
	Switch   SwitchConfig   `toml:"switch" mapstructure:"switch"`
	Delivery DeliveryConfig `toml:"delivery" mapstructure:"delivery"`
	Process  ProcessConfig  `toml:"process" mapstructure:"process"`
	Log      logger.Config  `toml:"log" mapstructure:"log"`
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	Journal  JournalConfig  `toml:"journal" mapstructure:"journal"`
}

// Load reads a TOML config file, applies defaults and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyDefaults fills every unset knob with its documented default. Hold and
// spacing defaults derive from the poll interval, so it is resolved first.
func (c *Config) ApplyDefaults() {
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = DefaultPollInterval
	}
	if c.Monitor.Timeout <= 0 {
		// a fetch should never outlive its tick
		c.Monitor.Timeout = c.Monitor.PollInterval
	}
	if c.Monitor.Format == "" {
		c.Monitor.Format = string(monitor.FormatNginxRTMP)
	}
	if c.Switch.Engine == "" {
		c.Switch.Engine = DefaultEngine
	}
	if c.Switch.HoldUp <= 0 {
		c.Switch.HoldUp = DefaultHoldUpTicks * c.Monitor.PollInterval
	}
	if c.Switch.HoldDown <= 0 {
		c.Switch.HoldDown = DefaultHoldDownTicks * c.Monitor.PollInterval
	}
	if c.Switch.MinSpacing <= 0 {
		c.Switch.MinSpacing = max(c.Switch.HoldUp, c.Switch.HoldDown)
	}
	if c.Switch.Pause <= 0 {
		c.Switch.Pause = DefaultSwitchPause
	}
	if c.Delivery.BackoffInitial <= 0 {
		c.Delivery.BackoffInitial = DefaultBackoffInitial
	}
	if c.Delivery.BackoffMax <= 0 {
		c.Delivery.BackoffMax = DefaultBackoffMax
	}
	if c.Delivery.SweepInterval <= 0 {
		c.Delivery.SweepInterval = c.Monitor.PollInterval
	}
	if c.Process.StopGrace <= 0 {
		c.Process.StopGrace = DefaultStopGrace
	}
	if c.Journal.Capacity <= 0 {
		c.Journal.Capacity = DefaultJournalCapacity
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	if c.Metrics.ProcessInterval <= 0 {
		c.Metrics.ProcessInterval = DefaultProcessInterval
	}
}

// Validate checks the resolved config. Call after ApplyDefaults.
func (c *Config) Validate() error {
	if c.Monitor.URL == "" {
		return fmt.Errorf("monitor url is required")
	}
	u, err := url.Parse(c.Monitor.URL)
	if err != nil {
		return fmt.Errorf("monitor url %q: %w", c.Monitor.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("monitor url %q must be http or https", c.Monitor.URL)
	}
	format, err := monitor.ParseFormat(c.Monitor.Format)
	if err != nil {
		return err
	}
	if c.Monitor.Stream == "" {
		return fmt.Errorf("monitor stream is required")
	}
	if format == monitor.FormatNginxRTMP && c.Monitor.Application == "" {
		return fmt.Errorf("monitor application is required for %s stats", monitor.FormatNginxRTMP)
	}
	if c.Switch.OfflineAsset == "" {
		return fmt.Errorf("switch offline_asset is required")
	}
	if c.Switch.LiveSource == "" {
		return fmt.Errorf("switch live_source is required")
	}
	if c.Switch.Output == "" {
		return fmt.Errorf("switch output is required")
	}
	if c.Delivery.Destination == "" {
		return fmt.Errorf("delivery destination is required")
	}
	if c.Delivery.BackoffMax < c.Delivery.BackoffInitial {
		return fmt.Errorf("delivery backoff_max (%s) must be >= backoff_initial (%s)",
			c.Delivery.BackoffMax, c.Delivery.BackoffInitial)
	}
	return nil
}

// StreamURL joins the destination and the stream key into the full publish
// URL. The key is appended as the final path element.
func (d DeliveryConfig) StreamURL() string {
	if d.StreamKey == "" {
		return d.Destination
	}
	return strings.TrimRight(d.Destination, "/") + "/" + d.StreamKey
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/switchr"
	"github.com/loykin/switchr/pkg/client"
)

// newAPIClient builds the daemon client from the shared connection flags.
func newAPIClient(f APIFlags) *client.Client {
	cfg := client.DefaultConfig()
	if f.APIUrl != "" {
		cfg.BaseURL = f.APIUrl
	}
	if f.APITimeout > 0 {
		cfg.Timeout = f.APITimeout
	}
	return client.New(cfg)
}

func runStatus(f APIFlags) error {
	c := newAPIClient(f)
	st, err := c.Status(context.Background())
	if err != nil {
		return fmt.Errorf("daemon status: %w", err)
	}
	printJSON(st)
	return nil
}

func runRelays(f APIFlags) error {
	c := newAPIClient(f)
	relays, err := c.Relays(context.Background())
	if err != nil {
		return fmt.Errorf("daemon relays: %w", err)
	}
	printJSON(relays)
	return nil
}

func runTransitions(f APIFlags, limit int) error {
	c := newAPIClient(f)
	entries, err := c.Transitions(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("daemon transitions: %w", err)
	}
	printJSON(entries)
	return nil
}

func runCheckConfig(path string) error {
	if path == "" {
		return fmt.Errorf("config file required. Use --config=config.toml or provide as argument")
	}
	cfg, err := switchr.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	fmt.Printf("config %s OK\n", path)
	printJSON(cfg)
	return nil
}

func runServe(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}

	cfg, err := switchr.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	log := cfg.Log.NewSlogger()

	// Metrics are registered before the supervisor starts so the very first
	// relay start is counted.
	var collector *switchr.RelayCollector
	if cfg.Metrics.Enabled {
		if err := switchr.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		collector = switchr.NewRelayCollector(switchr.RelayCollectorConfig{
			Enabled:  true,
			Interval: cfg.Metrics.ProcessInterval,
		})
		if err := switchr.RegisterRelayCollectorDefault(collector); err != nil {
			log.Warn("failed to register relay collector", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := switchr.ServeMetrics(cfg.Metrics.Listen); err != nil {
					log.Error("metrics server error", "error", err)
				}
			}()
		}
	}

	s, err := switchr.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to assemble supervisor: %w", err)
	}
	if err := s.Start(); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if collector != nil {
		collector.Start(ctx, s.Supervisor().RelayPIDs)
	}

	var server interface{ Close() error }
	if cfg.Server.Enabled {
		server, err = switchr.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, s, collector)
		if err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
		log.Info("serving operational API", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
	}

	log.Info("switchr running", "state", string(s.State()), "stream", cfg.Monitor.Stream)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	cancel()
	if collector != nil {
		collector.Stop()
	}
	if server != nil {
		_ = server.Close()
	}
	return s.Shutdown()
}

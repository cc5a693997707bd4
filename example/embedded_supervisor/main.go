// Embeds the switchr supervisor in-process: configuration is built in code
// instead of TOML, and the operational API is served from the same binary.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/switchr"
)

func main() {
	cfg := &switchr.Config{}
	cfg.Monitor.URL = "http://127.0.0.1:8080/stat"
	cfg.Monitor.Application = "live"
	cfg.Monitor.Stream = "studio"
	cfg.Switch.OfflineAsset = "/srv/media/offline.mp4"
	cfg.Switch.LiveSource = "rtmp://127.0.0.1/live/studio"
	cfg.Switch.Output = "rtmp://127.0.0.1/switch/out"
	cfg.Delivery.Destination = "rtmp://ingest.example.com/app"
	cfg.Delivery.StreamKey = "streamkey"
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	s, err := switchr.New(cfg, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "assemble:", err)
		os.Exit(1)
	}
	if err := s.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(1)
	}

	server, err := switchr.NewHTTPServer(":8888", "/api", s, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "http:", err)
		os.Exit(1)
	}
	fmt.Println("supervisor running, state:", s.State())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_ = server.Close()
	if err := s.Shutdown(); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
	}
}

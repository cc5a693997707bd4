// Mounts switchr's read-only status handler inside an echo application, the
// way a larger media-control plane would expose the switcher next to its own
// routes.
package main

import (
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
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
	defer func() { _ = s.Shutdown() }()

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/", func(c echo.Context) error {
		return c.String(200, "control plane with embedded switchr status under /switchr/*")
	})

	// switchr's gin-powered handler mounts like any other http.Handler.
	statusHandler := switchr.NewRouterHandler("/switchr", s, nil)
	e.Any("/switchr/*", echo.WrapHandler(statusHandler))

	if err := e.Start(":8080"); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
	}
}

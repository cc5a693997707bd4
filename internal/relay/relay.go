// Package relay builds the engine command lines for the two supervised
// relay roles. Everything runs in copy mode; the supervisor decides which
// spec is active, this package only knows how to express them.
package relay

import (
	"github.com/loykin/switchr/internal/logger"
	"github.com/loykin/switchr/internal/process"
)

// Roles of the two relay processes under supervision. The switch relay is
// swapped on state transitions; the delivery relay is never restarted for
// a transition.
const (
	RoleSwitch   = "switch"
	RoleDelivery = "delivery"
)

// DefaultEngine is used when no engine binary is configured.
const DefaultEngine = "ffmpeg"

// Config carries the endpoints and engine shared by all spec builders.
// Destination must already include the stream key.
type Config struct {
	Engine       string
	OfflineAsset string
	LiveSource   string
	SwitchOutput string
	Destination  string
	WorkDir      string
	Env          []string
	Log          logger.Config
}

// OfflineSpec is the switch relay in the OFFLINE state: loop the offline
// asset into the switch output forever. -re paces the file read to realtime
// and -stream_loop -1 must precede its input.
func (c Config) OfflineSpec() process.Spec {
	args := append(baseArgs(),
		"-re", "-stream_loop", "-1",
		"-i", c.OfflineAsset,
		"-c", "copy",
		"-f", "flv", c.SwitchOutput,
	)
	return c.spec(RoleSwitch, args)
}

// LiveSpec is the switch relay in the LIVE state: pass the live source
// through to the switch output. The source is realtime already, so no -re.
func (c Config) LiveSpec() process.Spec {
	args := append(baseArgs(),
		"-i", c.LiveSource,
		"-c", "copy",
		"-f", "flv", c.SwitchOutput,
	)
	return c.spec(RoleSwitch, args)
}

// DeliverySpec is the persistent relay: forward the switch output to the
// destination untouched.
func (c Config) DeliverySpec() process.Spec {
	args := append(baseArgs(),
		"-i", c.SwitchOutput,
		"-c", "copy",
		"-f", "flv", c.Destination,
	)
	return c.spec(RoleDelivery, args)
}

// baseArgs keeps engine chatter down and stdin closed; a detached relay
// must never block reading terminal input.
func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-loglevel", "warning"}
}

func (c Config) spec(role string, args []string) process.Spec {
	engine := c.Engine
	if engine == "" {
		engine = DefaultEngine
	}
	return process.Spec{
		Role:    role,
		Command: engine,
		Args:    args,
		WorkDir: c.WorkDir,
		Env:     c.Env,
		Log:     c.Log,
	}
}

package process

import (
	"encoding/json"
	"time"
)

// State is the observable lifecycle state of a managed relay process.
type State int

const (
	StateNotFound State = iota // nothing under management
	StateRunning
	StateExited // terminated but not yet replaced or cleared
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "not_found"
	}
}

// MarshalJSON renders the state as its string name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Status is a non-blocking point-in-time view of the managed process.
type Status struct {
	State    State `json:"state"`
	PID      int   `json:"pid,omitempty"`
	ExitCode int   `json:"exit_code"` // meaningful only when State is StateExited
}

// Record tracks one relay role across runs. PID and RunID identify the
// current run and are cleared once the process is confirmed terminated;
// StartedAt/StoppedAt/ExitCode describe the most recent run.
type Record struct {
	Role      string    `json:"role"`
	RunID     string    `json:"run_id,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Command   string    `json:"command,omitempty"`
	Args      []string  `json:"args,omitempty"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Restarts  int       `json:"restarts"`
}

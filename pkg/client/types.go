package client

import "time"

// Presence mirrors the daemon's monitor snapshot.
type Presence struct {
	Raw       bool      `json:"raw"`
	Debounced bool      `json:"debounced"`
	SampledAt time.Time `json:"sampled_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Transition is one entry of the transition log, newest first.
type Transition struct {
	At     time.Time `json:"at"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason"`
}

// Status is the daemon's /status payload.
type Status struct {
	State          string      `json:"state"`
	Running        bool        `json:"running"`
	StartedAt      time.Time   `json:"started_at"`
	UptimeSeconds  float64     `json:"uptime_seconds"`
	Presence       Presence    `json:"presence"`
	LastTransition *Transition `json:"last_transition,omitempty"`
}

// Record mirrors the daemon's view of one relay role across runs.
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

// RelayStatus mirrors the daemon's point-in-time process view. State is one
// of "running", "exited", "not_found".
type RelayStatus struct {
	State    string `json:"state"`
	PID      int    `json:"pid,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// RelayResources is the optional resource sample attached to a relay.
type RelayResources struct {
	PID        int32     `json:"pid"`
	Role       string    `json:"role"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// Relay is one element of the /relays payload.
type Relay struct {
	Role      string          `json:"role"`
	Status    RelayStatus     `json:"status"`
	Record    Record          `json:"record"`
	Resources *RelayResources `json:"resources,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

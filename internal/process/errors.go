package process

import (
	"fmt"
	"time"
)

// SpawnError reports a failed start attempt. The caller retries on its own
// schedule; the handle stays empty.
type SpawnError struct {
	Role string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s relay: %v", e.Role, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// StopTimeoutError reports that the process ignored SIGTERM for the full
// grace period and was killed. The stop itself ultimately succeeded.
type StopTimeoutError struct {
	Role  string
	PID   int
	Grace time.Duration
}

func (e *StopTimeoutError) Error() string {
	return fmt.Sprintf("stop %s relay: pid %d survived %s grace, killed", e.Role, e.PID, e.Grace)
}

// UnexpectedExit reports a relay that terminated without being asked to.
type UnexpectedExit struct {
	Role string
	PID  int
	Code int
}

func (e *UnexpectedExit) Error() string {
	return fmt.Sprintf("%s relay pid %d exited unexpectedly with code %d", e.Role, e.PID, e.Code)
}

package process

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// killReapWindow bounds the best-effort wait for the reaper after SIGKILL.
const killReapWindow = 200 * time.Millisecond

// Handle owns at most one OS process for a relay role. Every successful
// Start attaches a reaper goroutine that waits on the child, records the
// exit and closes waitDone; Stop/Poll never call cmd.Wait themselves.
type Handle struct {
	spec Spec

	opMu sync.Mutex // serializes Start/Stop/Kill against each other

	mu       sync.Mutex // guards the fields below
	cmd      *exec.Cmd
	rec      Record
	waitDone chan struct{}
}

// NewHandle builds a Handle for the given spec.
func NewHandle(spec Spec) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Handle{spec: spec, rec: Record{Role: spec.Role}}, nil
}

// Spec returns the spec this handle launches.
func (h *Handle) Spec() Spec {
	h.opMu.Lock()
	defer h.opMu.Unlock()
	return h.spec
}

// SetSpec replaces the spec used by subsequent Starts. A running process
// keeps the command line it was launched with.
func (h *Handle) SetSpec(spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	h.opMu.Lock()
	h.spec = spec
	h.opMu.Unlock()
	return nil
}

// Record returns a copy of the current record.
func (h *Handle) Record() Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := h.rec
	if h.rec.ExitCode != nil {
		code := *h.rec.ExitCode
		rec.ExitCode = &code
	}
	return rec
}

// Start launches the process if it is not already running. Starting an
// alive process is a no-op returning the unchanged record. Failure to spawn
// leaves the handle empty and returns a *SpawnError.
func (h *Handle) Start() (Record, error) {
	h.opMu.Lock()
	defer h.opMu.Unlock()
	if h.Alive() {
		return h.Record(), nil
	}
	cmd, outW, errW := h.configureCmd()
	if err := cmd.Start(); err != nil {
		closeBoth(outW, errW)
		return h.Record(), &SpawnError{Role: h.spec.Role, Err: err}
	}
	h.mu.Lock()
	restarts := h.rec.Restarts
	if !h.rec.StartedAt.IsZero() {
		restarts++
	}
	h.cmd = cmd
	h.waitDone = make(chan struct{})
	wd := h.waitDone
	h.rec = Record{
		Role:      h.spec.Role,
		RunID:     uuid.NewString(),
		PID:       cmd.Process.Pid,
		Command:   h.spec.Command,
		Args:      h.spec.Args,
		StartedAt: time.Now(),
		Restarts:  restarts,
	}
	h.mu.Unlock()
	go h.reap(cmd, wd, outW, errW)
	return h.Record(), nil
}

// Stop terminates the process: SIGTERM to the process group, wait up to
// grace, then SIGKILL. It blocks until the child is reaped (bounded after a
// kill) and clears the run identifiers. Stopping a dead or never-started
// handle is a no-op. Returns *StopTimeoutError when escalation was needed.
func (h *Handle) Stop(grace time.Duration) error {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.mu.Lock()
	cmd := h.cmd
	wd := h.waitDone
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		h.clear()
		return nil
	}
	pid := cmd.Process.Pid

	var stopErr error
	if h.Alive() {
		_ = syscall.Kill(-pid, syscall.SIGTERM)
		select {
		case <-wd:
		case <-time.After(grace):
			stopErr = &StopTimeoutError{Role: h.spec.Role, PID: pid, Grace: grace}
			_ = syscall.Kill(-pid, syscall.SIGKILL)
			select {
			case <-wd:
			case <-time.After(killReapWindow):
				// best-effort; the group got SIGKILL
			}
		}
	} else {
		// already exiting; let the reaper finish
		select {
		case <-wd:
		case <-time.After(killReapWindow):
		}
	}
	h.clear()
	return stopErr
}

// Kill force-terminates the process group without a grace period.
func (h *Handle) Kill() {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.mu.Lock()
	cmd := h.cmd
	wd := h.waitDone
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		h.clear()
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	select {
	case <-wd:
	case <-time.After(killReapWindow):
	}
	h.clear()
}

// Signal sends sig to the process group without waiting.
func (h *Handle) Signal(sig syscall.Signal) error {
	h.mu.Lock()
	cmd := h.cmd
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, sig)
}

// Poll is a non-blocking liveness check. The attached reaper makes waitDone
// authoritative: open means running, closed means exited with a recorded
// code, and an empty handle means nothing is under management.
func (h *Handle) Poll() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.waitDone == nil {
		return Status{State: StateNotFound}
	}
	select {
	case <-h.waitDone:
		code := -1
		if h.rec.ExitCode != nil {
			code = *h.rec.ExitCode
		}
		return Status{State: StateExited, PID: h.rec.PID, ExitCode: code}
	default:
		return Status{State: StateRunning, PID: h.rec.PID}
	}
}

// Alive reports whether the child is currently running. A Linux zombie
// counts as dead even though kill(pid, 0) still succeeds for it.
func (h *Handle) Alive() bool {
	h.mu.Lock()
	cmd := h.cmd
	wd := h.waitDone
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil || wd == nil {
		return false
	}
	select {
	case <-wd:
		return false
	default:
	}
	pid := cmd.Process.Pid
	if runtime.GOOS == "linux" && isZombie(pid) {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// configureCmd builds the exec.Cmd and its output writers for one run. The
// writers belong to that run and are closed by its reaper.
func (h *Handle) configureCmd() (*exec.Cmd, io.WriteCloser, io.WriteCloser) {
	spec := h.spec
	// #nosec G204 -- argv is assembled from validated config, not user input
	cmd := exec.Command(spec.Command, spec.Args...)
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var outW, errW io.WriteCloser
	fileCfg := spec.Log.File
	if fileCfg.Dir != "" || fileCfg.StdoutPath != "" || fileCfg.StderrPath != "" {
		if fileCfg.Dir != "" {
			_ = os.MkdirAll(fileCfg.Dir, 0o750)
		}
		outW, errW, _ = spec.Log.RelayWriters(spec.Role)
	}
	if outW == nil {
		outW, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	if errW == nil {
		errW, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW
	return cmd, outW, errW
}

// reap waits for the child, records its exit and releases the writers. It
// only touches the record if this cmd is still the current run.
func (h *Handle) reap(cmd *exec.Cmd, done chan struct{}, outW, errW io.WriteCloser) {
	err := cmd.Wait()
	code := 0
	if err != nil {
		code = -1
	}
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	h.mu.Lock()
	if h.cmd == cmd {
		h.rec.StoppedAt = time.Now()
		h.rec.ExitCode = &code
	}
	h.mu.Unlock()
	closeBoth(outW, errW)
	close(done)
}

// clear forgets the current run. The historical Record fields survive, the
// identifiers do not.
func (h *Handle) clear() {
	h.mu.Lock()
	h.cmd = nil
	h.waitDone = nil
	h.rec.PID = 0
	h.rec.RunID = ""
	h.mu.Unlock()
}

func closeBoth(a, b io.Closer) {
	if a != nil {
		_ = a.Close()
	}
	if b != nil {
		_ = b.Close()
	}
}

// isZombie reports whether /proc/<pid>/status shows a Z state.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

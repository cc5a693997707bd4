package process

import (
	"errors"
	"syscall"
	"testing"
	"time"
)

func shellHandle(t *testing.T, role, script string) *Handle {
	t.Helper()
	h, err := NewHandle(Spec{Role: role, Command: "/bin/sh", Args: []string{"-c", script}})
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	return h
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestStartPollStop(t *testing.T) {
	h := shellHandle(t, "switch", "sleep 5")
	rec, err := h.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rec.PID <= 0 || rec.RunID == "" || rec.StartedAt.IsZero() {
		t.Fatalf("incomplete record after start: %+v", rec)
	}
	if st := h.Poll(); st.State != StateRunning || st.PID != rec.PID {
		t.Fatalf("expected running, got %+v", st)
	}
	if !h.Alive() {
		t.Fatalf("Alive() should be true while running")
	}
	if err := h.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if st := h.Poll(); st.State != StateNotFound {
		t.Fatalf("expected not_found after stop, got %+v", st)
	}
	rec = h.Record()
	if rec.PID != 0 || rec.RunID != "" {
		t.Fatalf("identifiers should be cleared after stop: %+v", rec)
	}
}

func TestStart_Idempotent(t *testing.T) {
	h := shellHandle(t, "switch", "sleep 5")
	r1, err := h.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	r2, err := h.Start()
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if r1.PID != r2.PID || r1.RunID != r2.RunID {
		t.Fatalf("second start must be a no-op: %+v vs %+v", r1, r2)
	}
	if r2.Restarts != 0 {
		t.Fatalf("no-op start must not count as restart: %d", r2.Restarts)
	}
	_ = h.Stop(2 * time.Second)
}

func TestPoll_ExitCode(t *testing.T) {
	h := shellHandle(t, "delivery", "exit 7")
	if _, err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return h.Poll().State == StateExited })
	st := h.Poll()
	if st.ExitCode != 7 {
		t.Fatalf("exit code = %d, want 7", st.ExitCode)
	}
	rec := h.Record()
	if rec.ExitCode == nil || *rec.ExitCode != 7 || rec.StoppedAt.IsZero() {
		t.Fatalf("record not updated on exit: %+v", rec)
	}
}

func TestStop_EscalatesAfterGrace(t *testing.T) {
	h := shellHandle(t, "switch", `trap "" TERM; while :; do sleep 0.1; done`)
	rec, err := h.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// give the shell a moment to install the trap
	time.Sleep(150 * time.Millisecond)

	start := time.Now()
	err = h.Stop(300 * time.Millisecond)
	var ste *StopTimeoutError
	if !errors.As(err, &ste) {
		t.Fatalf("expected *StopTimeoutError, got %v", err)
	}
	if ste.PID != rec.PID {
		t.Fatalf("timeout error pid = %d, want %d", ste.PID, rec.PID)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("stop returned before grace elapsed: %s", elapsed)
	}
	if st := h.Poll(); st.State != StateNotFound {
		t.Fatalf("expected not_found after escalated stop, got %+v", st)
	}
	waitFor(t, time.Second, func() bool { return syscall.Kill(rec.PID, 0) != nil })
}

func TestStop_NeverStarted(t *testing.T) {
	h := shellHandle(t, "switch", "sleep 1")
	if err := h.Stop(time.Second); err != nil {
		t.Fatalf("Stop on empty handle: %v", err)
	}
	if st := h.Poll(); st.State != StateNotFound {
		t.Fatalf("expected not_found, got %+v", st)
	}
}

func TestStop_AlreadyExited(t *testing.T) {
	h := shellHandle(t, "delivery", "exit 0")
	if _, err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return h.Poll().State == StateExited })
	if err := h.Stop(time.Second); err != nil {
		t.Fatalf("Stop of exited process: %v", err)
	}
	if st := h.Poll(); st.State != StateNotFound {
		t.Fatalf("expected not_found, got %+v", st)
	}
}

func TestStart_SpawnError(t *testing.T) {
	h, err := NewHandle(Spec{Role: "switch", Command: "/definitely/not/here"})
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	_, err = h.Start()
	var se *SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SpawnError, got %v", err)
	}
	if se.Role != "switch" {
		t.Fatalf("spawn error role = %q", se.Role)
	}
	if st := h.Poll(); st.State != StateNotFound {
		t.Fatalf("failed spawn must leave handle empty, got %+v", st)
	}
}

func TestRestartCounting(t *testing.T) {
	h := shellHandle(t, "delivery", "exit 0")
	r1, err := h.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return h.Poll().State == StateExited })
	r2, err := h.Start()
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if r2.Restarts != 1 {
		t.Fatalf("restarts = %d, want 1", r2.Restarts)
	}
	if r2.RunID == r1.RunID || r2.RunID == "" {
		t.Fatalf("restart must mint a fresh run id")
	}
	waitFor(t, 2*time.Second, func() bool { return h.Poll().State == StateExited })
}

func TestSignal(t *testing.T) {
	h := shellHandle(t, "switch", "sleep 5")
	if _, err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return h.Poll().State == StateExited })
}

func TestKill(t *testing.T) {
	h := shellHandle(t, "switch", `trap "" TERM; while :; do sleep 0.1; done`)
	rec, err := h.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	h.Kill()
	if st := h.Poll(); st.State != StateNotFound {
		t.Fatalf("expected not_found after kill, got %+v", st)
	}
	waitFor(t, time.Second, func() bool { return syscall.Kill(rec.PID, 0) != nil })
}

// The whole process group must die with the leader, including children the
// relay spawned itself.
func TestStop_KillsProcessGroup(t *testing.T) {
	h := shellHandle(t, "switch", "sleep 30 & wait")
	if _, err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := h.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if st := h.Poll(); st.State != StateNotFound {
		t.Fatalf("expected not_found, got %+v", st)
	}
}

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestWriteAndRemovePidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchr.pid")
	if err := writePidFile(path, 4242); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	pid, err := strconv.Atoi(string(b))
	if err != nil || pid != 4242 {
		t.Fatalf("unexpected pid file content %q", b)
	}
	if err := removePidFile(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("pid file still exists")
	}
}

func TestRemovePidFileEmptyPathIsNoop(t *testing.T) {
	if err := removePidFile(""); err != nil {
		t.Fatalf("empty path should be a no-op, got %v", err)
	}
}

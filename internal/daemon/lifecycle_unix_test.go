//go:build unix

package daemon

import (
	"context"
	"os"
	"syscall"
	"testing"
)

func TestLifecycleSignal(t *testing.T) {
	cfg := testLifecycleConfig(t)
	cfg.Signals = []os.Signal{syscall.SIGUSR1}
	l := NewLifecycle(&stubEngine{}, cfg)

	errCh := runLifecycle(context.Background(), l)
	waitReady(t, l, errCh)

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if err := waitRun(t, errCh); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := StopReason(l.Server().reason.Load()); got != StopSignal {
		t.Fatalf("stop reason = %v, want %v", got, StopSignal)
	}
	if _, err := os.Stat(cfg.PIDFile); !os.IsNotExist(err) {
		t.Fatal("PID file not removed after signal")
	}
}

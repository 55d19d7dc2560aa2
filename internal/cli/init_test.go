package cli

import (
	"context"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"fintrack/internal/log"
)

func TestOpenStorageCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "fintrack.db")
	repo, err := OpenStorage(log.Discard(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer repo.Close()
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestSignalContextCancelsOnSignal(t *testing.T) {
	ctx, cancel := SignalContext(context.Background(), log.Discard())
	defer cancel()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
}

func TestSetupLoggerLevel(t *testing.T) {
	logger := SetupLogger("error")
	if logger.Enabled(context.Background(), -4) {
		t.Fatal("debug should be disabled at error level")
	}
}

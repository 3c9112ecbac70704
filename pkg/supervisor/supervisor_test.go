package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gridpp-storage/xrootdrestart/pkg/config"
	"github.com/gridpp-storage/xrootdrestart/pkg/logger"
	"github.com/gridpp-storage/xrootdrestart/pkg/maintenance"
)

type blockingWindow struct{}

func (blockingWindow) asWindow(t *testing.T) *maintenance.Window {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "block.js")
	if err := os.WriteFile(path, []byte(`function allowed(hour, weekday) { return false; }`), 0644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
	w, err := maintenance.Load(path)
	if err != nil {
		t.Fatalf("maintenance.Load: %v", err)
	}
	return w
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Servers = []string{"node-a"}
	cfg.MinOK = 1
	cfg.AlertURL = ""
	cfg.MetricsMethod = config.MetricsPush // skip starting a real PULL HTTP server
	cfg.PrivKeyFile = "/nonexistent"

	log, err := logger.New(logger.Config{Level: "INFO"})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	s, err := New(cfg, log, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.close() })
	return s
}

func TestTickReturnsExitErrorWhenInsufficientServers(t *testing.T) {
	s := newTestSupervisor(t)
	s.ring.AdjustOK(-10)

	code, done := s.tick(context.Background())
	if !done {
		t.Fatal("tick: want done=true on insufficient servers")
	}
	if code != ExitError {
		t.Errorf("code = %d, want ExitError", code)
	}
}

func TestTickSkipsOutsideMaintenanceWindow(t *testing.T) {
	s := newTestSupervisor(t)
	s.ring.AdjustOK(-10) // would be insufficient if the tick were allowed through

	blockAll := &blockingWindow{}
	s.window = blockAll.asWindow(t)

	_, done := s.tick(context.Background())
	if done {
		t.Error("tick: want done=false when maintenance window blocks the restart")
	}
}

package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xrootdrestart.conf")

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClusterID != "production" {
		t.Errorf("ClusterID = %q, want default", cfg.ClusterID)
	}

	reloaded, err := Load(path, false)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.ClusterID != cfg.ClusterID || reloaded.SSHUser != cfg.SSHUser {
		t.Errorf("reloaded config %+v does not match original %+v", reloaded, cfg)
	}
}

func TestRoundTripPreservesServers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xrootdrestart.conf")

	cfg := DefaultConfig()
	cfg.Servers = []string{"node-a", "node-b", "node-c"}
	cfg.path = path
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reloaded.Servers) != 3 {
		t.Fatalf("Servers = %v, want 3 entries", reloaded.Servers)
	}
	for i, want := range []string{"node-a", "node-b", "node-c"} {
		if reloaded.Servers[i] != want {
			t.Errorf("Servers[%d] = %q, want %q", i, reloaded.Servers[i], want)
		}
	}
}

func TestRoundTripEmptyServers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xrootdrestart.conf")

	cfg := DefaultConfig()
	cfg.Servers = nil
	cfg.path = path
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reloaded.Servers) != 0 {
		t.Errorf("Servers = %v, want empty", reloaded.Servers)
	}
}

func TestValidateFallsBackOnUnknownMetricsMethod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsMethod = "BOGUS"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.MetricsMethod != MetricsPull {
		t.Errorf("MetricsMethod = %q, want fallback to PULL", cfg.MetricsMethod)
	}
}

func TestValidateFallsBackOnUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "NOISY"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.LogLevel != "INFO" {
		t.Errorf("LogLevel = %q, want fallback to INFO", cfg.LogLevel)
	}
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClusterID = ""
	if err := Validate(cfg); err == nil {
		t.Error("Validate: want error for missing cluster_id, got nil")
	}
}

func TestValidateRejectsNonPositiveCmsdPeriod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CmsdPeriod = 0
	if err := Validate(cfg); err == nil {
		t.Error("Validate: want error for cmsd_period=0, got nil")
	}
}

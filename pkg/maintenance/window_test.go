package maintenance

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "window.js")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
	return path
}

func TestNilWindowAlwaysAllows(t *testing.T) {
	var w *Window
	if !w.Allows(time.Now()) {
		t.Error("nil window should always allow")
	}
}

func TestWindowBlocksConfiguredHours(t *testing.T) {
	path := writeScript(t, `function allowed(hour, weekday) { return hour < 6 || hour > 22; }`)
	w, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	noon := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	if w.Allows(noon) {
		t.Error("expected restart blocked at noon")
	}

	night := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	if !w.Allows(night) {
		t.Error("expected restart allowed at 02:00 UTC")
	}
}

func TestLoadRejectsMissingAllowedFunction(t *testing.T) {
	path := writeScript(t, `function notAllowed() { return true; }`)
	if _, err := Load(path); err == nil {
		t.Error("Load: want error for script missing allowed(), got nil")
	}
}

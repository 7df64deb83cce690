// ABOUTME: Tests for configuration defaults, path expansion, and persistence
// ABOUTME: Redirects XDG env vars into t.TempDir for isolation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harper/feedsync/internal/models"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}

	if got := cfg.GetBackend(); got != "sqlite" {
		t.Errorf("GetBackend() = %q, want sqlite", got)
	}
	if got := cfg.GetPageSize(); got != 20 {
		t.Errorf("GetPageSize() = %d, want 20", got)
	}
	if got := cfg.GetOrder(); got != models.Descending {
		t.Errorf("GetOrder() = %v, want Descending", got)
	}
	if got := cfg.GetBackoffBase(); got != 2*time.Second {
		t.Errorf("GetBackoffBase() = %v, want 2s", got)
	}
	if got := cfg.GetPollInterval(); got != 30*time.Second {
		t.Errorf("GetPollInterval() = %v, want 30s", got)
	}
}

func TestOverrides(t *testing.T) {
	cfg := &Config{Backend: "memory", PageSize: 7, Order: "asc", BackoffSeconds: 5, PollSeconds: 60}

	if got := cfg.GetBackend(); got != "memory" {
		t.Errorf("GetBackend() = %q, want memory", got)
	}
	if got := cfg.GetPageSize(); got != 7 {
		t.Errorf("GetPageSize() = %d, want 7", got)
	}
	if got := cfg.GetOrder(); got != models.Ascending {
		t.Errorf("GetOrder() = %v, want Ascending", got)
	}
	if got := cfg.GetBackoffBase(); got != 5*time.Second {
		t.Errorf("GetBackoffBase() = %v, want 5s", got)
	}
	if got := cfg.GetPollInterval(); got != time.Minute {
		t.Errorf("GetPollInterval() = %v, want 1m", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/data", filepath.Join(home, "data")},
		{"/abs/path", "/abs/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadFirstRunWritesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GetBackend() != "sqlite" {
		t.Errorf("first-run backend = %q, want sqlite", cfg.GetBackend())
	}
	if _, err := os.Stat(GetConfigPath()); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := &Config{Backend: "memory", PageSize: 12, Order: "asc"}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Backend != "memory" || loaded.PageSize != 12 || loaded.Order != "asc" {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected error for corrupt config")
	}
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	cfg := &Config{Backend: "carrier-pigeon"}
	if _, err := cfg.OpenStore(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := &Config{Backend: "sqlite", DataDir: t.TempDir()}
	s, err := cfg.OpenStore()
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer s.Close()
}

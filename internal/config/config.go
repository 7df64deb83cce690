// ABOUTME: Configuration management with storage backend selection
// ABOUTME: JSON config under XDG paths plus a store factory and engine tunables

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harper/feedsync/internal/models"
	"github.com/harper/feedsync/internal/netgate"
	"github.com/harper/feedsync/internal/store"
)

// Config stores feedsync configuration.
type Config struct {
	// Backend selects the storage backend: "sqlite" (default), "kv" (Charm
	// Cloud), or "memory".
	Backend string `json:"backend,omitempty"`

	// DataDir is the root directory for local data. SQLite puts feedsync.db
	// here. Supports ~ expansion. Defaults to ~/.local/share/feedsync.
	DataDir string `json:"data_dir,omitempty"`

	// PageSize is the fetch page size. Defaults to 20.
	PageSize int `json:"page_size,omitempty"`

	// Order is "desc" (default, newest first) or "asc".
	Order string `json:"order,omitempty"`

	// ProbeAddr is the host:port dialed by the connectivity probe.
	ProbeAddr string `json:"probe_addr,omitempty"`

	// BackoffSeconds is the base reconnect delay for live counters.
	BackoffSeconds int `json:"backoff_seconds,omitempty"`

	// PollSeconds is the counter poll interval once reconnects give up.
	PollSeconds int `json:"poll_seconds,omitempty"`
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return "sqlite"
	}
	return c.Backend
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return defaultDataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetPageSize returns the fetch page size, defaulting to 20.
func (c *Config) GetPageSize() int {
	if c.PageSize <= 0 {
		return 20
	}
	return c.PageSize
}

// GetOrder maps the configured direction string onto a sort order.
func (c *Config) GetOrder() models.Order {
	if c.Order == "asc" {
		return models.Ascending
	}
	return models.Descending
}

// GetProbeAddr returns the connectivity probe address.
func (c *Config) GetProbeAddr() string {
	if c.ProbeAddr == "" {
		return netgate.DefaultProbeAddr
	}
	return c.ProbeAddr
}

// GetBackoffBase returns the base reconnect delay, defaulting to 2s.
func (c *Config) GetBackoffBase() time.Duration {
	if c.BackoffSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.BackoffSeconds) * time.Second
}

// GetPollInterval returns the fallback poll interval, defaulting to 30s.
func (c *Config) GetPollInterval() time.Duration {
	if c.PollSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PollSeconds) * time.Second
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStore creates a Store implementation based on the configured backend.
func (c *Config) OpenStore() (store.Store, error) {
	switch c.GetBackend() {
	case "sqlite":
		return store.NewSQLiteStore(filepath.Join(c.GetDataDir(), "feedsync.db"))
	case "kv":
		return store.NewKVStore()
	case "memory":
		return store.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown backend: %q", c.Backend)
	}
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "feedsync", "config.json")
}

// Load reads config from disk, writing defaults on first run.
func Load() (*Config, error) {
	path := GetConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			if saveErr := cfg.Save(); saveErr != nil {
				fmt.Fprintf(os.Stderr, "warning: could not save default config: %v\n", saveErr)
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to disk atomically.
func (c *Config) Save() error {
	path := GetConfigPath()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// defaultDataDir returns the standard XDG data directory for feedsync.
func defaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "feedsync")
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	SocketPath         string
	DBPath             string
	MetricsAddr        string
	ReconcileInterval  time.Duration
	StalePendingFactor int
	EventRetention     time.Duration
	RetentionInterval  time.Duration
	LogLevel           string
	LogFormat          string
	TraceStdout        bool
}

func DefaultConfig() Config {
	return Config{
		SocketPath:         defaultSocketPath(),
		DBPath:             defaultDBPath(),
		ReconcileInterval:  5 * time.Second,
		StalePendingFactor: 3,
		EventRetention:     30 * 24 * time.Hour,
		RetentionInterval:  time.Hour,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type fileConfig struct {
	SocketPath         string   `toml:"socket_path"`
	DBPath             string   `toml:"db_path"`
	MetricsAddr        string   `toml:"metrics_addr"`
	ReconcileInterval  duration `toml:"reconcile_interval"`
	StalePendingFactor int      `toml:"stale_pending_factor"`
	EventRetention     duration `toml:"event_retention"`
	RetentionInterval  duration `toml:"retention_interval"`
	Log                struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Tracing struct {
		Stdout bool `toml:"stdout"`
	} `toml:"tracing"`
}

// Load reads a TOML config file on top of DefaultConfig. A missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if fc.SocketPath != "" {
		cfg.SocketPath = fc.SocketPath
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	cfg.MetricsAddr = fc.MetricsAddr
	if meta.IsDefined("reconcile_interval") {
		cfg.ReconcileInterval = fc.ReconcileInterval.Duration
	}
	if meta.IsDefined("stale_pending_factor") {
		cfg.StalePendingFactor = fc.StalePendingFactor
	}
	if meta.IsDefined("event_retention") {
		cfg.EventRetention = fc.EventRetention.Duration
	}
	if meta.IsDefined("retention_interval") {
		cfg.RetentionInterval = fc.RetentionInterval.Duration
	}
	if fc.Log.Level != "" {
		cfg.LogLevel = fc.Log.Level
	}
	if fc.Log.Format != "" {
		cfg.LogFormat = fc.Log.Format
	}
	cfg.TraceStdout = fc.Tracing.Stdout

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.SocketPath) == "" {
		return fmt.Errorf("socket_path is required")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile_interval must be positive")
	}
	if c.StalePendingFactor < 0 {
		return fmt.Errorf("stale_pending_factor must not be negative")
	}
	if c.EventRetention < 0 {
		return fmt.Errorf("event_retention must not be negative")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "puppeteer", "puppeteerd.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".puppeteerd.sock"
	}
	return filepath.Join(home, ".local", "state", "puppeteer", "puppeteerd.sock")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "puppeteer.db"
	}
	return filepath.Join(home, ".local", "state", "puppeteer", "state.db")
}

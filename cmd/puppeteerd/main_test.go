package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfigFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "puppeteerd.toml")
	body := `
socket_path = "/tmp/from-file.sock"
db_path = "/tmp/from-file.db"
reconcile_interval = "2s"
stale_pending_factor = 5

[log]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := parseConfig([]string{"-config", path, "-socket", "/tmp/flag.sock"}, io.Discard)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.SocketPath != "/tmp/flag.sock" {
		t.Fatalf("expected flag socket path, got %q", cfg.SocketPath)
	}
	if cfg.DBPath != "/tmp/from-file.db" {
		t.Fatalf("expected file db path, got %q", cfg.DBPath)
	}
	if cfg.ReconcileInterval != 2*time.Second || cfg.StalePendingFactor != 5 {
		t.Fatalf("unexpected loop settings: %+v", cfg)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log settings: %+v", cfg)
	}
}

func TestParseConfigRejectsUnknownFlag(t *testing.T) {
	if _, err := parseConfig([]string{"-tty-v2-pane-tap"}, io.Discard); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestParseConfigRejectsUnknownFileKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("event_payload_ttl = \"1h\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := parseConfig([]string{"-config", path}, io.Discard); err == nil {
		t.Fatalf("expected error for unknown config key")
	}
}

func TestLoopIntervalFallback(t *testing.T) {
	if got := loopInterval(0, time.Hour); got != time.Hour {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := loopInterval(3*time.Second, time.Hour); got != 3*time.Second {
		t.Fatalf("expected configured interval, got %s", got)
	}
}

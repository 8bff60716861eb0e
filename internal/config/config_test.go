package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Port)
	}
	if cfg.FillProbability != 0.7 {
		t.Errorf("expected fill probability 0.7, got %v", cfg.FillProbability)
	}
	if cfg.SessionBackend != "memory" {
		t.Errorf("expected memory sessions, got %q", cfg.SessionBackend)
	}
	if cfg.MongoDatabase != "NUAM" {
		t.Errorf("expected NUAM database, got %q", cfg.MongoDatabase)
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("expected 5s connect timeout, got %v", cfg.ConnectTimeout)
	}
	if len(cfg.AllowedOrigins) != 3 {
		t.Errorf("expected 3 default origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("NUAM_PORT", "9090")
	t.Setenv("NUAM_MATCH_MODE", "always")
	t.Setenv("NUAM_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.MatchMode != "always" {
		t.Errorf("expected match mode always, got %q", cfg.MatchMode)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("expected 3s, got %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nuam.yaml")
	content := "port: 8181\nstorage: memory\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8181 || cfg.Storage != "memory" || cfg.LogLevel != "debug" {
		t.Errorf("config file not applied: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "Port", key: "NUAM_PORT", value: "70000"},
		{name: "LogLevel", key: "NUAM_LOG_LEVEL", value: "verbose"},
		{name: "Storage", key: "NUAM_STORAGE", value: "sqlite"},
		{name: "SessionBackend", key: "NUAM_SESSION_BACKEND", value: "memcached"},
		{name: "MatchMode", key: "NUAM_MATCH_MODE", value: "sometimes"},
		{name: "FillProbability", key: "NUAM_FILL_PROBABILITY", value: "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(""); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

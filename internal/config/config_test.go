package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:5432" {
		t.Fatalf("expected default listen addr, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.MaxConnections != 100 || cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if !cfg.Engine.SharedCatalog || cfg.Engine.ServerVersion != "16.4" {
		t.Fatalf("unexpected engine defaults %+v", cfg.Engine)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	// 1. A config file overrides defaults.
	path := filepath.Join(t.TempDir(), "pgmem.yaml")
	data := []byte("server:\n  listen_addr: 0.0.0.0:6543\n  max_connections: 8\nengine:\n  shared_catalog: false\nlog:\n  format: json\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// 2. The environment overrides the file.
	t.Setenv("PGMEM_SERVER_MAX_CONNECTIONS", "3")
	t.Setenv("PGMEM_LOG_LEVEL", "DEBUG")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.ListenAddr != "0.0.0.0:6543" {
		t.Fatalf("expected listen addr from file, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.MaxConnections != 3 {
		t.Fatalf("expected max connections 3 from env, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Engine.SharedCatalog {
		t.Fatalf("expected shared_catalog false from file")
	}
	if got := cfg.Log.Logging(); got.Level != "DEBUG" || got.Format != "json" {
		t.Fatalf("unexpected log config %+v", got)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.ListenAddr = "" }},
		{"zero connections", func(c *Config) { c.Server.MaxConnections = 0 }},
		{"negative timeout", func(c *Config) { c.Server.ShutdownTimeout = -time.Second }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server: ServerConfig{ListenAddr: ":5432", MaxConnections: 1},
				Log:    LogConfig{Format: "text"},
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected a validation error")
			}
		})
	}
}

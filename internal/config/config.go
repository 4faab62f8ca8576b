// Package config loads pgmem's configuration from defaults, an optional
// pgmem.yaml, PGMEM_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pgmem/internal/logging"
)

// Config is the full configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Engine EngineConfig `mapstructure:"engine"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MetricsAddr     string        `mapstructure:"metrics_addr"` // empty disables /metrics
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type EngineConfig struct {
	// SharedCatalog makes every connection see the same database. Otherwise
	// each connection starts from an empty one.
	SharedCatalog bool   `mapstructure:"shared_catalog"`
	ServerVersion string `mapstructure:"server_version"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

// Logging converts to the logging package's config.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format, AddSource: c.AddSource}
}

const envPrefix = "PGMEM"

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", "127.0.0.1:5432")
	v.SetDefault("server.max_connections", 100)
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("engine.shared_catalog", true)
	v.SetDefault("engine.server_version", "16.4")
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.add_source", false)
}

// Load reads the configuration into a Config. file names an explicit config
// file; when empty, pgmem.yaml is looked up in the working directory and
// $HOME/.pgmem and may be absent.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("pgmem")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pgmem")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("config: server.listen_addr must be set")
	}
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("config: server.max_connections must be positive, got %d", c.Server.MaxConnections)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("config: server.shutdown_timeout must not be negative, got %s", c.Server.ShutdownTimeout)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

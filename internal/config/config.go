// Package config loads opstaskd's configuration from an optional YAML
// file, environment variables, and CLI flags, in that precedence
// order (flags win).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// HTTPConfig controls the control-plane transport.
type HTTPConfig struct {
	// Addr is a TCP listen address, e.g. "127.0.0.1:8090". Mutually
	// exclusive with UnixSocket.
	Addr string `yaml:"addr"`

	// UnixSocket is a filesystem path for a Unix domain socket.
	// Mutually exclusive with Addr.
	UnixSocket string `yaml:"unix_socket"`

	// BasePath is an optional path prefix stripped from incoming
	// requests before routing.
	BasePath string `yaml:"base_path"`

	// EnableIPv6 opts into binding an IPv6 TCP listener with
	// IPV6_V6ONLY cleared, when Addr resolves to an IPv6 address.
	EnableIPv6 bool `yaml:"enable_ipv6"`
}

// LoggingConfig controls log/slog handler construction.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`
	// Format is "json" or "text". Defaults to text.
	Format string `yaml:"format"`
}

// TimeoutsConfig overrides the Execution Runner's bounds.
type TimeoutsConfig struct {
	Task      time.Duration `yaml:"task"`
	Condition time.Duration `yaml:"condition"`
}

// Config is opstaskd's top-level configuration.
type Config struct {
	DBPath         string         `yaml:"db_path"`
	DefaultAccount string         `yaml:"default_account"`
	HTTP           HTTPConfig     `yaml:"http"`
	Logging        LoggingConfig  `yaml:"logging"`
	Timeouts       TimeoutsConfig `yaml:"timeouts"`
}

// DefaultConfig returns sensible defaults for a bare install.
func DefaultConfig() Config {
	return Config{
		DBPath: "opstaskd.db",
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Timeouts: TimeoutsConfig{
			Task:      900 * time.Second,
			Condition: 60 * time.Second,
		},
	}
}

// Load reads a YAML config file at path (if non-empty) over
// DefaultConfig, then applies environment variable overrides. The
// default TCP address is left empty here and filled in by Effective
// only when no Unix socket is configured, so a socket set by file, env
// or flag does not collide with the default address.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	cfg.HTTP.Addr = ""

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies the environment variables named in
// spec.md §6: SCHEDULER_TASK_TIMEOUT, SCHEDULER_CONDITION_TIMEOUT,
// SCHEDULER_DB_PATH, SCHEDULER_BASE_PATH, SCHEDULER_UNIX_SOCKET,
// SCHEDULER_DEFAULT_ACCOUNT.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCHEDULER_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("SCHEDULER_BASE_PATH"); v != "" {
		c.HTTP.BasePath = v
	}
	if v := os.Getenv("SCHEDULER_UNIX_SOCKET"); v != "" {
		c.HTTP.UnixSocket = v
	}
	if v := os.Getenv("SCHEDULER_DEFAULT_ACCOUNT"); v != "" {
		c.DefaultAccount = v
	}
	if v := os.Getenv("SCHEDULER_TASK_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Timeouts.Task = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("SCHEDULER_CONDITION_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Timeouts.Condition = time.Duration(secs) * time.Second
		}
	}
}

// Effective resolves zero-valued fields to DefaultConfig's values, so
// a partially-specified YAML file or flag set still yields a usable
// configuration.
func (c Config) Effective() Config {
	d := DefaultConfig()
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.HTTP.Addr == "" && c.HTTP.UnixSocket == "" {
		c.HTTP.Addr = d.HTTP.Addr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Timeouts.Task <= 0 {
		c.Timeouts.Task = d.Timeouts.Task
	}
	if c.Timeouts.Condition <= 0 {
		c.Timeouts.Condition = d.Timeouts.Condition
	}
	return c
}

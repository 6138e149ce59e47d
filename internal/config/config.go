// Package config loads and saves ~/.alfred/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leonletto/alfred/internal/paths"
)

// Defaults for the daemon section.
const (
	DefaultPort               = 7654
	DefaultIdleTimeoutMinutes = 30
	DefaultLogLevel           = "info"
	DefaultRunner             = "llama-cli"
)

// Config is the whole config.yaml document.
type Config struct {
	ModelPath string       `yaml:"model_path,omitempty"`
	Runner    string       `yaml:"runner,omitempty"`
	LogLevel  string       `yaml:"log_level,omitempty"`
	Daemon    DaemonConfig `yaml:"daemon"`
}

// DaemonConfig holds the settings alferd reads once at startup.
type DaemonConfig struct {
	Port               uint16 `yaml:"port"`
	IdleTimeoutMinutes uint32 `yaml:"idle_timeout_minutes"` // 0 = never
	AutoStart          bool   `yaml:"auto_start"`
}

// Default returns a Config with every field at its default.
func Default() *Config {
	return &Config{
		Runner:   DefaultRunner,
		LogLevel: DefaultLogLevel,
		Daemon: DaemonConfig{
			Port:               DefaultPort,
			IdleTimeoutMinutes: DefaultIdleTimeoutMinutes,
		},
	}
}

// Load reads config.yaml from the alfred directory and applies ALFRED_*
// environment overrides. A missing file yields defaults.
func Load() (*Config, error) {
	dir, err := paths.AlfredDir()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFile(paths.ConfigFile(dir))
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads one config file without environment overrides. Fields
// absent from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // G304 - path inside the alfred directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// Save writes cfg to config.yaml in the alfred directory.
func Save(cfg *Config) error {
	dir, err := paths.EnsureDir()
	if err != nil {
		return err
	}
	return SaveFile(paths.ConfigFile(dir), cfg)
}

// SaveFile writes cfg to path via a temp file and rename so readers never
// see a partial document.
func SaveFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Validate checks values that cannot be normalized away.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}

// IdleTimeout converts the configured minutes. Zero disables the timeout.
func (d DaemonConfig) IdleTimeout() time.Duration {
	return time.Duration(d.IdleTimeoutMinutes) * time.Minute
}

// Addr is the loopback address alferd binds and alfred dials.
func (d DaemonConfig) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", d.Port)
}

// ResolvedModelPath returns ModelPath, or the default model location under
// dir when it is unset. A leading ~ is expanded.
func (c *Config) ResolvedModelPath(dir string) string {
	if c.ModelPath == "" {
		return paths.DefaultModelPath(dir)
	}
	if rest, ok := strings.CutPrefix(c.ModelPath, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return c.ModelPath
}

func (c *Config) normalize() {
	if c.Daemon.Port == 0 {
		c.Daemon.Port = DefaultPort
	}
	if c.Runner == "" {
		c.Runner = DefaultRunner
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Package config handles btu paths and user configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/d2verb/btu/internal/client"
	"github.com/d2verb/btu/internal/daemon"
	"github.com/d2verb/btu/internal/pathutil"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvSocketPath = "BTU_SOCKET_PATH"
	EnvLogLevel   = "BTU_LOG_LEVEL"
)

// Paths holds common paths used by btu.
type Paths struct {
	Home      string
	Config    string
	Socket    string
	PID       string
	Schedules string
	Logs      string
	DaemonLog string
}

// GetPaths returns the paths for the current user.
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return pathsUnder(filepath.Join(home, ".btu")), nil
}

func pathsUnder(btuHome string) *Paths {
	logsDir := filepath.Join(btuHome, "logs")
	return &Paths{
		Home:      btuHome,
		Config:    filepath.Join(btuHome, "config.yaml"),
		Socket:    filepath.Join(btuHome, "btu.sock"),
		PID:       filepath.Join(btuHome, "btu.pid"),
		Schedules: filepath.Join(btuHome, "schedules"),
		Logs:      logsDir,
		DaemonLog: filepath.Join(logsDir, "daemon.log"),
	}
}

// EnsureDirectories creates the required directories if they don't exist.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.Home, p.Schedules, p.Logs}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// Config holds user-tunable settings.
type Config struct {
	SocketPath       string
	SchedulesDir     string
	Timeout          time.Duration
	MaxResponseBytes int
	IdleTimeout      time.Duration
	LogLevel         string
	MetricsAddr      string // empty disables the metrics endpoint
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig(paths *Paths) Config {
	return Config{
		SocketPath:       paths.Socket,
		SchedulesDir:     paths.Schedules,
		Timeout:          client.DefaultTimeout,
		MaxResponseBytes: client.DefaultMaxResponseBytes,
		IdleTimeout:      daemon.DefaultIdleTimeout,
		LogLevel:         "info",
	}
}

// fileConfig is the on-disk shape shared by config.yaml and config.toml.
// Pointer fields tell "unset" apart from zero values.
type fileConfig struct {
	SocketPath       *string `yaml:"socket_path" toml:"socket_path"`
	SchedulesDir     *string `yaml:"schedules_dir" toml:"schedules_dir"`
	Timeout          *string `yaml:"timeout" toml:"timeout"`
	MaxResponseBytes *int    `yaml:"max_response_bytes" toml:"max_response_bytes"`
	IdleTimeout      *string `yaml:"idle_timeout" toml:"idle_timeout"`
	LogLevel         *string `yaml:"log_level" toml:"log_level"`
	MetricsAddr      *string `yaml:"metrics_addr" toml:"metrics_addr"`
}

// Load reads the config file at path over the defaults and applies
// environment overrides. A missing file is not an error. Files ending in
// .toml are parsed as TOML, everything else as YAML.
func Load(path string, paths *Paths) (Config, error) {
	cfg := DefaultConfig(paths)

	raw, err := readFile(path)
	if err != nil {
		return Config{}, err
	}
	if raw != nil {
		if err := cfg.overlay(raw, filepath.Dir(path)); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw fileConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		return &raw, nil
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &raw, nil
}

func (c *Config) overlay(raw *fileConfig, baseDir string) error {
	var err error
	if raw.SocketPath != nil {
		if c.SocketPath, err = pathutil.ResolvePath(strings.TrimSpace(*raw.SocketPath), baseDir); err != nil {
			return fmt.Errorf("socket_path: %w", err)
		}
	}
	if raw.SchedulesDir != nil {
		if c.SchedulesDir, err = pathutil.ResolvePath(strings.TrimSpace(*raw.SchedulesDir), baseDir); err != nil {
			return fmt.Errorf("schedules_dir: %w", err)
		}
	}
	if raw.Timeout != nil {
		if c.Timeout, err = time.ParseDuration(strings.TrimSpace(*raw.Timeout)); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	if raw.MaxResponseBytes != nil {
		c.MaxResponseBytes = *raw.MaxResponseBytes
	}
	if raw.IdleTimeout != nil {
		if c.IdleTimeout, err = time.ParseDuration(strings.TrimSpace(*raw.IdleTimeout)); err != nil {
			return fmt.Errorf("idle_timeout: %w", err)
		}
	}
	if raw.LogLevel != nil {
		c.LogLevel = strings.TrimSpace(*raw.LogLevel)
	}
	if raw.MetricsAddr != nil {
		c.MetricsAddr = strings.TrimSpace(*raw.MetricsAddr)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvSocketPath); ok && v != "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSocketPath, err)
		}
		if c.SocketPath, err = pathutil.ResolvePath(v, cwd); err != nil {
			return fmt.Errorf("%s: %w", EnvSocketPath, err)
		}
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate rejects settings the client or daemon cannot run with.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return errors.New("socket_path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxResponseBytes <= 0 {
		return fmt.Errorf("max_response_bytes must be positive, got %d", c.MaxResponseBytes)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout cannot be negative, got %s", c.IdleTimeout)
	}
	return nil
}

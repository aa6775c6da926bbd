package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/d2verb/btu/internal/client"
	"github.com/d2verb/btu/internal/daemon"
)

func TestGetPaths(t *testing.T) {
	paths, err := GetPaths()
	if err != nil {
		t.Fatalf("GetPaths() error = %v", err)
	}

	home, _ := os.UserHomeDir()
	btuHome := filepath.Join(home, ".btu")
	logsDir := filepath.Join(btuHome, "logs")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Home", paths.Home, btuHome},
		{"Config", paths.Config, filepath.Join(btuHome, "config.yaml")},
		{"Socket", paths.Socket, filepath.Join(btuHome, "btu.sock")},
		{"PID", paths.PID, filepath.Join(btuHome, "btu.pid")},
		{"Schedules", paths.Schedules, filepath.Join(btuHome, "schedules")},
		{"Logs", paths.Logs, logsDir},
		{"DaemonLog", paths.DaemonLog, filepath.Join(logsDir, "daemon.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestPaths_EnsureDirectories(t *testing.T) {
	// Arrange
	paths := pathsUnder(filepath.Join(t.TempDir(), ".btu"))
	if _, err := os.Stat(paths.Home); !os.IsNotExist(err) {
		t.Fatal("Home directory should not exist before EnsureDirectories")
	}

	// Act
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() error = %v", err)
	}

	// Assert
	for _, dir := range []string{paths.Home, paths.Schedules, paths.Logs} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("Directory %q should exist: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%q should be a directory", dir)
		}
	}
	if err := paths.EnsureDirectories(); err != nil {
		t.Errorf("EnsureDirectories() second call error = %v", err)
	}
}

func writeConfig(t *testing.T, name, content string) (string, *Paths) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path, pathsUnder(filepath.Join(dir, ".btu"))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvSocketPath, "")
	t.Setenv(EnvLogLevel, "")
	paths := pathsUnder(filepath.Join(t.TempDir(), ".btu"))

	cfg, err := Load(paths.Config, paths)

	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != DefaultConfig(paths) {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, DefaultConfig(paths))
	}
}

func TestDefaultConfig_MatchesComponentDefaults(t *testing.T) {
	cfg := DefaultConfig(pathsUnder("/home/u/.btu"))

	if cfg.Timeout != client.DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, client.DefaultTimeout)
	}
	if cfg.MaxResponseBytes != client.DefaultMaxResponseBytes {
		t.Errorf("MaxResponseBytes = %d, want %d", cfg.MaxResponseBytes, client.DefaultMaxResponseBytes)
	}
	if cfg.IdleTimeout != daemon.DefaultIdleTimeout {
		t.Errorf("IdleTimeout = %v, want %v", cfg.IdleTimeout, daemon.DefaultIdleTimeout)
	}
}

func TestLoad_YAML(t *testing.T) {
	// Arrange
	t.Setenv(EnvSocketPath, "")
	t.Setenv(EnvLogLevel, "")
	path, paths := writeConfig(t, "config.yaml", `
socket_path: run/btu.sock
timeout: 2s
max_response_bytes: 4096
idle_timeout: 30s
log_level: debug
metrics_addr: 127.0.0.1:9464
`)

	// Act
	cfg, err := Load(path, paths)

	// Assert
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(filepath.Dir(path), "run/btu.sock"); cfg.SocketPath != want {
		t.Errorf("SocketPath = %q, want %q", cfg.SocketPath, want)
	}
	if cfg.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Timeout)
	}
	if cfg.MaxResponseBytes != 4096 {
		t.Errorf("MaxResponseBytes = %d, want 4096", cfg.MaxResponseBytes)
	}
	if cfg.IdleTimeout != 30*time.Second {
		t.Errorf("IdleTimeout = %v, want 30s", cfg.IdleTimeout)
	}
	if cfg.LogLevel != "debug" || cfg.MetricsAddr != "127.0.0.1:9464" {
		t.Errorf("LogLevel = %q, MetricsAddr = %q", cfg.LogLevel, cfg.MetricsAddr)
	}
	if cfg.SchedulesDir != paths.Schedules {
		t.Errorf("SchedulesDir = %q, want default %q", cfg.SchedulesDir, paths.Schedules)
	}
}

func TestLoad_TOML(t *testing.T) {
	t.Setenv(EnvSocketPath, "")
	t.Setenv(EnvLogLevel, "")
	path, paths := writeConfig(t, "config.toml", `
socket_path = "/tmp/btu-toml.sock"
timeout = "750ms"
log_level = "warn"
`)

	cfg, err := Load(path, paths)

	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SocketPath != "/tmp/btu-toml.sock" {
		t.Errorf("SocketPath = %q, want %q", cfg.SocketPath, "/tmp/btu-toml.sock")
	}
	if cfg.Timeout != 750*time.Millisecond {
		t.Errorf("Timeout = %v, want 750ms", cfg.Timeout)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "warn")
	}
	if cfg.MaxResponseBytes != 2048 {
		t.Errorf("MaxResponseBytes = %d, want default 2048", cfg.MaxResponseBytes)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path, paths := writeConfig(t, "config.yaml", "socket_path: /tmp/from-file.sock\nlog_level: info\n")
	t.Setenv(EnvSocketPath, "/tmp/from-env.sock")
	t.Setenv(EnvLogLevel, "error")

	cfg, err := Load(path, paths)

	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SocketPath != "/tmp/from-env.sock" {
		t.Errorf("SocketPath = %q, want %q", cfg.SocketPath, "/tmp/from-env.sock")
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "error")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantText string
	}{
		{"bad yaml", "config.yaml", "timeout: [", "parse config"},
		{"bad toml", "config.toml", "timeout = ", "parse config"},
		{"bad duration", "config.yaml", "timeout: soon", "timeout"},
		{"zero timeout", "config.yaml", "timeout: 0s", "timeout must be positive"},
		{"empty socket", "config.yaml", `socket_path: ""`, "socket_path"},
		{"negative cap", "config.yaml", "max_response_bytes: -1", "max_response_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvSocketPath, "")
			t.Setenv(EnvLogLevel, "")
			path, paths := writeConfig(t, tt.file, tt.content)

			_, err := Load(path, paths)

			if err == nil || !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantText)
			}
		})
	}
}

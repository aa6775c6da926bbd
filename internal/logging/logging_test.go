package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultFileConfig(t *testing.T) {
	// Arrange
	path := "/var/log/btu.log"

	// Act
	cfg := DefaultFileConfig(path)

	// Assert
	if cfg.Path != path {
		t.Errorf("Path = %q, want %q", cfg.Path, path)
	}
	if cfg.MaxSizeMB != 50 || cfg.MaxBackups != 3 || cfg.MaxAgeDays != 7 {
		t.Errorf("rotation = %d MB / %d backups / %d days, want 50 / 3 / 7", cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	}
	if !cfg.Compress {
		t.Error("Compress = false, want true")
	}
}

func TestNewRotatingWriter(t *testing.T) {
	// Arrange
	logPath := filepath.Join(t.TempDir(), "daemon.log")
	writer := NewRotatingWriter(FileConfig{Path: logPath, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})

	// Act
	_, err := writer.Write([]byte("test log message\n"))
	writer.Close()

	// Assert
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "test log message\n" {
		t.Errorf("log file = %q, want %q", data, "test log message\n")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	// Act
	logger.Debug("hidden")
	logger.Info("test message", "key", "value")

	// Assert
	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("debug record written at info level: %q", output)
	}
	if !strings.Contains(output, "key=value") || !strings.Contains(output, "level=INFO") {
		t.Errorf("unexpected log output: %q", output)
	}
}

func TestNewLeveledLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLeveledLogger(&buf, slog.LevelDebug)

	logger.Debug("visible")

	if !strings.Contains(buf.String(), "level=DEBUG") {
		t.Errorf("Log output should contain 'level=DEBUG': %q", buf.String())
	}
}

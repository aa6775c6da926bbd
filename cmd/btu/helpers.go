package main

import (
	"fmt"
	"log/slog"

	"github.com/d2verb/btu/internal/client"
	"github.com/d2verb/btu/internal/config"
	"github.com/d2verb/btu/internal/logging"
	"github.com/d2verb/btu/internal/schedule"
	"github.com/d2verb/btu/internal/ui"
)

// settings bundles the resolved paths and configuration for a command.
type settings struct {
	Paths  *config.Paths
	Config config.Config
}

func getPaths() (*config.Paths, error) {
	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("get paths: %w", err)
	}
	return paths, nil
}

// loadSettings resolves paths and reads the config file named on the
// command line, falling back to ~/.btu/config.yaml.
func loadSettings(cli *CLI) (*settings, error) {
	paths, err := getPaths()
	if err != nil {
		return nil, err
	}
	configPath := paths.Config
	if cli != nil && cli.Config != "" {
		configPath = cli.Config
	}
	cfg, err := config.Load(configPath, paths)
	if err != nil {
		return nil, err
	}
	return &settings{Paths: paths, Config: cfg}, nil
}

func (s *settings) logLevel() slog.Level {
	level, err := logging.ParseLevel(s.Config.LogLevel)
	if err != nil {
		ui.PrintWarning(fmt.Sprintf("%v, using info", err))
	}
	return level
}

func (s *settings) newClient() *client.Client {
	return client.New(s.Config.SocketPath,
		client.WithTimeout(s.Config.Timeout),
		client.WithMaxResponseBytes(s.Config.MaxResponseBytes),
	)
}

func (s *settings) store() *schedule.Store {
	return schedule.NewStore(s.Config.SchedulesDir)
}

// scheduleInfo converts a definition for display.
func scheduleInfo(d *schedule.Definition) ui.ScheduleInfo {
	return ui.ScheduleInfo{
		ID:          d.ID,
		Task:        d.Task,
		Cron:        d.Cron,
		Enabled:     d.IsEnabled(),
		Description: d.Description,
	}
}

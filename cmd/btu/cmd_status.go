package main

import (
	"context"
	"errors"
	"time"

	"github.com/d2verb/btu/internal/daemon"
	"github.com/d2verb/btu/internal/ui"
)

type StatusCmd struct{}

func (c *StatusCmd) Run(cli *CLI) error {
	s, err := loadSettings(cli)
	if err != nil {
		return err
	}

	status, err := daemon.GetStatus(daemon.PIDFile(s.Paths.PID), s.Config.SocketPath)
	out := ui.DaemonStatus{
		State:   daemonState(status, err),
		PID:     status.PID,
		Socket:  s.Config.SocketPath,
		LogPath: s.Paths.DaemonLog,
	}
	if err != nil && !errors.Is(err, daemon.ErrStaleSocket) {
		ui.PrintWarning(err.Error())
	}

	if status.SocketReachable {
		start := time.Now()
		if err := s.newClient().Ping(context.Background()); err == nil {
			out.Latency = time.Since(start).Round(10 * time.Microsecond).String()
		}
	}

	ui.PrintStatus(out)
	if out.State == ui.StateNotRunning {
		return &ExitError{Code: exitDaemonNotRunning}
	}
	return nil
}

// daemonState maps the process and socket checks to a display state.
func daemonState(status *daemon.Status, err error) string {
	switch {
	case errors.Is(err, daemon.ErrStaleSocket):
		return ui.StateStale
	case status.Running && status.SocketReachable:
		return ui.StateRunning
	case status.Running || status.SocketReachable:
		return ui.StateStale
	default:
		return ui.StateNotRunning
	}
}

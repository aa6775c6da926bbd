package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/d2verb/btu/internal/daemon"
	"github.com/d2verb/btu/internal/ui"
	"golang.org/x/sys/unix"
)

type StopCmd struct {
	Timeout time.Duration `default:"10s" help:"How long to wait before forcing the daemon down"`
}

func (c *StopCmd) Run(cli *CLI) error {
	s, err := loadSettings(cli)
	if err != nil {
		return err
	}
	pidFile := daemon.PIDFile(s.Paths.PID)

	status, err := daemon.GetStatus(pidFile, s.Config.SocketPath)
	if err != nil && !errors.Is(err, daemon.ErrStaleSocket) {
		return fmt.Errorf("check daemon status: %w", err)
	}

	if !status.Running {
		ui.PrintInfo("Daemon is not running")
		// Clean up stale files
		pidFile.Remove()
		if errors.Is(err, daemon.ErrStaleSocket) {
			ui.PrintWarning(fmt.Sprintf("Another process answers on %s; leaving it alone", s.Config.SocketPath))
		} else {
			os.Remove(s.Config.SocketPath)
		}
		return nil
	}

	ui.PrintInfo("Stopping daemon...")
	if err := unix.Kill(status.PID, unix.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(c.Timeout)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		running, err := daemon.ProcessAlive(status.PID)
		if err != nil {
			return err
		}
		if !running {
			pidFile.Remove()
			ui.PrintSuccess("Daemon stopped")
			return nil
		}
	}

	// Force kill if still running
	ui.PrintWarning("Daemon did not stop gracefully, forcing...")
	if err := unix.Kill(status.PID, unix.SIGKILL); err != nil {
		return fmt.Errorf("kill daemon: %w", err)
	}
	pidFile.Remove()
	os.Remove(s.Config.SocketPath)
	ui.PrintSuccess("Daemon stopped")
	return nil
}

package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

type LogsCmd struct {
	Follow bool `short:"f" help:"Follow log output in real-time (tail -f)"`
	Lines  int  `short:"n" default:"50" help:"Number of lines to show"`
}

func (c *LogsCmd) Run(cli *CLI) error {
	s, err := loadSettings(cli)
	if err != nil {
		return err
	}
	logPath := s.Paths.DaemonLog

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return fmt.Errorf("log file not found: %s\nHint: Start the daemon first with 'btu start'", logPath)
	}

	tailPath, err := exec.LookPath("tail")
	if err != nil {
		return fmt.Errorf("tail command not found in PATH (install coreutils or similar)")
	}

	// Replace current process with tail
	return syscall.Exec(tailPath, tailArgs(logPath, c.Lines, c.Follow), os.Environ())
}

func tailArgs(logPath string, lines int, follow bool) []string {
	args := []string{"tail", "-n", fmt.Sprint(lines)}
	if follow {
		args = append(args, "-f")
	}
	return append(args, logPath)
}

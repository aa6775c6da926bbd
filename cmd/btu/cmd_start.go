package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/d2verb/btu/internal/daemon"
	"github.com/d2verb/btu/internal/logging"
	"github.com/d2verb/btu/internal/observability"
	"github.com/d2verb/btu/internal/schedule"
	"github.com/d2verb/btu/internal/ui"
)

type StartCmd struct {
	Foreground bool `short:"f" help:"Run in the foreground and log to stderr"`
	Daemon     bool `name:"daemon" hidden:"" help:"Run daemon process (internal)"`
}

func (c *StartCmd) Run(cli *CLI) error {
	s, err := loadSettings(cli)
	if err != nil {
		return err
	}
	pidFile := daemon.PIDFile(s.Paths.PID)

	// Check if already running
	status, err := daemon.GetStatus(pidFile, s.Config.SocketPath)
	if err != nil && !errors.Is(err, daemon.ErrStaleSocket) {
		ui.PrintWarning(err.Error())
	}
	if status.Running {
		ui.PrintInfo(fmt.Sprintf("Daemon is already running (PID: %d)", status.PID))
		return nil
	}

	// Clean up stale files if any
	if status.PID > 0 {
		pidFile.Remove()
	}

	if err := s.Paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	if c.Daemon || c.Foreground {
		return c.runDaemon(s)
	}
	return c.startBackground(s, cli.Config)
}

func (c *StartCmd) startBackground(s *settings, configPath string) error {
	// Re-exec ourselves with internal daemon flag
	args := []string{"start", "--daemon"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(os.Args[0], args...)
	cmd.Env = os.Environ()
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session and detach from terminal
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// Wait for daemon to become ready (max 5 seconds)
	cl := s.newClient()
	for range 50 {
		time.Sleep(100 * time.Millisecond)
		if err := cl.Ping(context.Background()); err == nil {
			ui.PrintSuccess(fmt.Sprintf("Daemon started (PID: %d)", cmd.Process.Pid))
			ui.PrintInfo(fmt.Sprintf("Logs: %s", s.Paths.DaemonLog))
			return nil
		}
	}

	return fmt.Errorf("daemon did not start within 5 seconds, check logs: %s", s.Paths.DaemonLog)
}

func (c *StartCmd) runDaemon(s *settings) error {
	// Set up log writer
	var logger *slog.Logger
	if c.Foreground {
		logger = logging.NewLeveledLogger(os.Stderr, s.logLevel())
	} else {
		w := logging.NewRotatingWriter(logging.DefaultFileConfig(s.Paths.DaemonLog))
		defer w.Close()
		logger = logging.NewLeveledLogger(w, s.logLevel())
	}

	pidFile := daemon.PIDFile(s.Paths.PID)
	if err := pidFile.Write(); err != nil {
		return err
	}
	defer pidFile.Remove()

	observability.RegisterMetrics()
	registry := schedule.NewRegistry(s.store())
	server := daemon.NewServer(
		daemon.NewScheduler(registry, logger),
		s.Config.SocketPath,
		daemon.WithLogger(logger),
		daemon.WithIdleTimeout(s.Config.IdleTimeout),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	logger.Info("daemon started", "pid", os.Getpid(), "version", version, "schedules", s.Config.SchedulesDir)

	if s.Config.MetricsAddr != "" {
		stopMetrics := serveMetrics(s.Config.MetricsAddr, logger)
		defer stopMetrics()
	}

	select {
	case <-ctx.Done():
	case <-server.Done():
		// The reactor stopped on its own; Stop reports why.
	}

	if err := server.Stop(); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	logger.Info("daemon stopped")
	return nil
}

// serveMetrics exposes Prometheus metrics on addr until the returned
// function is called.
func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics shutdown", "error", err)
		}
	}
}

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/d2verb/btu/internal/logging"
	"github.com/d2verb/btu/internal/protocol"
	"github.com/d2verb/btu/internal/reactor"
	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultIdleTimeout closes connections that never finish their exchange.
	DefaultIdleTimeout = 10 * time.Second

	listenBacklog = 64
)

// Server accepts connections on a Unix socket and drives them from a single
// reactor goroutine.
type Server struct {
	socketPath  string
	dispatcher  Dispatcher
	logger      *slog.Logger
	limits      protocol.Limits
	idleTimeout time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	reactor  *reactor.Reactor
	listener reactor.FD
	conns    map[int]*Conn // owned by the reactor goroutine
	done     chan struct{}
	runErr   error
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithIdleTimeout sets how long a connection may stay silent before it is
// closed. Zero disables the check.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.idleTimeout = d }
}

// WithLimits sets the frame decoding limits.
func WithLimits(limits protocol.Limits) ServerOption {
	return func(s *Server) { s.limits = limits }
}

// NewServer creates a new daemon server.
func NewServer(dispatcher Dispatcher, socketPath string, opts ...ServerOption) *Server {
	s := &Server{
		socketPath:  socketPath,
		dispatcher:  dispatcher,
		logger:      logging.Discard(),
		limits:      protocol.DefaultLimits(),
		idleTimeout: DefaultIdleTimeout,
		listener:    -1,
		conns:       make(map[int]*Conn),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string { return s.socketPath }

// Start starts listening on the Unix socket and runs the reactor in the
// background until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	// Remove existing socket file
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	listener, err := reactor.ListenUnix(s.socketPath, listenBacklog)
	if err != nil {
		return err
	}

	// Set socket permissions to owner-only (0600)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return err
	}

	var opts []reactor.Option
	if s.idleTimeout > 0 {
		opts = append(opts, reactor.WithTick(sweepInterval(s.idleTimeout), s.sweep))
	}
	r, err := reactor.New(s.logger, opts...)
	if err != nil {
		listener.Close()
		return err
	}
	if err := r.Register(int(listener), reactor.Readable, reactor.HandlerFunc(s.accept)); err != nil {
		listener.Close()
		r.Close()
		return err
	}

	s.listener = listener
	s.reactor = r
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.logger.Info("listening", "socket", s.socketPath)

	go s.run()
	return nil
}

// Stop stops the reactor, closes every open connection and removes the
// socket file.
func (s *Server) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	return s.runErr
}

// Done is closed once the server has shut down.
func (s *Server) Done() <-chan struct{} { return s.done }

func (s *Server) run() {
	defer close(s.done)

	var result *multierror.Error
	if err := s.reactor.Run(s.ctx); err != nil {
		result = multierror.Append(result, err)
	}
	// Closing the reactor closes every Conn still registered.
	if err := s.reactor.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.listener.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close listener: %w", err))
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, fmt.Errorf("remove socket: %w", err))
	}
	s.runErr = result.ErrorOrNil()
	s.logger.Info("stopped", "socket", s.socketPath)
}

// accept drains the listener's backlog.
func (s *Server) accept(reactor.Event) {
	for {
		fd, err := reactor.Accept(s.listener)
		if err != nil {
			if !reactor.IsWouldBlock(err) {
				s.logger.Warn("accept failed", "error", err)
			}
			return
		}

		c := newConn(s.ctx, int(fd), fd, s.reactor, s.dispatcher, s.limits, s.logger)
		c.onClose = s.forget
		s.conns[int(fd)] = c
		if err := s.reactor.Register(int(fd), reactor.Readable, c); err != nil {
			c.fail(err)
			continue
		}
		s.logger.Debug("accepted connection", "conn", int(fd))
	}
}

func (s *Server) forget(c *Conn) {
	if s.conns[c.fd] == c {
		delete(s.conns, c.fd)
	}
}

// sweep closes connections idle for longer than the idle timeout.
func (s *Server) sweep(now time.Time) {
	cutoff := now.Add(-s.idleTimeout)
	for _, c := range s.conns {
		if c.Idle(cutoff) {
			c.Expire()
		}
	}
}

func sweepInterval(idle time.Duration) time.Duration {
	return max(idle/4, 10*time.Millisecond)
}


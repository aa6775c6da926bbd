// Package client provides a blocking client for the scheduler daemon.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/d2verb/btu/internal/logging"
	"github.com/d2verb/btu/internal/protocol"
	"github.com/google/uuid"
)

const (
	// DefaultTimeout bounds a whole exchange: connect, write and read.
	DefaultTimeout = 5 * time.Second
	// DefaultMaxResponseBytes caps how much of a reply is read.
	DefaultMaxResponseBytes = 2048

	readChunk = 512
)

// ErrSocketNotFound is returned when the socket path does not exist. No
// connection is attempted.
var ErrSocketNotFound = fmt.Errorf("%w: socket not found", protocol.ErrConfiguration)

// Client communicates with the daemon via Unix socket. Each call opens its
// own connection and carries exactly one request.
type Client struct {
	socketPath       string
	timeout          time.Duration
	maxResponseBytes int
	logger           *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the deadline applied to each exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxResponseBytes sets the response size cap.
func WithMaxResponseBytes(n int) Option {
	return func(c *Client) { c.maxResponseBytes = n }
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a new daemon client.
func New(socketPath string, opts ...Option) *Client {
	c := &Client{
		socketPath:       socketPath,
		timeout:          DefaultTimeout,
		maxResponseBytes: DefaultMaxResponseBytes,
		logger:           logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SocketPath returns the daemon socket path.
func (c *Client) SocketPath() string { return c.socketPath }

// Call sends one request and returns the decoded reply: the JSON value for
// text/json content, the raw bytes for anything else. A daemon that closes
// the connection without sending a byte yields (nil, nil).
func (c *Client) Call(ctx context.Context, requestType protocol.RequestType, content any) (any, error) {
	f, err := c.exchange(ctx, protocol.NewRequest(requestType, content))
	if err != nil || f == nil {
		return nil, err
	}
	return f.Value()
}

// Send sends a request and decodes the reply into a Response.
func (c *Client) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	f, err := c.exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%w: daemon closed the connection without replying", protocol.ErrPeerClosed)
	}

	var resp protocol.Response
	if err := f.Unmarshal(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Send(ctx, protocol.NewRequest(protocol.RequestPing, nil))
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if resp.Result != "pong" {
		return &protocol.ProtocolError{Reason: fmt.Sprintf("unexpected ping reply %v", resp.Result)}
	}
	return nil
}

// ReloadTaskSchedule asks the daemon to (re)load a schedule definition and
// returns its acknowledgment.
func (c *Client) ReloadTaskSchedule(ctx context.Context, id string) (string, error) {
	return c.command(ctx, protocol.RequestCreateTaskSchedule, id)
}

// CancelTaskSchedule asks the daemon to drop a schedule from its active set
// and returns its acknowledgment.
func (c *Client) CancelTaskSchedule(ctx context.Context, id string) (string, error) {
	return c.command(ctx, protocol.RequestCancelTaskSchedule, id)
}

func (c *Client) command(ctx context.Context, requestType protocol.RequestType, id string) (string, error) {
	resp, err := c.Send(ctx, protocol.NewRequest(requestType, id))
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	return fmt.Sprint(resp.Result), nil
}

// checkSocket validates the socket path without connecting.
func (c *Client) checkSocket() error {
	if c.socketPath == "" {
		return fmt.Errorf("%w: socket path is empty", protocol.ErrConfiguration)
	}
	info, err := os.Stat(c.socketPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSocketNotFound, c.socketPath)
		}
		return fmt.Errorf("%w: %w", protocol.ErrConfiguration, err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%w: %s is not a socket", protocol.ErrConfiguration, c.socketPath)
	}
	return nil
}

// exchange performs one request/response round trip. It returns a nil frame
// when the daemon hangs up before sending anything.
func (c *Client) exchange(ctx context.Context, req *protocol.Request) (*protocol.Frame, error) {
	if err := c.checkSocket(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, classify(ctx, "connect to daemon", err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %w", protocol.ErrConnection, err)
	}
	// Cancellation interrupts blocked I/O by moving the deadline into the past.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	frame, err := protocol.NewJSONFrame(req, protocol.EncodingUTF8)
	if err != nil {
		return nil, err
	}
	frame.MessageID = uuid.NewString()
	wire, err := frame.Marshal()
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(wire); err != nil {
		return nil, classify(ctx, "write request", err)
	}
	c.logger.Debug("request sent", "request_type", req.RequestType, "message_id", frame.MessageID, "bytes", len(wire))

	resp, err := c.readFrame(ctx, conn)
	if err != nil || resp == nil {
		return nil, err
	}
	if resp.MessageID != "" && resp.MessageID != frame.MessageID {
		c.logger.Warn("response message id mismatch", "sent", frame.MessageID, "received", resp.MessageID)
	}
	return resp, nil
}

// readFrame reads until one complete frame has arrived, the peer hangs up,
// the response cap is exceeded or the deadline passes.
func (c *Client) readFrame(ctx context.Context, conn net.Conn) (*protocol.Frame, error) {
	dec := protocol.NewDecoder(protocol.Limits{
		MaxHeaderBytes:  c.maxResponseBytes,
		MaxPayloadBytes: c.maxResponseBytes,
	})
	buf := make([]byte, readChunk)
	total := 0

	for {
		// Never read past the cap, so a frame larger than it cannot
		// complete within a single read.
		remaining := c.maxResponseBytes - total
		if remaining <= 0 {
			return nil, &protocol.ProtocolError{Reason: fmt.Sprintf("response exceeds %d bytes", c.maxResponseBytes)}
		}
		n, rerr := conn.Read(buf[:min(len(buf), remaining)])
		if n > 0 {
			total += n
			dec.Feed(buf[:n])
			f, err := dec.Next()
			if err != nil {
				return nil, err
			}
			if f != nil {
				return f, nil
			}
		}
		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			// Nothing at all is a legitimate empty reply; a partial frame
			// is not.
			return nil, dec.Incomplete()
		}
		return nil, classify(ctx, "read response", rerr)
	}
}

// classify wraps an I/O failure in the timeout or connection category.
func classify(ctx context.Context, op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%s: %w: %w", op, protocol.ErrConnection, ctx.Err())
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%s: %w: %w", op, protocol.ErrTimeout, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, protocol.ErrConnection, err)
	}
}

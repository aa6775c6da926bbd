package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/d2verb/btu/internal/observability"
	"github.com/d2verb/btu/internal/protocol"
	"github.com/d2verb/btu/internal/reactor"
	"github.com/hashicorp/go-multierror"
)

// ConnState is the position of a connection in its single exchange.
type ConnState int

const (
	StateAwaitingHeaderLength ConnState = iota
	StateAwaitingHeader
	StateAwaitingPayload
	StateDispatched
	StateWritingResponse
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateAwaitingHeaderLength:
		return "awaiting-header-length"
	case StateAwaitingHeader:
		return "awaiting-header"
	case StateAwaitingPayload:
		return "awaiting-payload"
	case StateDispatched:
		return "dispatched"
	case StateWritingResponse:
		return "writing-response"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// readChunk is the most read per readiness event.
const readChunk = 4096

// errIdleTimeout closes connections that stay silent too long.
var errIdleTimeout = fmt.Errorf("%w: connection idle", protocol.ErrTimeout)

// socket is the non-blocking descriptor a Conn reads and writes. Read and
// Write report "not ready" with an error satisfying reactor.IsWouldBlock.
type socket interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// registrar is the part of the reactor a Conn drives.
type registrar interface {
	Modify(fd int, interest reactor.Interest) error
	Unregister(fd int) error
}

// Conn carries one request/response exchange on a non-blocking socket. Its
// methods are called from the reactor goroutine only.
type Conn struct {
	ctx        context.Context
	fd         int
	sock       socket
	reg        registrar
	dispatcher Dispatcher
	logger     *slog.Logger
	onClose    func(*Conn)

	decoder  *protocol.Decoder
	readBuf  []byte
	sendBuf  []byte
	request  *protocol.Request
	queued   bool
	state    ConnState
	outcome  string
	lastSeen time.Time
}

func newConn(ctx context.Context, fd int, sock socket, reg registrar, dispatcher Dispatcher, limits protocol.Limits, logger *slog.Logger) *Conn {
	observability.ConnectionOpened()
	return &Conn{
		ctx:        ctx,
		fd:         fd,
		sock:       sock,
		reg:        reg,
		dispatcher: dispatcher,
		logger:     logger.With("conn", fd),
		decoder:    protocol.NewDecoder(limits),
		readBuf:    make([]byte, readChunk),
		state:      StateAwaitingHeaderLength,
		outcome:    observability.OutcomeOK,
		lastSeen:   time.Now(),
	}
}

// State returns the connection state.
func (c *Conn) State() ConnState { return c.state }

// Request returns the decoded request, or nil before it has arrived.
func (c *Conn) Request() *protocol.Request { return c.request }

// HandleEvent implements reactor.Handler.
func (c *Conn) HandleEvent(ev reactor.Event) {
	if c.state == StateClosed {
		return
	}
	if ev&(reactor.EventRead|reactor.EventHangup|reactor.EventError) != 0 && c.reading() {
		if err := c.OnReadable(); err != nil {
			c.fail(err)
			return
		}
	}
	if ev&(reactor.EventWrite|reactor.EventHangup|reactor.EventError) != 0 && c.state == StateWritingResponse {
		if err := c.OnWritable(); err != nil {
			c.fail(err)
		}
	}
}

func (c *Conn) reading() bool {
	return c.state <= StateAwaitingPayload
}

// OnReadable performs one non-blocking read and advances the decoder as far
// as the buffered bytes allow. A full request is dispatched immediately.
func (c *Conn) OnReadable() error {
	n, err := c.sock.Read(c.readBuf)
	switch {
	case reactor.IsWouldBlock(err):
		return nil
	case err != nil:
		return fmt.Errorf("read: %w", err)
	case n == 0:
		if inc := c.decoder.Incomplete(); inc != nil {
			return inc
		}
		return fmt.Errorf("%w before sending a request", protocol.ErrPeerClosed)
	}

	c.lastSeen = time.Now()
	c.decoder.Feed(c.readBuf[:n])
	frame, err := c.decoder.Next()
	c.syncState()
	if err != nil {
		return err
	}
	if frame == nil {
		return nil
	}
	if rest := c.decoder.Buffered(); rest > 0 {
		c.logger.Debug("ignoring bytes after request", "bytes", rest)
	}
	return c.process(frame)
}

func (c *Conn) syncState() {
	switch c.decoder.Stage() {
	case protocol.StageHeaderLength:
		c.state = StateAwaitingHeaderLength
	case protocol.StageHeader:
		c.state = StateAwaitingHeader
	case protocol.StagePayload:
		c.state = StateAwaitingPayload
	}
}

// process dispatches a complete request frame and queues the response.
func (c *Conn) process(frame *protocol.Frame) error {
	c.state = StateDispatched
	result := c.dispatch(frame)

	out, err := c.encode(result, frame.MessageID)
	if err != nil {
		c.logger.Error("encode response failed", "error", err)
		out, err = c.encode(protocol.NewErrorResponse(protocol.ErrCodeDispatch, err.Error()), frame.MessageID)
		if err != nil {
			return err
		}
	}

	c.sendBuf = append(c.sendBuf, out...)
	c.queued = true
	c.state = StateWritingResponse
	// One exchange per connection: stop reading once the request is in.
	return c.reg.Modify(c.fd, reactor.Writable)
}

func (c *Conn) dispatch(frame *protocol.Frame) any {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		c.logger.Warn("rejecting request", "error", err)
		observability.RecordRequest("invalid", "error", 0)
		return protocol.NewErrorResponse(protocol.ErrCodeProtocol, err.Error())
	}
	c.request = req

	start := time.Now()
	result, err := c.safeDispatch(req)
	elapsed := time.Since(start)
	if err != nil {
		code, msg := classifyDispatchError(err)
		c.logger.Warn("dispatch failed", "request_type", req.RequestType, "error", err, "duration", elapsed)
		observability.RecordRequest(req.RequestType.String(), "error", elapsed)
		return protocol.NewErrorResponse(code, msg)
	}
	c.logger.Info("request handled", "request_type", req.RequestType, "message_id", frame.MessageID, "duration", elapsed)
	observability.RecordRequest(req.RequestType.String(), "ok", elapsed)
	return result
}

func (c *Conn) safeDispatch(req *protocol.Request) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: handler panicked: %v", protocol.ErrDispatch, p)
		}
	}()
	return c.dispatcher.Dispatch(c.ctx, req)
}

// encode frames a dispatch result: raw bytes travel as opaque binary
// content, everything else as JSON.
func (c *Conn) encode(result any, messageID string) ([]byte, error) {
	var f *protocol.Frame
	if b, ok := result.([]byte); ok {
		f = protocol.NewFrame(b, protocol.ContentTypeBinary, "binary")
	} else {
		var err error
		f, err = protocol.NewJSONFrame(result, protocol.EncodingUTF8)
		if err != nil {
			return nil, err
		}
	}
	f.MessageID = messageID
	return f.Marshal()
}

// OnWritable sends as much of the queued response as the socket accepts and
// closes the connection once everything is out.
func (c *Conn) OnWritable() error {
	if len(c.sendBuf) > 0 {
		n, err := c.sock.Write(c.sendBuf)
		if err != nil && !reactor.IsWouldBlock(err) {
			return fmt.Errorf("write: %w", err)
		}
		c.sendBuf = c.sendBuf[n:]
		c.lastSeen = time.Now()
	}
	if c.queued && len(c.sendBuf) == 0 {
		return c.Close()
	}
	return nil
}

// Idle reports whether the connection has seen no traffic since before
// cutoff.
func (c *Conn) Idle(cutoff time.Time) bool {
	return c.state != StateClosed && c.lastSeen.Before(cutoff)
}

// Expire closes an idle connection.
func (c *Conn) Expire() {
	c.fail(errIdleTimeout)
}

func (c *Conn) fail(err error) {
	switch {
	case errors.Is(err, protocol.ErrProtocol):
		c.outcome = observability.OutcomeProtocolError
		c.logger.Warn("closing connection", "state", c.state, "error", err)
	case errors.Is(err, protocol.ErrPeerClosed):
		c.outcome = observability.OutcomePeerClosed
		c.logger.Debug("peer closed", "state", c.state, "error", err)
	case errors.Is(err, protocol.ErrTimeout):
		c.outcome = observability.OutcomeTimeout
		c.logger.Info("closing idle connection", "state", c.state)
	default:
		c.outcome = observability.OutcomeError
		c.logger.Error("connection error", "state", c.state, "error", err)
	}
	if cerr := c.Close(); cerr != nil {
		c.logger.Warn("close failed", "error", cerr)
	}
}

// Close unregisters and closes the socket. Later calls are no-ops.
func (c *Conn) Close() error {
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed

	var result *multierror.Error
	if err := c.reg.Unregister(c.fd); err != nil {
		result = multierror.Append(result, fmt.Errorf("unregister: %w", err))
	}
	if err := c.sock.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close socket: %w", err))
	}
	c.sendBuf = nil
	c.readBuf = nil

	observability.ConnectionClosed(c.outcome)
	if c.onClose != nil {
		c.onClose(c)
	}
	return result.ErrorOrNil()
}

// Package reactor provides a single-threaded readiness loop built on poll(2).
//
// Handlers registered with a Reactor are only ever invoked from the goroutine
// running Run, so per-connection state needs no locking.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

// Interest is the set of readiness conditions a descriptor is watched for.
type Interest int16

const (
	Readable Interest = 1 << iota
	Writable
)

func (i Interest) pollEvents() int16 {
	var ev int16
	if i&Readable != 0 {
		ev |= unix.POLLIN
	}
	if i&Writable != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

// Event reports which conditions fired for a descriptor.
type Event uint8

const (
	EventRead Event = 1 << iota
	EventWrite
	EventHangup
	EventError
)

func eventFromRevents(revents int16) Event {
	var ev Event
	if revents&unix.POLLIN != 0 {
		ev |= EventRead
	}
	if revents&unix.POLLOUT != 0 {
		ev |= EventWrite
	}
	if revents&unix.POLLHUP != 0 {
		ev |= EventHangup
	}
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		ev |= EventError
	}
	return ev
}

// Handler receives readiness events for one descriptor.
type Handler interface {
	HandleEvent(ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event)

func (f HandlerFunc) HandleEvent(ev Event) { f(ev) }

// ErrClosed is returned when using a closed reactor.
var ErrClosed = errors.New("reactor closed")

type entry struct {
	fd       int
	interest Interest
	handler  Handler
}

// Reactor multiplexes registered descriptors on one goroutine.
type Reactor struct {
	logger *slog.Logger

	// entries is only touched by the goroutine that owns the reactor: the
	// caller of Run, or the setup code before Run starts.
	entries map[int]*entry

	// wakeMu guards the wake pipe, which other goroutines write to.
	wakeMu sync.Mutex
	wakeR  int
	wakeW  int
	closed bool

	tickEvery time.Duration
	tick      func(now time.Time)
}

// Option configures a Reactor.
type Option func(*Reactor)

// WithTick calls fn from the loop goroutine roughly every interval.
func WithTick(interval time.Duration, fn func(now time.Time)) Option {
	return func(r *Reactor) {
		r.tickEvery = interval
		r.tick = fn
	}
}

// New creates a reactor with its wake-up pipe.
func New(logger *slog.Logger, opts ...Option) (*Reactor, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, fmt.Errorf("create wake pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, fmt.Errorf("set wake pipe non-blocking: %w", err)
		}
	}

	r := &Reactor{
		logger:  logger,
		entries: make(map[int]*entry),
		wakeR:   p[0],
		wakeW:   p[1],
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register starts watching fd. Registering an fd twice replaces the handler.
func (r *Reactor) Register(fd int, interest Interest, h Handler) error {
	if fd < 0 {
		return fmt.Errorf("register: invalid fd %d", fd)
	}
	r.wakeMu.Lock()
	closed := r.closed
	r.wakeMu.Unlock()
	if closed {
		return ErrClosed
	}
	r.entries[fd] = &entry{fd: fd, interest: interest, handler: h}
	return nil
}

// Modify changes the interest set of a registered fd.
func (r *Reactor) Modify(fd int, interest Interest) error {
	e, ok := r.entries[fd]
	if !ok {
		return fmt.Errorf("modify: fd %d not registered", fd)
	}
	e.interest = interest
	return nil
}

// Unregister stops watching fd. Unknown descriptors are ignored.
func (r *Reactor) Unregister(fd int) error {
	delete(r.entries, fd)
	return nil
}

// Len returns the number of registered descriptors.
func (r *Reactor) Len() int { return len(r.entries) }

// Wake interrupts a blocked poll. It is safe to call from any goroutine.
func (r *Reactor) Wake() {
	r.wakeMu.Lock()
	defer r.wakeMu.Unlock()
	if r.closed {
		return
	}
	// A full pipe already guarantees a wake-up.
	_, _ = unix.Write(r.wakeW, []byte{1})
}

// Run polls and dispatches events until ctx is done.
func (r *Reactor) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, r.Wake)
	defer stop()

	timeout := -1
	if r.tick != nil && r.tickEvery > 0 {
		timeout = int(r.tickEvery / time.Millisecond)
	}
	lastTick := time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}

		fds, owners := r.pollSet()
		if _, err := unix.Poll(fds, timeout); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}

		for i, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			if i == 0 {
				r.drainWake()
				continue
			}
			e := owners[i]
			// Skip handlers unregistered (or replaced) earlier in this pass.
			if r.entries[e.fd] != e {
				continue
			}
			r.dispatch(e, eventFromRevents(pfd.Revents))
		}

		if r.tick != nil && r.tickEvery > 0 {
			if now := time.Now(); now.Sub(lastTick) >= r.tickEvery {
				lastTick = now
				r.tick(now)
			}
		}
	}
}

// Close releases the wake pipe and closes every registered handler that
// implements io.Closer.
func (r *Reactor) Close() error {
	var result *multierror.Error

	for fd, e := range r.entries {
		if c, ok := e.handler.(io.Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close fd %d: %w", fd, err))
			}
		}
		delete(r.entries, fd)
	}

	r.wakeMu.Lock()
	defer r.wakeMu.Unlock()
	if r.closed {
		return result.ErrorOrNil()
	}
	r.closed = true
	if err := unix.Close(r.wakeR); err != nil {
		result = multierror.Append(result, fmt.Errorf("close wake pipe: %w", err))
	}
	if err := unix.Close(r.wakeW); err != nil {
		result = multierror.Append(result, fmt.Errorf("close wake pipe: %w", err))
	}
	return result.ErrorOrNil()
}

func (r *Reactor) pollSet() ([]unix.PollFd, []*entry) {
	fds := make([]unix.PollFd, 0, len(r.entries)+1)
	owners := make([]*entry, 0, len(r.entries)+1)

	fds = append(fds, unix.PollFd{Fd: int32(r.wakeR), Events: unix.POLLIN})
	owners = append(owners, nil)
	for fd, e := range r.entries {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: e.interest.pollEvents()})
		owners = append(owners, e)
	}
	return fds, owners
}

func (r *Reactor) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// dispatch runs a handler, containing panics to the offending descriptor.
func (r *Reactor) dispatch(e *entry, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panicked", "fd", e.fd, "panic", p)
			delete(r.entries, e.fd)
			if c, ok := e.handler.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}()
	e.handler.HandleEvent(ev)
}

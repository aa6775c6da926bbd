package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/d2verb/btu/internal/protocol"
	"github.com/d2verb/btu/internal/schedule"
)

// Dispatcher handles decoded requests. It runs on the reactor goroutine, so
// it must return quickly and hand long work elsewhere.
//
// The returned value is sent back as JSON, or as opaque binary content when
// it is a []byte. A returned error becomes an error response.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *protocol.Request) (any, error)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, req *protocol.Request) (any, error)

func (f DispatchFunc) Dispatch(ctx context.Context, req *protocol.Request) (any, error) {
	return f(ctx, req)
}

// scheduleRegistry is the active schedule set the scheduler manipulates.
type scheduleRegistry interface {
	Reload(id string) (bool, error)
	Cancel(id string) error
}

// Scheduler answers the daemon's request vocabulary against a schedule
// registry.
type Scheduler struct {
	registry scheduleRegistry
	logger   *slog.Logger
}

// NewScheduler creates a dispatcher over registry.
func NewScheduler(registry scheduleRegistry, logger *slog.Logger) *Scheduler {
	return &Scheduler{registry: registry, logger: logger}
}

// Dispatch implements Dispatcher.
func (s *Scheduler) Dispatch(ctx context.Context, req *protocol.Request) (any, error) {
	switch req.RequestType {
	case protocol.RequestPing:
		return protocol.NewResultResponse("pong"), nil
	case protocol.RequestCreateTaskSchedule:
		return s.handleCreate(req)
	case protocol.RequestCancelTaskSchedule:
		return s.handleCancel(req)
	default:
		return nil, &protocol.ProtocolError{Reason: fmt.Sprintf("unknown request type %q", string(req.RequestType))}
	}
}

func (s *Scheduler) handleCreate(req *protocol.Request) (any, error) {
	id, err := req.ScheduleID()
	if err != nil {
		return nil, err
	}
	replaced, err := s.registry.Reload(id)
	if err != nil {
		return nil, fmt.Errorf("reload task schedule: %w", err)
	}
	verb := "loaded"
	if replaced {
		verb = "reloaded"
	}
	s.logger.Info("task schedule "+verb, "id", id)
	return protocol.NewResultResponse(fmt.Sprintf("Task Schedule %s %s.", id, verb)), nil
}

func (s *Scheduler) handleCancel(req *protocol.Request) (any, error) {
	id, err := req.ScheduleID()
	if err != nil {
		return nil, err
	}
	if err := s.registry.Cancel(id); err != nil {
		return nil, fmt.Errorf("cancel task schedule: %w", err)
	}
	s.logger.Info("task schedule cancelled", "id", id)
	return protocol.NewResultResponse(fmt.Sprintf("Task Schedule %s cancelled.", id)), nil
}

// classifyDispatchError determines the error code based on the error type.
func classifyDispatchError(err error) (code, message string) {
	msg := err.Error()

	if schedule.IsNotFound(err) {
		return protocol.ErrCodeScheduleNotFound, msg
	}

	if protocol.IsProtocolError(err) {
		return protocol.ErrCodeProtocol, msg
	}

	return protocol.ErrCodeDispatch, msg
}

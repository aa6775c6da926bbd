package main

import (
	"errors"
	"fmt"

	"github.com/d2verb/btu/internal/protocol"
	"github.com/d2verb/btu/internal/schedule"
)

// Exit codes for CLI commands.
const (
	exitSuccess          = 0
	exitError            = 1
	exitDaemonNotRunning = 2
	exitScheduleNotFound = 3
	exitTimeout          = 4
	exitProtocolError    = 5
)

// ExitError represents an error that should cause the process to exit with a specific code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func errDaemonNotRunning() *ExitError {
	return &ExitError{
		Code:    exitDaemonNotRunning,
		Message: "Daemon is not running.\nRun: btu start",
	}
}

func errScheduleNotFound(id string) *ExitError {
	return &ExitError{
		Code:    exitScheduleNotFound,
		Message: fmt.Sprintf("Task schedule '%s' not found.", id),
	}
}

func errTimeout(err error) *ExitError {
	return &ExitError{
		Code:    exitTimeout,
		Message: fmt.Sprintf("Daemon did not answer in time: %v", err),
	}
}

// mapClientError converts client and daemon errors to user-facing exit
// errors. id names the schedule the request was about, if any.
func mapClientError(err error, id string) error {
	var remote *protocol.RemoteError
	switch {
	case err == nil:
		return nil
	case schedule.IsNotFound(err):
		return errScheduleNotFound(id)
	case errors.As(err, &remote):
		if remote.Code == protocol.ErrCodeScheduleNotFound {
			return errScheduleNotFound(id)
		}
		return &ExitError{Code: exitError, Message: fmt.Sprintf("Daemon rejected the request: %s", remote.Message)}
	case errors.Is(err, protocol.ErrConfiguration), errors.Is(err, protocol.ErrConnection):
		return errDaemonNotRunning()
	case errors.Is(err, protocol.ErrTimeout):
		return errTimeout(err)
	case errors.Is(err, protocol.ErrProtocol), errors.Is(err, protocol.ErrPeerClosed):
		return &ExitError{Code: exitProtocolError, Message: fmt.Sprintf("Unexpected reply from daemon: %v", err)}
	default:
		return err
	}
}

package protocol

import (
	"errors"
	"fmt"
)

// Error categories. Concrete errors wrap one of these so callers can
// classify failures with errors.Is.
var (
	// ErrConfiguration is returned when the socket path is missing or invalid.
	ErrConfiguration = errors.New("configuration error")
	// ErrConnection is returned when the daemon cannot be reached.
	ErrConnection = errors.New("connection error")
	// ErrTimeout is returned when no response arrives within the deadline.
	ErrTimeout = errors.New("timeout")
	// ErrProtocol is returned for malformed frames.
	ErrProtocol = errors.New("protocol error")
	// ErrPeerClosed is returned when the peer disconnects before a complete frame.
	ErrPeerClosed = errors.New("peer closed")
	// ErrDispatch is returned when handling a decoded request fails.
	ErrDispatch = errors.New("dispatch error")
)

// ProtocolError describes a malformed frame or request.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is makes every ProtocolError match ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// IsProtocolError reports whether err is a protocol error.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}

// RemoteError is an error response returned by the daemon.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is maps remote error codes onto the local error categories.
func (e *RemoteError) Is(target error) bool {
	switch e.Code {
	case ErrCodeProtocol:
		return target == ErrProtocol
	case ErrCodeDispatch, ErrCodeScheduleNotFound:
		return target == ErrDispatch
	}
	return false
}

package schedule

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a schedule definition was not found.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task schedule %s not found", e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// DisabledError indicates a schedule exists but is disabled.
type DisabledError struct {
	ID string
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("task schedule %s is disabled", e.ID)
}

// ParseError records a definition file that failed to load.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

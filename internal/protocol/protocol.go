// Package protocol defines the framed JSON protocol spoken between the
// scheduler daemon and its clients over a Unix domain socket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content types and encodings used on the wire.
const (
	ContentTypeJSON   = "text/json"
	ContentTypeBinary = "binary/custom-server-binary-type"

	EncodingUTF8 = "utf-8"
)

// RequestType identifies a daemon command. The set is closed: values outside
// of it are rejected when decoded.
type RequestType string

// Request types
const (
	RequestCreateTaskSchedule RequestType = "createTaskSchedule"
	RequestPing               RequestType = "ping"
	RequestCancelTaskSchedule RequestType = "cancelTaskSchedule"
)

var requestTypes = []RequestType{
	RequestCreateTaskSchedule,
	RequestPing,
	RequestCancelTaskSchedule,
}

// RequestTypes returns every known request type.
func RequestTypes() []RequestType {
	out := make([]RequestType, len(requestTypes))
	copy(out, requestTypes)
	return out
}

// Valid reports whether t is one of the known request types.
func (t RequestType) Valid() bool {
	for _, known := range requestTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t RequestType) String() string { return string(t) }

// ParseRequestType converts s into a RequestType.
func ParseRequestType(s string) (RequestType, error) {
	t := RequestType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", &ProtocolError{Reason: fmt.Sprintf("unknown request type %q", s)}
	}
	return t, nil
}

// MarshalJSON refuses to encode unknown request types.
func (t RequestType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown request type %q", string(t))}
	}
	return json.Marshal(string(t))
}

// UnmarshalJSON fails with a ProtocolError for unknown request types.
func (t *RequestType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &ProtocolError{Reason: "requestType must be a string", Err: err}
	}
	parsed, err := ParseRequestType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Request is a command sent to the daemon.
type Request struct {
	RequestType    RequestType `json:"requestType"`
	RequestContent any         `json:"requestContent"`
}

// NewRequest creates a new request with the given type and content.
func NewRequest(requestType RequestType, content any) *Request {
	return &Request{
		RequestType:    requestType,
		RequestContent: content,
	}
}

// Validate checks that the request type is known and that schedule
// commands carry a schedule identifier.
func (r *Request) Validate() error {
	if !r.RequestType.Valid() {
		return &ProtocolError{Reason: fmt.Sprintf("unknown request type %q", string(r.RequestType))}
	}
	if r.RequestType == RequestPing {
		return nil
	}
	_, err := r.ScheduleID()
	return err
}

// ScheduleID returns the schedule identifier carried by the request.
func (r *Request) ScheduleID() (string, error) {
	id, ok := r.RequestContent.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", &ProtocolError{Reason: fmt.Sprintf("%s requires a schedule identifier", r.RequestType)}
	}
	return id, nil
}

// Error codes carried in Response.ErrorCode.
const (
	ErrCodeProtocol         = "protocol_error"
	ErrCodeDispatch         = "dispatch_error"
	ErrCodeScheduleNotFound = "schedule_not_found"
)

// Response is the reply envelope the daemon sends for JSON content.
type Response struct {
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// NewResultResponse creates a successful response.
func NewResultResponse(result any) *Response {
	return &Response{Result: result}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(code, message string) *Response {
	return &Response{
		Error:     message,
		ErrorCode: code,
	}
}

// Failed reports whether the response carries an error.
func (r *Response) Failed() bool {
	return r.Error != "" || r.ErrorCode != ""
}

// Err converts an error response into a *RemoteError.
func (r *Response) Err() error {
	if !r.Failed() {
		return nil
	}
	return &RemoteError{Code: r.ErrorCode, Message: r.Error}
}

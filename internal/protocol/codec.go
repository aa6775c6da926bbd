package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// HeaderLengthSize is the width of the big-endian header length prefix.
const HeaderLengthSize = 2

// Header keys every frame must carry.
const (
	KeyByteOrder       = "byteOrder"
	KeyContentType     = "contentType"
	KeyContentEncoding = "contentEncoding"
	KeyContentLength   = "contentLength"
)

var requiredKeys = []string{
	KeyByteOrder,
	KeyContentType,
	KeyContentEncoding,
	KeyContentLength,
}

// Metadata is the JSON header describing a frame's payload.
type Metadata struct {
	ByteOrder       string `json:"byteOrder"`
	ContentType     string `json:"contentType"`
	ContentEncoding string `json:"contentEncoding"`
	ContentLength   int    `json:"contentLength"`
	// MessageID correlates a response with its request in logs. Optional.
	MessageID string `json:"messageId,omitempty"`
}

// Frame is one decoded protocol unit.
type Frame struct {
	Metadata
	Payload []byte
}

// hostByteOrder is reported in the byteOrder header field.
var hostByteOrder = func() string {
	if binary.NativeEndian.Uint16([]byte{1, 0}) == 1 {
		return "little"
	}
	return "big"
}()

// NewFrame creates a frame for content; ContentLength is taken from content.
func NewFrame(content []byte, contentType, contentEncoding string) *Frame {
	return &Frame{
		Metadata: Metadata{
			ByteOrder:       hostByteOrder,
			ContentType:     contentType,
			ContentEncoding: contentEncoding,
			ContentLength:   len(content),
		},
		Payload: content,
	}
}

// Marshal serializes the frame to its wire form.
func (f *Frame) Marshal() ([]byte, error) {
	if f.ContentLength != len(f.Payload) {
		return nil, &ProtocolError{Reason: fmt.Sprintf("payload length mismatch: declared %d, have %d", f.ContentLength, len(f.Payload))}
	}
	header, err := json.Marshal(f.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if len(header) > math.MaxUint16 {
		return nil, &ProtocolError{Reason: fmt.Sprintf("header too large: %d bytes", len(header))}
	}

	out := make([]byte, HeaderLengthSize, HeaderLengthSize+len(header)+len(f.Payload))
	binary.BigEndian.PutUint16(out, uint16(len(header)))
	out = append(out, header...)
	out = append(out, f.Payload...)
	return out, nil
}

// Value decodes the payload according to the frame's content type.
func (f *Frame) Value() (any, error) {
	return Decode(f.Payload, f.Metadata)
}

// Unmarshal decodes a text/json payload into v.
func (f *Frame) Unmarshal(v any) error {
	if f.ContentType != ContentTypeJSON {
		return &ProtocolError{Reason: fmt.Sprintf("content type %q is not %s", f.ContentType, ContentTypeJSON)}
	}
	text, err := toUTF8(f.Payload, f.ContentEncoding)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(text, v); err != nil {
		return &ProtocolError{Reason: "invalid JSON payload", Err: err}
	}
	return nil
}

// Encode builds a complete frame: length prefix, JSON header, content.
func Encode(content []byte, contentType, contentEncoding string) ([]byte, error) {
	return NewFrame(content, contentType, contentEncoding).Marshal()
}

// EncodeJSON marshals v as JSON text in the given encoding and frames it
// as text/json.
func EncodeJSON(v any, contentEncoding string) ([]byte, error) {
	f, err := NewJSONFrame(v, contentEncoding)
	if err != nil {
		return nil, err
	}
	return f.Marshal()
}

// NewJSONFrame marshals v as JSON text in the given encoding.
func NewJSONFrame(v any, contentEncoding string) (*Frame, error) {
	text, err := marshalJSON(v)
	if err != nil {
		return nil, err
	}
	content, err := fromUTF8(text, contentEncoding)
	if err != nil {
		return nil, err
	}
	return NewFrame(content, ContentTypeJSON, contentEncoding), nil
}

// DecodeMetadataHeader parses a JSON header and checks the required keys.
func DecodeMetadataHeader(b []byte) (Metadata, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return Metadata{}, &ProtocolError{Reason: "invalid JSON header", Err: err}
	}
	for _, key := range requiredKeys {
		v, ok := raw[key]
		if !ok {
			return Metadata{}, &ProtocolError{Reason: fmt.Sprintf("missing required header %q", key)}
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return Metadata{}, &ProtocolError{Reason: fmt.Sprintf("required header %q is null", key)}
		}
	}

	var meta Metadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return Metadata{}, &ProtocolError{Reason: "invalid header field", Err: err}
	}
	if meta.ContentLength < 0 {
		return Metadata{}, &ProtocolError{Reason: fmt.Sprintf("negative %s %d", KeyContentLength, meta.ContentLength)}
	}
	return meta, nil
}

// Decode returns the JSON value of a text/json payload, or the payload
// bytes unchanged for any other content type. An empty text/json payload
// decodes to nil.
func Decode(payload []byte, meta Metadata) (any, error) {
	if meta.ContentType != ContentTypeJSON {
		return payload, nil
	}
	if len(payload) == 0 {
		return nil, nil
	}
	text, err := toUTF8(payload, meta.ContentEncoding)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(text, &v); err != nil {
		return nil, &ProtocolError{Reason: "invalid JSON payload", Err: err}
	}
	return v, nil
}

// DecodeRequest decodes and validates a request frame.
func DecodeRequest(f *Frame) (*Request, error) {
	var req Request
	if err := f.Unmarshal(&req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// lookupEncoding resolves a content encoding label. A nil encoding means
// the text is already UTF-8.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unsupported content encoding %q", name), Err: err}
	}
	return enc, nil
}

func toUTF8(b []byte, name string) ([]byte, error) {
	enc, err := lookupEncoding(name)
	if err != nil || enc == nil {
		return b, err
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("decode %s content", name), Err: err}
	}
	return out, nil
}

func fromUTF8(b []byte, name string) ([]byte, error) {
	enc, err := lookupEncoding(name)
	if err != nil || enc == nil {
		return b, err
	}
	out, err := enc.NewEncoder().Bytes(b)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("encode %s content", name), Err: err}
	}
	return out, nil
}

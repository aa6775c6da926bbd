package protocol

import (
	"encoding/binary"
	"fmt"
)

// Stage is the part of a frame the decoder is waiting for.
type Stage int

const (
	StageHeaderLength Stage = iota
	StageHeader
	StagePayload
)

func (s Stage) String() string {
	switch s {
	case StageHeaderLength:
		return "header-length"
	case StageHeader:
		return "header"
	case StagePayload:
		return "payload"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Limits constrains decoder memory use.
type Limits struct {
	MaxHeaderBytes  int
	MaxPayloadBytes int
}

// DefaultLimits returns the limits used by the daemon.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes:  8 * 1024,
		MaxPayloadBytes: 1024 * 1024,
	}
}

// Decoder reassembles frames from arbitrarily chunked input. Each stage
// consumes bytes only once its threshold is reached; anything short of that
// stays buffered until the next Feed.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	limits    Limits
	buf       []byte
	stage     Stage
	headerLen int
	meta      Metadata
	err       error
}

// NewDecoder creates a decoder enforcing limits.
func NewDecoder(limits Limits) *Decoder {
	return &Decoder{limits: limits}
}

// Feed appends received bytes.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Stage returns the stage the decoder is waiting in.
func (d *Decoder) Stage() Stage { return d.stage }

// Buffered returns the number of bytes not yet consumed.
func (d *Decoder) Buffered() int { return len(d.buf) }

// HeaderLength returns the parsed header length, or -1 before the prefix
// has been consumed.
func (d *Decoder) HeaderLength() int {
	if d.stage == StageHeaderLength {
		return -1
	}
	return d.headerLen
}

// Next returns the next complete frame. It returns (nil, nil) when more
// input is needed. Once it returns an error the decoder is unusable and
// every later call returns the same error.
func (d *Decoder) Next() (*Frame, error) {
	if d.err != nil {
		return nil, d.err
	}
	for {
		switch d.stage {
		case StageHeaderLength:
			if len(d.buf) < HeaderLengthSize {
				return nil, nil
			}
			n := int(binary.BigEndian.Uint16(d.buf[:HeaderLengthSize]))
			if n == 0 {
				return nil, d.fail(&ProtocolError{Reason: "zero header length"})
			}
			if d.limits.MaxHeaderBytes > 0 && n > d.limits.MaxHeaderBytes {
				return nil, d.fail(&ProtocolError{Reason: fmt.Sprintf("header length %d exceeds limit %d", n, d.limits.MaxHeaderBytes)})
			}
			d.headerLen = n
			d.buf = d.buf[HeaderLengthSize:]
			d.stage = StageHeader

		case StageHeader:
			if len(d.buf) < d.headerLen {
				return nil, nil
			}
			meta, err := DecodeMetadataHeader(d.buf[:d.headerLen])
			if err != nil {
				return nil, d.fail(err)
			}
			if d.limits.MaxPayloadBytes > 0 && meta.ContentLength > d.limits.MaxPayloadBytes {
				return nil, d.fail(&ProtocolError{Reason: fmt.Sprintf("content length %d exceeds limit %d", meta.ContentLength, d.limits.MaxPayloadBytes)})
			}
			d.meta = meta
			d.buf = d.buf[d.headerLen:]
			d.stage = StagePayload

		case StagePayload:
			n := d.meta.ContentLength
			if len(d.buf) < n {
				return nil, nil
			}
			payload := make([]byte, n)
			copy(payload, d.buf[:n])
			d.buf = d.buf[n:]
			f := &Frame{Metadata: d.meta, Payload: payload}
			d.stage = StageHeaderLength
			d.headerLen = 0
			d.meta = Metadata{}
			return f, nil
		}
	}
}

// Incomplete returns nil when no partial frame is buffered. Otherwise it
// describes what is missing; the error wraps ErrPeerClosed because it is
// meant to be reported when the stream ends.
func (d *Decoder) Incomplete() error {
	if d.err != nil {
		return d.err
	}
	switch {
	case d.stage == StagePayload:
		return &ProtocolError{
			Reason: fmt.Sprintf("payload length mismatch: declared %d, received %d", d.meta.ContentLength, len(d.buf)),
			Err:    ErrPeerClosed,
		}
	case d.stage == StageHeader:
		return fmt.Errorf("%w: header incomplete: want %d bytes, have %d", ErrPeerClosed, d.headerLen, len(d.buf))
	case len(d.buf) > 0:
		return fmt.Errorf("%w: header length prefix incomplete", ErrPeerClosed)
	}
	return nil
}

func (d *Decoder) fail(err error) error {
	d.err = err
	return err
}

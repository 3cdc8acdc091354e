package codec

import (
	"errors"
	"fmt"

	"github.com/robotalks/orb.go/pkg/mcu/msgs"
)

var (
	// ErrBufferTooSmall indicates the output can't hold the encoded message.
	ErrBufferTooSmall = errors.New("buffer too small")
	// ErrSchemaViolation indicates the message breaks a schema constraint.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrTruncated indicates the data ends before the message is complete,
	// or disagrees with its size prefix.
	ErrTruncated = errors.New("truncated")
	// ErrUnknownTag indicates a field number outside the schema.
	ErrUnknownTag = errors.New("unknown tag")
	// ErrMalformed indicates bytes that are not a valid encoding.
	ErrMalformed = errors.New("malformed")
)

// EncodeError is returned by the encoding functions.
type EncodeError struct {
	Reason error
	Kind   msgs.Kind
	Need   int
	Err    error
}

// Error implements error.
func (e *EncodeError) Error() string {
	msg := fmt.Sprintf("encode %s: %v", e.Kind, e.Reason)
	if e.Reason == ErrBufferTooSmall {
		msg += fmt.Sprintf(" (need %d)", e.Need)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap allows errors.Is on the reason.
func (e *EncodeError) Unwrap() error {
	return e.Reason
}

// DecodeError is returned by the decoding functions.
type DecodeError struct {
	Reason error
	Offset int
	Tag    uint64
	Err    error
}

// Error implements error.
func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode at %d: %v", e.Offset, e.Reason)
	if e.Reason == ErrUnknownTag {
		msg += fmt.Sprintf(" %d", e.Tag)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap allows errors.Is on the reason.
func (e *DecodeError) Unwrap() error {
	return e.Reason
}

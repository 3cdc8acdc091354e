package transport

import (
	"errors"
	"fmt"

	"github.com/robotalks/orb.go/pkg/mcu/msgs"
	"github.com/robotalks/orb.go/pkg/queue"
)

var (
	// ErrQueueFull indicates the message was dropped as the TX queue is full.
	ErrQueueFull = queue.ErrFull
	// ErrAlreadySuspended is returned by Suspend when already suspended.
	ErrAlreadySuspended = errors.New("already suspended")
	// ErrBusStuck indicates a transmit completion never arrived.
	ErrBusStuck = errors.New("bus stuck")
	// ErrBusOff indicates the bus can't be recovered from bus-off.
	ErrBusOff = errors.New("bus-off recovery limit reached")
	// ErrHandlerRegistered indicates a RX handler is already registered.
	ErrHandlerRegistered = errors.New("rx handler already registered")
	// ErrNotReady indicates the device is not ready.
	ErrNotReady = errors.New("device not ready")
	// ErrRunning indicates Run is called twice.
	ErrRunning = errors.New("already running")
	// ErrReset indicates a pending transmit was abandoned by a reset.
	ErrReset = errors.New("reset")
	// ErrNoReply indicates no reply received from peer.
	// This happens when an ack is received for a later command, and all
	// previous commands fail with this error.
	ErrNoReply = errors.New("no reply")

	// ErrFlowControlTimeout indicates the receiver of a segmented message
	// didn't send flow control in time.
	ErrFlowControlTimeout = errors.New("flow control timeout")
	// ErrOverflow indicates the receiver of a segmented message refused it.
	ErrOverflow = errors.New("receiver overflow")

	errCompletionTimeout = errors.New("completion timeout")
	errMalformedPDU      = errors.New("malformed iso-tp pdu")
	errUnexpectedPDU     = errors.New("unexpected iso-tp pdu")
	errSequence          = errors.New("iso-tp sequence mismatch")
	errSegmentTimeout    = errors.New("iso-tp consecutive frame timeout")
	errMessageTooLong    = errors.New("iso-tp message too long")
)

// TxError is a failed transmit.
type TxError struct {
	Addr Address
	Kind msgs.Kind
	Err  error
}

// Error implements error.
func (e *TxError) Error() string {
	return fmt.Sprintf("tx %s to %s: %v", e.Kind, e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *TxError) Unwrap() error {
	return e.Err
}

// AckError is a command rejected by the peer.
type AckError struct {
	AckNumber uint32
	Code      msgs.AckError
}

// Error implements error.
func (e *AckError) Error() string {
	return fmt.Sprintf("command %d rejected: error %d", e.AckNumber, uint32(e.Code))
}

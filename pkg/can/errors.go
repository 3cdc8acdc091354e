package can

import "errors"

var (
	// ErrAlready indicates the device is already in the requested state.
	ErrAlready = errors.New("can: already in requested state")
	// ErrStopped indicates the device is stopped.
	ErrStopped = errors.New("can: device stopped")
	// ErrClosed indicates the device has been closed.
	ErrClosed = errors.New("can: closed")
	// ErrInvalidID indicates an identifier out of range.
	ErrInvalidID = errors.New("can: invalid identifier")
	// ErrInvalidLen indicates a data length the frame can't carry.
	ErrInvalidLen = errors.New("can: invalid data length")
)

package queue

import "errors"

var (
	// ErrFull indicates the item was not stored because the queue is full.
	// The caller owns the loss: the item is not retried.
	ErrFull = errors.New("queue full")
	// ErrTimeout indicates no item became available before the timeout.
	ErrTimeout = errors.New("queue pop timeout")
)

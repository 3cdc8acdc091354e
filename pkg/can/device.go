package can

import (
	"context"
	"fmt"
)

// RxQueue receives frames accepted by a filter. TryPush must not block:
// it runs in the driver's receive context.
type RxQueue interface {
	TryPush(Frame) error
}

// TxCallback reports the completion of an asynchronous send. It runs in
// the driver's completion context and must not block.
type TxCallback func(err error)

// Device is a CAN controller.
type Device interface {
	// MaxDataLen is the largest frame payload, 8 or 64.
	MaxDataLen() int
	// Ready tells if the controller is usable.
	Ready() bool
	// Start enables the controller, ErrAlready if started.
	Start() error
	// Stop disables the controller, ErrAlready if stopped.
	Stop() error
	// AddRxFilter routes frames matching filter to queue.
	AddRxFilter(filter Filter, queue RxQueue) error
	// SendAsync queues frame for transmission, cb reports completion.
	SendAsync(frame Frame, cb TxCallback) error
	// Send transmits frame and waits for completion.
	Send(ctx context.Context, frame Frame) error
}

// BusState is the controller error state.
type BusState int

// Bus states.
const (
	BusErrorActive BusState = iota
	BusErrorWarning
	BusErrorPassive
	BusOff
	BusStopped
)

var busStateNames = []string{"error-active", "error-warning", "error-passive", "bus-off", "stopped"}

// String implements fmt.Stringer.
func (s BusState) String() string {
	if s >= 0 && int(s) < len(busStateNames) {
		return busStateNames[s]
	}
	return fmt.Sprintf("BusState(%d)", int(s))
}

// ErrorCounters are the controller error counters.
type ErrorCounters struct {
	TxErrors uint8
	RxErrors uint8
}

// StateReporter is implemented by devices reporting bus state.
type StateReporter interface {
	State() (BusState, ErrorCounters, error)
	// Recover initiates bus-off recovery.
	Recover(ctx context.Context) error
}

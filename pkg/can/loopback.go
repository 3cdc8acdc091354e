package can

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// LoopbackBus is an in-memory CAN bus for tests and simulations.
// Devices opened on the same bus receive each other's frames.
type LoopbackBus struct {
	mu      sync.RWMutex
	closed  bool
	devices map[*LoopbackDevice]struct{}
}

// NewLoopbackBus creates a loopback bus.
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{devices: make(map[*LoopbackDevice]struct{})}
}

// Open attaches a stopped device to the bus. maxDataLen is 8 for a
// classic controller and 64 for FD.
func (b *LoopbackBus) Open(maxDataLen int) *LoopbackDevice {
	d := &LoopbackDevice{bus: b, maxLen: maxDataLen, state: BusStopped}
	b.mu.Lock()
	if b.closed {
		d.closed = true
	} else {
		b.devices[d] = struct{}{}
	}
	b.mu.Unlock()
	return d
}

// Close detaches all devices.
func (b *LoopbackBus) Close() error {
	b.mu.Lock()
	devices := b.devices
	b.devices = nil
	b.closed = true
	b.mu.Unlock()
	for d := range devices {
		d.close()
	}
	return nil
}

func (b *LoopbackBus) deliver(from *LoopbackDevice, frame Frame) {
	b.mu.RLock()
	targets := make([]*LoopbackDevice, 0, len(b.devices))
	for d := range b.devices {
		if d != from {
			targets = append(targets, d)
		}
	}
	b.mu.RUnlock()
	for _, d := range targets {
		d.receive(frame)
	}
}

type rxBinding struct {
	filter Filter
	queue  RxQueue
}

type pendingTx struct {
	frame Frame
	cb    TxCallback
}

// LoopbackDevice is a Device on a LoopbackBus. Completions are reported
// from a separate goroutine, like an interrupt handler would.
// A device in bus-off or with completions held keeps frames pending until
// released, recovered or stopped.
type LoopbackDevice struct {
	bus    *LoopbackBus
	maxLen int

	mu         sync.Mutex
	closed     bool
	started    bool
	hold       bool
	txErr      error
	state      BusState
	counters   ErrorCounters
	recoveries int
	bindings   []rxBinding
	pending    []pendingTx
	sent       []Frame
}

// MaxDataLen implements Device.
func (d *LoopbackDevice) MaxDataLen() int {
	return d.maxLen
}

// Ready implements Device.
func (d *LoopbackDevice) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Start implements Device.
func (d *LoopbackDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.started {
		return ErrAlready
	}
	d.started = true
	d.state = BusErrorActive
	return nil
}

// Stop implements Device. Pending sends complete with ErrStopped.
func (d *LoopbackDevice) Stop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return ErrAlready
	}
	d.started = false
	d.state = BusStopped
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()
	for _, p := range pending {
		go p.cb(ErrStopped)
	}
	return nil
}

// AddRxFilter implements Device.
func (d *LoopbackDevice) AddRxFilter(filter Filter, queue RxQueue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.bindings = append(d.bindings, rxBinding{filter: filter, queue: queue})
	return nil
}

func (d *LoopbackDevice) checkFrame(frame *Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if int(frame.Len) > d.maxLen || (frame.FD && d.maxLen <= MaxClassicLen) {
		return ErrInvalidLen
	}
	return nil
}

// SendAsync implements Device.
func (d *LoopbackDevice) SendAsync(frame Frame, cb TxCallback) error {
	if err := d.checkFrame(&frame); err != nil {
		return err
	}
	d.mu.Lock()
	switch {
	case d.closed:
		d.mu.Unlock()
		return ErrClosed
	case !d.started:
		d.mu.Unlock()
		return ErrStopped
	case d.hold || d.state == BusOff:
		d.pending = append(d.pending, pendingTx{frame: frame, cb: cb})
		d.mu.Unlock()
		return nil
	}
	err := d.txErr
	d.mu.Unlock()
	if err == nil {
		d.transmit(frame)
	}
	go cb(err)
	return nil
}

// Send implements Device.
func (d *LoopbackDevice) Send(ctx context.Context, frame Frame) error {
	done := make(chan error, 1)
	if err := d.SendAsync(frame, func(err error) { done <- err }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *LoopbackDevice) transmit(frame Frame) {
	d.mu.Lock()
	d.sent = append(d.sent, frame)
	d.mu.Unlock()
	d.bus.deliver(d, frame)
}

func (d *LoopbackDevice) receive(frame Frame) {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	var queue RxQueue
	for _, b := range d.bindings {
		if b.filter.Matches(&frame) {
			queue = b.queue
			break
		}
	}
	d.mu.Unlock()
	if queue == nil {
		return
	}
	if err := queue.TryPush(frame); err != nil {
		glog.Warningf("loopback: frame %s dropped: %v", frame, err)
	}
}

// State implements StateReporter.
func (d *LoopbackDevice) State() (BusState, ErrorCounters, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return BusStopped, ErrorCounters{}, ErrClosed
	}
	return d.state, d.counters, nil
}

// Recover implements StateReporter. Frames held by bus-off are sent.
func (d *LoopbackDevice) Recover(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.recoveries++
	if d.state == BusOff {
		d.state = BusErrorActive
		d.counters = ErrorCounters{}
	}
	d.mu.Unlock()
	if !d.holding() {
		d.ReleaseCompletions()
	}
	return ctx.Err()
}

func (d *LoopbackDevice) holding() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hold || d.state == BusOff
}

// Recoveries returns how many times Recover was called.
func (d *LoopbackDevice) Recoveries() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recoveries
}

// SetState forces the bus state and error counters.
func (d *LoopbackDevice) SetState(state BusState, counters ErrorCounters) {
	d.mu.Lock()
	d.state = state
	d.counters = counters
	d.mu.Unlock()
}

// HoldCompletions keeps sent frames pending until ReleaseCompletions.
func (d *LoopbackDevice) HoldCompletions(hold bool) {
	d.mu.Lock()
	d.hold = hold
	d.mu.Unlock()
}

// ReleaseCompletions transmits pending frames and reports completions.
func (d *LoopbackDevice) ReleaseCompletions() {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	err := d.txErr
	d.mu.Unlock()
	for _, p := range pending {
		if err == nil {
			d.transmit(p.frame)
		}
		go p.cb(err)
	}
}

// Pending returns the number of sends awaiting completion.
func (d *LoopbackDevice) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// FailTx makes sends complete with err without reaching the bus, nil
// restores normal operation.
func (d *LoopbackDevice) FailTx(err error) {
	d.mu.Lock()
	d.txErr = err
	d.mu.Unlock()
}

// Sent returns a copy of the frames put on the bus.
func (d *LoopbackDevice) Sent() []Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Frame(nil), d.sent...)
}

// Close detaches the device from the bus.
func (d *LoopbackDevice) Close() error {
	d.bus.mu.Lock()
	if d.bus.devices != nil {
		delete(d.bus.devices, d)
	}
	d.bus.mu.Unlock()
	d.close()
	return nil
}

func (d *LoopbackDevice) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.Stop()
}

//go:build linux

package socketcan

import (
	"context"
	"sync"

	sockcan "github.com/brutella/can"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/framework"
)

// ClassicDevice is a classic CAN can.Device on github.com/brutella/can.
type ClassicDevice struct {
	dispatcher
	bus *sockcan.Bus
	tx  txPump

	mu      sync.Mutex
	started bool
}

// OpenClassic opens iface for classic CAN frames.
func OpenClassic(iface string) (*ClassicDevice, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(iface)
	if err != nil {
		return nil, err
	}
	d := &ClassicDevice{bus: bus, tx: newTxPump(DefaultTxDepth)}
	d.dispatcher.name = "socketcan " + iface
	bus.SubscribeFunc(d.handle)
	return d, nil
}

// Name implements framework.Named.
func (d *ClassicDevice) Name() string {
	return d.dispatcher.name
}

// MaxDataLen implements can.Device.
func (d *ClassicDevice) MaxDataLen() int {
	return can.MaxClassicLen
}

// Ready implements can.Device.
func (d *ClassicDevice) Ready() bool {
	return d.bus != nil
}

// Start implements can.Device.
func (d *ClassicDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return can.ErrAlready
	}
	d.started = true
	return nil
}

// Stop implements can.Device.
func (d *ClassicDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return can.ErrAlready
	}
	d.started = false
	return nil
}

// Close releases the socket of a device never run.
func (d *ClassicDevice) Close() error {
	return d.bus.Disconnect()
}

func (d *ClassicDevice) isStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// AddRxFilter implements can.Device. Filtering is done in software.
func (d *ClassicDevice) AddRxFilter(filter can.Filter, queue can.RxQueue) error {
	d.dispatcher.add(filter, queue)
	return nil
}

func (d *ClassicDevice) checkFrame(frame *can.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if frame.FD {
		return can.ErrInvalidLen
	}
	if !d.isStarted() {
		return can.ErrStopped
	}
	return nil
}

// SendAsync implements can.Device.
func (d *ClassicDevice) SendAsync(frame can.Frame, cb can.TxCallback) error {
	if err := d.checkFrame(&frame); err != nil {
		return err
	}
	return d.tx.submit(frame, cb)
}

// Send implements can.Device.
func (d *ClassicDevice) Send(ctx context.Context, frame can.Frame) error {
	if err := d.checkFrame(&frame); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.publish(frame)
}

func (d *ClassicDevice) publish(frame can.Frame) error {
	if !d.isStarted() {
		return can.ErrStopped
	}
	out := sockcan.Frame{ID: rawID(&frame), Length: frame.Len}
	copy(out.Data[:], frame.Data[:frame.Len])
	return d.bus.Publish(out)
}

func (d *ClassicDevice) handle(in sockcan.Frame) {
	if in.ID&(errFlag|rtrFlag) != 0 || !d.isStarted() {
		return
	}
	frame := can.Frame{ID: in.ID & sffMask, Len: in.Length}
	if in.ID&effFlag != 0 {
		frame.ID = in.ID & effMask
		frame.Extended = true
	}
	if frame.Len > can.MaxClassicLen {
		frame.Len = can.MaxClassicLen
	}
	copy(frame.Data[:], in.Data[:frame.Len])
	d.dispatch(frame)
}

// Run implements framework.Runnable.
func (d *ClassicDevice) Run(ctx context.Context) error {
	txCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.tx.run(txCtx, d.publish)
	return framework.RunWithContextCancel(ctx, func() {
		d.bus.Disconnect()
	}, d.bus.ConnectAndPublish)
}

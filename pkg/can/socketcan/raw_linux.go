//go:build linux

package socketcan

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/framework"
)

const recoverPollInterval = 100 * time.Millisecond

// RawDevice is a can.Device on a raw CAN socket.
type RawDevice struct {
	dispatcher
	fd     int
	file   *os.File
	fdMode bool
	tx     txPump

	writeMu sync.Mutex

	mu       sync.Mutex
	started  bool
	state    can.BusState
	counters can.ErrorCounters
}

// OpenRaw opens a raw CAN socket on iface. With fdMode the socket accepts
// and sends CAN FD frames.
func OpenRaw(iface string, fdMode bool) (*RawDevice, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_CAN): %w", err)
	}
	if fdMode {
		if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("enable CAN FD: %w", err)
		}
	}
	errMask := errClassCrtl | errClassBusOff | errClassRestarted | errClassCnt
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_ERR_FILTER, errMask); err != nil {
		glog.Warningf("socketcan %s: error frames unavailable: %v", iface, err)
	}
	// nothing is received until a filter is added
	if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, nil); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("clear filters: %w", err)
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("if %q: %w", iface, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind(can@%s): %w", iface, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	d := &RawDevice{
		fd:     fd,
		file:   os.NewFile(uintptr(fd), iface),
		fdMode: fdMode,
		tx:     newTxPump(DefaultTxDepth),
		state:  can.BusStopped,
	}
	d.dispatcher.name = "socketcan " + iface
	return d, nil
}

// Name implements framework.Named.
func (d *RawDevice) Name() string {
	return d.dispatcher.name
}

// MaxDataLen implements can.Device.
func (d *RawDevice) MaxDataLen() int {
	if d.fdMode {
		return can.MaxFDLen
	}
	return can.MaxClassicLen
}

// Ready implements can.Device.
func (d *RawDevice) Ready() bool {
	return d.file != nil
}

// Start implements can.Device.
func (d *RawDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return can.ErrAlready
	}
	d.started = true
	if d.state == can.BusStopped {
		d.state = can.BusErrorActive
	}
	return nil
}

// Stop implements can.Device. Frames received while stopped are discarded.
func (d *RawDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return can.ErrAlready
	}
	d.started = false
	d.state = can.BusStopped
	return nil
}

// Close releases the socket of a device never run.
func (d *RawDevice) Close() error {
	return d.file.Close()
}

func (d *RawDevice) isStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// AddRxFilter implements can.Device. The kernel filters are replaced by
// the union of all bindings, dispatching filters again in software.
func (d *RawDevice) AddRxFilter(filter can.Filter, queue can.RxQueue) error {
	filters := d.dispatcher.add(filter, queue)
	kernel := make([]unix.CanFilter, len(filters))
	for n, f := range filters {
		kf := unix.CanFilter{Id: uint32(f.ID), Mask: f.Mask | effFlag | rtrFlag}
		if f.Extended {
			kf.Id = uint32(f.ID)&effMask | effFlag
		}
		kernel[n] = kf
	}
	return unix.SetsockoptCanRawFilter(d.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, kernel)
}

func (d *RawDevice) checkFrame(frame *can.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if frame.FD && !d.fdMode {
		return can.ErrInvalidLen
	}
	if !d.isStarted() {
		return can.ErrStopped
	}
	return nil
}

// SendAsync implements can.Device.
func (d *RawDevice) SendAsync(frame can.Frame, cb can.TxCallback) error {
	if err := d.checkFrame(&frame); err != nil {
		return err
	}
	return d.tx.submit(frame, cb)
}

// Send implements can.Device.
func (d *RawDevice) Send(ctx context.Context, frame can.Frame) error {
	if err := d.checkFrame(&frame); err != nil {
		return err
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		d.file.SetWriteDeadline(deadline)
		defer d.file.SetWriteDeadline(time.Time{})
	}
	return d.write(frame)
}

func (d *RawDevice) write(frame can.Frame) error {
	if !d.isStarted() {
		return can.ErrStopped
	}
	var buf [fdMTU]byte
	size := marshalFrame(&frame, buf[:])
	n, err := d.file.Write(buf[:size])
	if err == nil && n != size {
		err = fmt.Errorf("socketcan: short write %d/%d", n, size)
	}
	return err
}

func (d *RawDevice) writeQueued(frame can.Frame) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.write(frame)
}

// State implements can.StateReporter.
func (d *RawDevice) State() (can.BusState, can.ErrorCounters, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.counters, nil
}

// Recover implements can.StateReporter. The kernel restarts the
// controller when the interface is configured with restart-ms, Recover
// waits for the restart to be reported.
func (d *RawDevice) Recover(ctx context.Context) error {
	ticker := time.NewTicker(recoverPollInterval)
	defer ticker.Stop()
	for {
		if state, _, _ := d.State(); state != can.BusOff {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *RawDevice) updateState(frame *can.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, counters, hasCounters, ok := errorState(frame, d.state)
	if hasCounters {
		d.counters = counters
	}
	if ok && d.started && state != d.state {
		glog.Infof("%s: bus state %s -> %s", d.dispatcher.name, d.state, state)
		d.state = state
	}
}

// Run implements framework.Runnable. It reads frames and drives async
// sends until ctx is canceled, the socket is closed afterwards.
func (d *RawDevice) Run(ctx context.Context) error {
	txCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.tx.run(txCtx, d.writeQueued)
	return framework.RunWithContextCloser(ctx, d.file, d.readLoop)
}

func (d *RawDevice) readLoop() error {
	var buf [fdMTU]byte
	for {
		n, err := d.file.Read(buf[:])
		if err != nil {
			return err
		}
		frame, isErr, err := unmarshalFrame(buf[:n])
		if err != nil {
			glog.Warningf("%s: %v", d.dispatcher.name, err)
			continue
		}
		if isErr {
			d.updateState(&frame)
			continue
		}
		if d.isStarted() {
			d.dispatch(frame)
		}
	}
}

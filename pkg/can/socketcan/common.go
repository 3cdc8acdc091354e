package socketcan

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/orb.go/pkg/can"
)

// DefaultTxDepth is the number of frames SendAsync accepts ahead of the
// socket.
const DefaultTxDepth = 8

var (
	// ErrBusy indicates the transmit mailbox is full.
	ErrBusy = errors.New("socketcan: tx mailbox full")
	// ErrUnsupported indicates the driver is not available on this platform.
	ErrUnsupported = errors.New("socketcan: unsupported driver")
)

type binding struct {
	filter can.Filter
	queue  can.RxQueue
}

// dispatcher routes received frames to the first matching filter.
type dispatcher struct {
	mu       sync.RWMutex
	name     string
	bindings []binding
}

func (d *dispatcher) add(filter can.Filter, queue can.RxQueue) []can.Filter {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindings = append(d.bindings, binding{filter: filter, queue: queue})
	filters := make([]can.Filter, len(d.bindings))
	for n, b := range d.bindings {
		filters[n] = b.filter
	}
	return filters
}

func (d *dispatcher) dispatch(frame can.Frame) bool {
	d.mu.RLock()
	var queue can.RxQueue
	for _, b := range d.bindings {
		if b.filter.Matches(&frame) {
			queue = b.queue
			break
		}
	}
	d.mu.RUnlock()
	if queue == nil {
		return false
	}
	if err := queue.TryPush(frame); err != nil {
		glog.Warningf("%s: frame %s dropped: %v", d.name, frame, err)
	}
	return true
}

type txRequest struct {
	frame can.Frame
	cb    can.TxCallback
}

// txPump serializes asynchronous sends through a single writer so frames
// leave in submission order.
type txPump struct {
	ch chan txRequest
}

func newTxPump(depth int) txPump {
	return txPump{ch: make(chan txRequest, depth)}
}

func (p txPump) submit(frame can.Frame, cb can.TxCallback) error {
	select {
	case p.ch <- txRequest{frame: frame, cb: cb}:
		return nil
	default:
		return ErrBusy
	}
}

func (p txPump) run(ctx context.Context, write func(can.Frame) error) error {
	for {
		select {
		case <-ctx.Done():
			p.drain(ctx.Err())
			return ctx.Err()
		case req := <-p.ch:
			req.cb(write(req.frame))
		}
	}
}

func (p txPump) drain(err error) {
	for {
		select {
		case req := <-p.ch:
			req.cb(err)
		default:
			return
		}
	}
}

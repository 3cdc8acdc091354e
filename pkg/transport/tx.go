package transport

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/mcu/codec"
	"github.com/robotalks/orb.go/pkg/mcu/msgs"
	"github.com/robotalks/orb.go/pkg/queue"
)

// outbound is a queued message. It is encoded when queued, so the queue
// slot owns its bytes and the producer may reuse the message right away.
type outbound struct {
	addr Address
	kind msgs.Kind
	data []byte
}

// EnqueueTx queues msg for the default remote. It never blocks, a full
// queue drops the message with ErrQueueFull.
func (c *Context) EnqueueTx(msg *msgs.Message) error {
	return c.EnqueueTxTo(c.remote, msg)
}

// EnqueueTxTo queues msg for addr.
func (c *Context) EnqueueTxTo(addr Address, msg *msgs.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	item, err := c.encode(addr, msg)
	if err != nil {
		c.stats.txDropped.Add(1)
		return err
	}
	if err := c.txQueue.TryPush(item); err != nil {
		c.stats.txDropped.Add(1)
		glog.Warningf("transport: tx %s to %s dropped: %v", item.kind, addr, err)
		return err
	}
	return nil
}

// SendBlocking encodes msg and transmits it to the default remote without
// queueing, waiting until the driver reports completion. A timeout <= 0
// uses Config.BlockingTimeout. A segmented message needs Run for the flow
// control, and the timeout covers the whole transfer.
func (c *Context) SendBlocking(ctx context.Context, msg *msgs.Message, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.cfg.BlockingTimeout
	}
	item, err := c.encode(c.remote, msg)
	if err != nil {
		return &TxError{Addr: c.remote, Kind: msg.Kind(), Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.send(ctx, &item, c.dev.Send); err != nil {
		c.stats.txFailed.Add(1)
		return &TxError{Addr: item.addr, Kind: item.kind, Err: err}
	}
	c.stats.txSent.Add(1)
	return nil
}

// encode serializes a copy of msg stamped with the current version.
// Plain addresses carry the size-prefixed message in one frame.
func (c *Context) encode(addr Address, msg *msgs.Message) (outbound, error) {
	m := *msg
	m.Version = msgs.CurrentVersion
	data, err := codec.Marshal(&m)
	if err != nil {
		return outbound{}, err
	}
	if !addr.Segmented() {
		if need := len(codec.AppendDelimited(nil, data)); need > c.dev.MaxDataLen() {
			return outbound{}, &codec.EncodeError{Reason: codec.ErrBufferTooSmall, Kind: m.Kind(), Need: need}
		}
	}
	return outbound{addr: addr, kind: m.Kind(), data: data}, nil
}

func (c *Context) send(ctx context.Context, item *outbound, send sendFunc) error {
	if item.addr.Segmented() {
		return c.sendSegmented(ctx, item.addr, item.data, send)
	}
	return sendPDU(ctx, item.addr, codec.AppendDelimited(nil, item.data), send)
}

func (c *Context) runTx(ctx context.Context) error {
	for {
		item, err := c.txQueue.PopBlocking(ctx, c.cfg.TxPopTimeout)
		if errors.Is(err, queue.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		if err := c.transmit(ctx, &item); err != nil {
			return err
		}
	}
}

// transmit sends one message. Only conditions that stop the TX loop are
// returned.
func (c *Context) transmit(ctx context.Context, item *outbound) error {
	err := c.send(ctx, item, c.transmitFrame)
	switch {
	case err == nil:
		c.stats.txSent.Add(1)
	case errors.Is(err, ErrBusStuck):
		c.stats.txFailed.Add(1)
		c.fatal(&TxError{Addr: item.addr, Kind: item.kind, Err: ErrBusStuck})
		return ErrBusStuck
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, ErrReset):
		glog.Warningf("transport: tx %s to %s abandoned by reset", item.kind, item.addr)
	default:
		// TODO: retry policy for failed transmits is undecided, the message is dropped.
		c.stats.txFailed.Add(1)
		glog.Errorf("transport: tx %s to %s failed: %v", item.kind, item.addr, err)
	}
	return nil
}

// transmitFrame hands frame to the driver and waits on the completion
// token. A completion never reported is ErrBusStuck.
func (c *Context) transmitFrame(ctx context.Context, frame can.Frame) error {
	seq := c.completion.arm()
	c.setState(AwaitingCompletion)
	defer c.setState(Idle)
	if err := c.dev.SendAsync(frame, func(err error) {
		c.completion.signal(seq, err)
	}); err != nil {
		c.completion.disarm()
		return err
	}
	glog.V(2).Infof("transport: tx %s", frame)
	err := c.completion.wait(ctx, c.cfg.CompletionTimeout)
	if errors.Is(err, errCompletionTimeout) {
		return ErrBusStuck
	}
	return err
}

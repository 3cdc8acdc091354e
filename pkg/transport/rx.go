package transport

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/mcu/codec"
	"github.com/robotalks/orb.go/pkg/mcu/msgs"
)

// accepts re-validates a frame against the installed filters.
func (c *Context) accepts(frame *can.Frame) bool {
	for _, f := range c.filters {
		if f.Matches(frame) {
			return true
		}
	}
	return false
}

func (c *Context) runRx(ctx context.Context) error {
	for {
		frame, err := c.rxQueue.PopBlocking(ctx, 0)
		if err != nil {
			return err
		}
		c.receive(ctx, &frame)
	}
}

func (c *Context) receive(ctx context.Context, frame *can.Frame) {
	if !c.accepts(frame) {
		c.stats.rxDropped.Add(1)
		glog.Warningf("transport: rx %s rejected by filters", frame)
		return
	}
	msg, err := c.decode(ctx, frame)
	if err != nil {
		c.stats.rxDropped.Add(1)
		glog.Warningf("transport: rx %s dropped: %v", frame, err)
		return
	}
	if msg == nil {
		glog.V(3).Infof("transport: rx %s", frame)
		return
	}
	slot := c.handler.Load()
	if slot == nil {
		c.stats.rxDropped.Add(1)
		glog.Errorf("transport: rx %s dropped: no handler registered", msg)
		return
	}
	glog.V(2).Infof("transport: rx %s %s", frame, msg)
	c.stats.rxDelivered.Add(1)
	slot.HandleMessage(ctx, msg)
}

// decode returns the message a frame completes, nil when the frame is part
// of a segmented transfer. ISO-TP identifiers carry N_PDUs, any other
// identifier a size-prefixed message.
func (c *Context) decode(ctx context.Context, frame *can.Frame) (*msgs.Message, error) {
	if frame.Extended || !can.Identifier(frame.ID).IsISOTP() {
		return codec.DecodeDelimited(frame.Payload())
	}
	data, err := c.receiveSegment(ctx, frame)
	if data == nil || err != nil {
		return nil, err
	}
	return codec.Decode(data)
}

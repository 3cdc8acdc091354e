package transport

import (
	"context"
	"errors"

	"github.com/golang/glog"

	"github.com/robotalks/orb.go/pkg/can"
)

// Suspend stops bus activity. It returns ErrAlreadySuspended when the
// device is already stopped. Any other device failure is fatal.
func (c *Context) Suspend() error {
	err := c.dev.Stop()
	switch {
	case err == nil:
		c.suspended.Store(true)
		glog.Info("transport: suspended")
		return nil
	case errors.Is(err, can.ErrAlready):
		c.suspended.Store(true)
		return ErrAlreadySuspended
	}
	c.fatal(err)
	return err
}

// Resume schedules a TX reset on the reset worker, restarts the device
// and wakes the monitor. Any device failure other than already started is
// fatal.
func (c *Context) Resume() error {
	c.ResetAsync()
	if err := c.dev.Start(); err != nil && !errors.Is(err, can.ErrAlready) {
		c.fatal(err)
		return err
	}
	c.suspended.Store(false)
	c.Wake()
	glog.Info("transport: resumed")
	return nil
}

// ResetAsync requests the TX queue to be purged and the pending
// completion to be released. It never blocks, requests are coalesced until
// the reset worker runs.
func (c *Context) ResetAsync() {
	select {
	case c.resetCh <- struct{}{}:
	default:
	}
}

// Wake makes the monitor check the bus state now.
func (c *Context) Wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

func (c *Context) reset() {
	dropped := c.txQueue.Reset()
	released := c.completion.release(ErrReset)
	c.stats.resets.Add(1)
	glog.Infof("transport: reset, %d queued dropped, pending released %v", dropped, released)
}

func (c *Context) runReset(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.resetCh:
			c.reset()
		}
	}
}

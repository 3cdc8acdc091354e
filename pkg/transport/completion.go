package transport

import (
	"context"
	"sync"
	"time"
)

type completionResult struct {
	seq uint64
	err error
}

// completion is the single-slot token between the driver completion
// callback and the TX loop. Each transmit arms it with a new sequence so a
// late callback for an abandoned frame is ignored. Signal never blocks and
// is safe from any driver context.
type completion struct {
	lock  sync.Mutex
	seq   uint64
	armed bool
	ch    chan completionResult
}

func newCompletion() *completion {
	return &completion{ch: make(chan completionResult, 1)}
}

func (c *completion) arm() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	select {
	case <-c.ch:
	default:
	}
	c.seq++
	c.armed = true
	return c.seq
}

func (c *completion) disarm() {
	c.lock.Lock()
	c.armed = false
	c.lock.Unlock()
}

// signal reports the completion of transmit seq.
func (c *completion) signal(seq uint64, err error) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.armed || seq != c.seq {
		return false
	}
	c.armed = false
	select {
	case c.ch <- completionResult{seq: seq, err: err}:
	default:
	}
	return true
}

// release completes the pending transmit, if any, with err.
func (c *completion) release(err error) bool {
	c.lock.Lock()
	seq, armed := c.seq, c.armed
	c.lock.Unlock()
	if !armed {
		return false
	}
	return c.signal(seq, err)
}

// wait blocks until the armed transmit completes or timeout elapses.
func (c *completion) wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-c.ch:
		return r.err
	case <-timer.C:
		c.disarm()
		return errCompletionTimeout
	case <-ctx.Done():
		c.disarm()
		return ctx.Err()
	}
}

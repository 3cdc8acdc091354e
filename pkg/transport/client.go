package transport

import (
	"context"
	"sync"

	"github.com/robotalks/orb.go/pkg/mcu/msgs"
)

// Result is the result of a command sent by Client.
type Result struct {
	Err error
	Ack *msgs.Ack
}

// Command represents a pending command waiting for its ack.
type Command struct {
	ackNumber uint32
	resultCh  chan Result
	next      *Command
}

// AckNumber returns the ack number assigned to the command.
func (c *Command) AckNumber() uint32 {
	return c.ackNumber
}

// ResultChan returns the chan to retrieve result.
func (c *Command) ResultChan() <-chan Result {
	return c.resultCh
}

// Wait waits for the result.
func (c *Command) Wait(ctx context.Context) Result {
	select {
	case r := <-c.resultCh:
		return r
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// Client sends commands and matches acks. It is a Handler: acks resolve
// pending commands, other messages are passed to Next.
type Client struct {
	Next Handler

	sender   Sender
	ackNum   uint32
	cmdsHead *Command
	cmdsTail *Command
	cmdsLock sync.Mutex
}

// NewClient creates a client sending through sender.
func NewClient(sender Sender) *Client {
	return &Client{sender: sender}
}

// DoWith sends a command and expects a result in the provided chan.
func (c *Client) DoWith(payload msgs.Payload, ch chan Result) *Command {
	cmd := &Command{resultCh: ch}

	c.cmdsLock.Lock()
	defer c.cmdsLock.Unlock()
	if c.ackNum++; c.ackNum == 0 {
		c.ackNum++
	}
	cmd.ackNumber = c.ackNum
	if err := c.sender.EnqueueTx(msgs.NewWithAck(payload, cmd.ackNumber)); err != nil {
		cmd.resultCh <- Result{Err: err}
		return cmd
	}
	if c.cmdsHead == nil {
		c.cmdsHead = cmd
	} else {
		c.cmdsTail.next = cmd
	}
	c.cmdsTail = cmd
	return cmd
}

// Do sends a command and returns a Command for result.
func (c *Client) Do(payload msgs.Payload) *Command {
	return c.DoWith(payload, make(chan Result, 1))
}

// Pending returns the number of commands waiting for acks.
func (c *Client) Pending() int {
	c.cmdsLock.Lock()
	defer c.cmdsLock.Unlock()
	n := 0
	for cmd := c.cmdsHead; cmd != nil; cmd = cmd.next {
		n++
	}
	return n
}

// HandleMessage implements Handler.
func (c *Client) HandleMessage(ctx context.Context, msg *msgs.Message) {
	ack, ok := msg.Payload.(*msgs.Ack)
	if !ok {
		if c.Next != nil {
			c.Next.HandleMessage(ctx, msg)
		}
		return
	}
	c.cmdsLock.Lock()
	head := c.cmdsHead
	curr := c.cmdsHead
	for ; curr != nil; curr = curr.next {
		if curr.ackNumber == ack.AckNumber {
			if c.cmdsHead = curr.next; c.cmdsHead == nil {
				c.cmdsTail = nil
			}
			curr.next = nil
			break
		}
	}
	c.cmdsLock.Unlock()
	if curr == nil {
		return
	}
	for head != curr {
		next := head.next
		head.next = nil
		head.resultCh <- Result{Err: ErrNoReply}
		head = next
	}
	if ack.Error != msgs.AckErrorSuccess {
		curr.resultCh <- Result{Err: &AckError{AckNumber: ack.AckNumber, Code: ack.Error}, Ack: ack}
	} else {
		curr.resultCh <- Result{Ack: ack}
	}
}

package transport

import (
	"context"

	"github.com/robotalks/orb.go/pkg/mcu/msgs"
)

// Handler is called from the RX loop for every decoded message.
type Handler interface {
	HandleMessage(context.Context, *msgs.Message)
}

// HandlerFunc is func type of Handler.
type HandlerFunc func(context.Context, *msgs.Message)

// HandleMessage implements Handler.
func (f HandlerFunc) HandleMessage(ctx context.Context, msg *msgs.Message) {
	f(ctx, msg)
}

// Sender enqueues messages to the default remote.
type Sender interface {
	EnqueueTx(*msgs.Message) error
}

type handlerSlot struct {
	Handler
}

// Handlers passes every message to each handler in order.
type Handlers []Handler

// HandleMessage implements Handler.
func (h Handlers) HandleMessage(ctx context.Context, msg *msgs.Message) {
	for _, handler := range h {
		if handler != nil {
			handler.HandleMessage(ctx, msg)
		}
	}
}

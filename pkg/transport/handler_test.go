package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/orb.go/pkg/mcu/msgs"
)

func TestHandlers(t *testing.T) {
	var order []int
	h := Handlers{
		HandlerFunc(func(context.Context, *msgs.Message) { order = append(order, 1) }),
		nil,
		HandlerFunc(func(context.Context, *msgs.Message) { order = append(order, 2) }),
	}
	h.HandleMessage(context.Background(), msgs.New(&msgs.PowerButton{Pressed: true}))
	require.Equal(t, []int{1, 2}, order)
}

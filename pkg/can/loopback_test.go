package can

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/orb.go/pkg/queue"
)

func openPair(t *testing.T) (*LoopbackBus, *LoopbackDevice, *LoopbackDevice, *queue.Bounded[Frame]) {
	bus := NewLoopbackBus()
	a, b := bus.Open(MaxFDLen), bus.Open(MaxFDLen)
	rx := queue.NewBounded[Frame](4)
	require.NoError(t, b.AddRxFilter(FilterFor(2), rx))
	require.NoError(t, a.Start())
	require.NoError(t, b.Start())
	return bus, a, b, rx
}

func waitErr(t *testing.T, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("completion not reported")
		return nil
	}
}

func TestLoopbackDelivery(t *testing.T) {
	bus, a, _, rx := openPair(t)
	defer bus.Close()

	done := make(chan error, 1)
	f, err := NewFrame(uint32(MakeDestinationID(1, 2)), false, []byte{1, 2})
	require.NoError(t, err)
	require.NoError(t, a.SendAsync(f, func(err error) { done <- err }))
	require.NoError(t, waitErr(t, done))
	got, ok := rx.TryPop()
	require.True(t, ok)
	require.Equal(t, f, got)

	f.ID = uint32(MakeDestinationID(1, 3))
	require.NoError(t, a.Send(context.Background(), f))
	_, ok = rx.TryPop()
	require.False(t, ok)
	require.Len(t, a.Sent(), 2)
}

func TestLoopbackStartStop(t *testing.T) {
	bus := NewLoopbackBus()
	defer bus.Close()
	d := bus.Open(MaxClassicLen)
	require.Equal(t, ErrAlready, d.Stop())
	require.Equal(t, ErrStopped, d.SendAsync(Frame{}, func(error) {}))
	require.NoError(t, d.Start())
	require.Equal(t, ErrAlready, d.Start())
	require.Equal(t, ErrInvalidLen, d.SendAsync(Frame{FD: true, Len: 12}, func(error) {}))
	require.NoError(t, d.Stop())
	state, _, err := d.State()
	require.NoError(t, err)
	require.Equal(t, BusStopped, state)
}

func TestLoopbackHoldAndStop(t *testing.T) {
	bus, a, _, rx := openPair(t)
	defer bus.Close()
	a.HoldCompletions(true)
	done := make(chan error, 1)
	f := Frame{ID: uint32(MakeDestinationID(1, 2)), Len: 1}
	require.NoError(t, a.SendAsync(f, func(err error) { done <- err }))
	require.Equal(t, 1, a.Pending())
	require.Equal(t, 0, rx.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Equal(t, context.DeadlineExceeded, a.Send(ctx, f))

	require.NoError(t, a.Stop())
	require.Equal(t, ErrStopped, waitErr(t, done))
	require.Equal(t, 0, a.Pending())
}

func TestLoopbackRelease(t *testing.T) {
	bus, a, _, rx := openPair(t)
	defer bus.Close()
	a.HoldCompletions(true)
	done := make(chan error, 1)
	require.NoError(t, a.SendAsync(Frame{ID: uint32(MakeDestinationID(1, 2))}, func(err error) { done <- err }))
	a.HoldCompletions(false)
	a.ReleaseCompletions()
	require.NoError(t, waitErr(t, done))
	require.Equal(t, 1, rx.Len())
}

func TestLoopbackFailTx(t *testing.T) {
	bus, a, _, rx := openPair(t)
	defer bus.Close()
	failure := errors.New("arbitration lost")
	a.FailTx(failure)
	require.Equal(t, failure, a.Send(context.Background(), Frame{ID: uint32(MakeDestinationID(1, 2))}))
	require.Equal(t, 0, rx.Len())
	a.FailTx(nil)
	require.NoError(t, a.Send(context.Background(), Frame{ID: uint32(MakeDestinationID(1, 2))}))
	require.Equal(t, 1, rx.Len())
}

func TestLoopbackBusOffRecovery(t *testing.T) {
	bus, a, _, rx := openPair(t)
	defer bus.Close()
	a.SetState(BusOff, ErrorCounters{TxErrors: 255})
	done := make(chan error, 1)
	require.NoError(t, a.SendAsync(Frame{ID: uint32(MakeDestinationID(1, 2))}, func(err error) { done <- err }))
	require.Equal(t, 1, a.Pending())

	require.NoError(t, a.Recover(context.Background()))
	require.NoError(t, waitErr(t, done))
	require.Equal(t, 1, rx.Len())
	require.Equal(t, 1, a.Recoveries())
	state, counters, err := a.State()
	require.NoError(t, err)
	require.Equal(t, BusErrorActive, state)
	require.Equal(t, ErrorCounters{}, counters)
}

func TestLoopbackRxQueueFull(t *testing.T) {
	bus, a, _, rx := openPair(t)
	defer bus.Close()
	f := Frame{ID: uint32(MakeDestinationID(1, 2))}
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Send(context.Background(), f))
	}
	require.Equal(t, 3, rx.Len())
}

func TestBusStateString(t *testing.T) {
	require.Equal(t, "bus-off", BusOff.String())
	require.Equal(t, "BusState(9)", BusState(9).String())
}

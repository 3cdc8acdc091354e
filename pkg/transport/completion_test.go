package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompletionSignal(t *testing.T) {
	c := newCompletion()
	seq := c.arm()
	failure := errors.New("failure")
	require.True(t, c.signal(seq, failure))
	require.False(t, c.signal(seq, nil))
	require.Equal(t, failure, c.wait(context.Background(), time.Second))
}

func TestCompletionStaleSignalIgnored(t *testing.T) {
	c := newCompletion()
	stale := c.arm()
	require.Equal(t, errCompletionTimeout, c.wait(context.Background(), 10*time.Millisecond))
	require.False(t, c.signal(stale, nil))

	seq := c.arm()
	require.NotEqual(t, stale, seq)
	require.False(t, c.signal(stale, nil))
	go c.signal(seq, nil)
	require.NoError(t, c.wait(context.Background(), time.Second))
}

func TestCompletionRelease(t *testing.T) {
	c := newCompletion()
	require.False(t, c.release(ErrReset))
	c.arm()
	require.True(t, c.release(ErrReset))
	require.Equal(t, ErrReset, c.wait(context.Background(), time.Second))
}

func TestCompletionCancel(t *testing.T) {
	c := newCompletion()
	seq := c.arm()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, c.wait(ctx, time.Second))
	require.False(t, c.signal(seq, nil))
}

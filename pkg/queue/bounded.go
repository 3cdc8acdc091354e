package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Bounded is a fixed-capacity ring buffer FIFO.
type Bounded[T any] struct {
	lock  sync.Mutex
	slots []T
	wr    uint32
	rd    uint32

	// notEmpty holds at most one wake-up token for the consumer.
	notEmpty chan struct{}
}

// NewBounded creates a queue with capacity slots, capacity-1 of them usable.
// It panics if capacity < 2 as sizes are build-time constants.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 2 {
		panic(fmt.Sprintf("queue: invalid capacity %d", capacity))
	}
	return &Bounded[T]{
		slots:    make([]T, capacity),
		notEmpty: make(chan struct{}, 1),
	}
}

// Cap returns the number of slots, one more than the usable size.
func (q *Bounded[T]) Cap() int {
	return len(q.slots)
}

// Len returns the number of queued items.
func (q *Bounded[T]) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	n := len(q.slots)
	return int((q.wr + uint32(n) - q.rd) % uint32(n))
}

func (q *Bounded[T]) next(idx uint32) uint32 {
	return (idx + 1) % uint32(len(q.slots))
}

// TryPush copies item into the next write slot. It never blocks.
func (q *Bounded[T]) TryPush(item T) error {
	q.lock.Lock()
	next := q.next(q.wr)
	if next == q.rd {
		q.lock.Unlock()
		return ErrFull
	}
	q.slots[q.wr] = item
	q.wr = next
	// signaled under the lock so a concurrent Reset can't consume the
	// token of an item queued after it
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
	q.lock.Unlock()
	return nil
}

// TryPop removes the oldest item if any.
func (q *Bounded[T]) TryPop() (item T, ok bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.wr == q.rd {
		return
	}
	var zero T
	item, q.slots[q.rd] = q.slots[q.rd], zero
	q.rd = q.next(q.rd)
	return item, true
}

// PopBlocking waits until an item is available, the timeout elapses
// (ErrTimeout) or ctx is done. A timeout <= 0 waits forever.
func (q *Bounded[T]) PopBlocking(ctx context.Context, timeout time.Duration) (T, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	for {
		if item, ok := q.TryPop(); ok {
			return item, nil
		}
		select {
		case <-q.notEmpty:
		case <-timer:
			var zero T
			return zero, ErrTimeout
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Reset drops all queued items. Unlike push/pop it may be called from
// any context; the reset is atomic with respect to concurrent push/pop.
func (q *Bounded[T]) Reset() int {
	q.lock.Lock()
	n := len(q.slots)
	dropped := int((q.wr + uint32(n) - q.rd) % uint32(n))
	var zero T
	for i := range q.slots {
		q.slots[i] = zero
	}
	q.wr, q.rd = 0, 0
	select {
	case <-q.notEmpty:
	default:
	}
	q.lock.Unlock()
	return dropped
}

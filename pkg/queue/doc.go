// Package queue provides the fixed-capacity FIFO used to hand messages and
// frames between execution contexts without unbounded buffering.
package queue

// A Bounded queue of capacity N stores at most N-1 items: the slot at the
// write index is always kept empty so that full (next write collides with
// read) and empty (write == read) are told apart without a counter.
//
// Push never blocks and may be called from driver callbacks. Pop is meant
// for exactly one consumer goroutine per queue.

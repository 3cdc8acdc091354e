// Package transport moves logical messages between nodes over a CAN bus.
//
// A Context owns a bounded TX queue drained by a single TX loop, an RX
// queue fed by the receive filters and drained by a single RX loop, a
// completion token signaled by the driver, a reset worker and a bus-off
// monitor. All of them run from Context.Run.
//
// Messages are encoded when queued. The TX loop has two states. In Idle it
// waits for the next queued message and hands its frame to the driver, moving to
// AwaitingCompletion. The driver completion callback signals the token and
// the loop returns to Idle. Transmit errors are logged and the message is
// not retried. A completion not reported within CompletionTimeout means the
// bus is stuck and the fatal handler is invoked.
//
// Plain and extended identifiers carry one size-prefixed message per frame.
// ISO-TP identifiers carry ISO 15765-2 frames: a message fitting a single
// frame is sent as is, a longer one as a first frame and consecutive frames
// paced by the receiver's flow control (block size and separation time).
// Flow control goes back on the source identifier of the pair and is
// routed to the sender by its RX loop, so segmented sends need Run.
package transport

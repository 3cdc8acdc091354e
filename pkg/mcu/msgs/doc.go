// Package msgs defines the messages exchanged between the host and the MCU.
package msgs

// A Message is a header (schema version, optional ack number) followed by
// exactly one payload. The payload kind is the field number the payload is
// encoded under, so the set of kinds is closed and versioned with the schema.
//
// Kinds below KindUserLedsPattern are events produced by the MCU, the others
// are commands produced by the host.

// Package socketcan provides can.Device implementations on Linux SocketCAN.
//
// Two drivers are available: a raw socket driver which supports CAN FD and
// reports bus state from error frames, and a classic CAN driver built on
// github.com/brutella/can.
package socketcan

// Driver names accepted by Open.
const (
	DriverFD      = "fd"
	DriverRaw     = "raw"
	DriverClassic = "classic"
)

//go:build linux

package socketcan

import (
	"fmt"

	"github.com/robotalks/orb.go/pkg/can"
)

// Open opens iface with the named driver.
func Open(driver, iface string) (can.Device, error) {
	switch driver {
	case DriverFD, "":
		return OpenRaw(iface, true)
	case DriverRaw:
		return OpenRaw(iface, false)
	case DriverClassic:
		return OpenClassic(iface)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, driver)
}

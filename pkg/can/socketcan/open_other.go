//go:build !linux

package socketcan

import (
	"fmt"

	"github.com/robotalks/orb.go/pkg/can"
)

// Open opens iface with the named driver.
func Open(driver, iface string) (can.Device, error) {
	return nil, fmt.Errorf("%w: %q on this platform", ErrUnsupported, driver)
}

package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const appID = "orb"

// MachineID retrieves an ID identifying the machine, hashed with the
// application ID so the raw machine ID is not exposed.
func MachineID() (string, error) {
	return machineid.ProtectedID(appID)
}

// DefaultNodeName derives a node name from the machine ID, falling back to
// the host name.
func DefaultNodeName() string {
	if id, err := MachineID(); err == nil && len(id) >= 8 {
		return "orb-" + id[:8]
	} else if err != nil {
		glog.Warningf("machine id: %v", err)
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return appID
}

// Package connectivity decides whether the device is online. A Machine walks
// from boot through joining the configured network to Operational, and falls
// back to hosting a setup access point when the network cannot be joined.
package connectivity

import "fmt"

// Mode is the device's connectivity state.
type Mode int

const (
	// Bootstrapping is the initial mode, before persisted settings are checked
	Bootstrapping Mode = iota

	// AccessPointSetup hosts a setup network and waits for new settings
	AccessPointSetup

	// ConnectingToNetwork is joining the configured network
	ConnectingToNetwork

	// Operational is the only mode in which flights are acquired
	Operational
)

var modeNames = map[Mode]string{
	Bootstrapping:       "bootstrapping",
	AccessPointSetup:    "access_point_setup",
	ConnectingToNetwork: "connecting",
	Operational:         "operational",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

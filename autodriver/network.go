package autodriver

import (
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// NetworkMonitor reports the connectivity facts the auto-driver needs
// before deciding to poll or force a fetch (spec.md §4.10, §4.6).
type NetworkMonitor interface {
	IsOnline() bool
	IsMetered() bool
}

// NetworkManagerMonitor queries org.freedesktop.NetworkManager over
// the system bus, the same connectivity source the original daemon
// used. Any D-Bus failure (NetworkManager absent, bus unreachable) is
// treated as "online, unmetered" rather than blocking automatic
// updates on an environment that simply doesn't run NetworkManager.
type NetworkManagerMonitor struct {
	Conn *dbus.Conn
}

const (
	nmBusName    = "org.freedesktop.NetworkManager"
	nmObjectPath = dbus.ObjectPath("/org/freedesktop/NetworkManager")

	// nmConnectivityFull mirrors NMConnectivityState's "full" value.
	nmConnectivityFull = uint32(4)
)

func (m *NetworkManagerMonitor) object() dbus.BusObject {
	return m.Conn.Object(nmBusName, nmObjectPath)
}

// IsOnline reports the Connectivity property as NM_CONNECTIVITY_FULL.
func (m *NetworkManagerMonitor) IsOnline() bool {
	v, err := m.object().GetProperty(nmBusName + ".Connectivity")
	if err != nil {
		logrus.WithError(err).Debug("autodriver: NetworkManager connectivity check failed, assuming online")
		return true
	}
	state, ok := v.Value().(uint32)
	if !ok {
		return true
	}
	return state == nmConnectivityFull
}

// IsMetered reports the Metered property, per NMMetered.
func (m *NetworkManagerMonitor) IsMetered() bool {
	v, err := m.object().GetProperty(nmBusName + ".Metered")
	if err != nil {
		logrus.WithError(err).Debug("autodriver: NetworkManager metered check failed, assuming unmetered")
		return false
	}
	state, ok := v.Value().(uint32)
	if !ok {
		return false
	}
	// NM_METERED_YES = 1, NM_METERED_GUESS_YES = 3.
	return state == 1 || state == 3
}

package discovery

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// HostKey identifies a host as seen from a particular device.
type HostKey struct {
	Device topology.DeviceID
	Addr   netip.Addr
}

// HostEntry stores the hardware address learned for a host.
type HostEntry struct {
	// Device is the device that observed the host.
	Device topology.DeviceID
	// Addr is the IPv4 address of the host.
	Addr netip.Addr
	// MAC is the last learned hardware address of the host.
	MAC net.HardwareAddr
	// Port is the ingress port the host was last observed on.
	Port uint32
	// UpdatedAt is the timestamp when this entry was last updated.
	UpdatedAt time.Time
}

func (m HostEntry) String() string {
	return fmt.Sprintf("%s@%s -> %s (port %d)", m.Addr, m.Device, m.MAC, m.Port)
}

// HostDirectory maps (device, host address) to the learned MAC address.
//
// Entries are overwritten on relearn and are never removed by topology
// changes.
type HostDirectory = Cache[HostKey, HostEntry]

// HostDirectoryView is a read-only snapshot of the host directory.
type HostDirectoryView = CacheView[HostKey, HostEntry]

// NewHostDirectory creates an empty host directory.
func NewHostDirectory() *HostDirectory {
	return NewEmptyCache[HostKey, HostEntry]()
}

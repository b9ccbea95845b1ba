package controller

import (
	"fmt"

	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// Event is a notification delivered to the controller.
type Event interface {
	// Kind returns the event name, used for logging and metrics.
	Kind() string
	isEvent()
}

// Event kinds.
const (
	KindSwitchFeatures = "switch_features"
	KindSwitchJoin     = "switch_join"
	KindSwitchLeave    = "switch_leave"
	KindTopology       = "topology"
	KindPortStatus     = "port_status"
	KindPacketIn       = "packet_in"
)

// SwitchFeatures is delivered once a device completes the handshake.
type SwitchFeatures struct {
	Device topology.DeviceID
}

func (*SwitchFeatures) Kind() string { return KindSwitchFeatures }
func (*SwitchFeatures) isEvent()     {}

// SwitchJoin is delivered when a device enters the topology, together with
// the full topology known at that moment.
type SwitchJoin struct {
	Device  topology.DeviceID
	Devices []topology.DeviceID
	Links   []topology.Link
}

func (*SwitchJoin) Kind() string { return KindSwitchJoin }
func (*SwitchJoin) isEvent()     {}

// SwitchLeave is delivered when a device disconnects.
type SwitchLeave struct {
	Device topology.DeviceID
}

func (*SwitchLeave) Kind() string { return KindSwitchLeave }
func (*SwitchLeave) isEvent()     {}

// TopologyUpdate carries the full topology after link discovery.
type TopologyUpdate struct {
	Devices []topology.DeviceID
	Links   []topology.Link
}

func (*TopologyUpdate) Kind() string { return KindTopology }
func (*TopologyUpdate) isEvent()     {}

// PortState is the operational state of a device port.
type PortState uint8

const (
	PortUp PortState = iota + 1
	PortDown
)

func (m PortState) String() string {
	switch m {
	case PortUp:
		return "up"
	case PortDown:
		return "down"
	default:
		return fmt.Sprintf("PortState(%d)", uint8(m))
	}
}

// PortStatus reports a port state change.
type PortStatus struct {
	Device topology.DeviceID
	Port   uint32
	State  PortState
}

func (*PortStatus) Kind() string { return KindPortStatus }
func (*PortStatus) isEvent()     {}

// PacketIn carries a packet a device sent to the controller.
type PacketIn struct {
	Device topology.DeviceID
	InPort uint32
	// BufferID references the packet buffered on the device, or
	// ofp.NoBuffer.
	BufferID uint32
	// TotalLen is the original length of the packet, which may exceed the
	// captured Data.
	TotalLen uint32
	Data     []byte
}

func (*PacketIn) Kind() string { return KindPacketIn }
func (*PacketIn) isEvent()     {}

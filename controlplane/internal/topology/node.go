package topology

import (
	"fmt"
	"net/netip"
	"strconv"
)

// DeviceID identifies a controller-managed switch for the lifetime of the
// controller (OpenFlow datapath id).
type DeviceID uint64

func (m DeviceID) String() string {
	return strconv.FormatUint(uint64(m), 10)
}

// NodeKind discriminates graph vertices.
type NodeKind uint8

const (
	NodeKindDevice NodeKind = iota + 1
	NodeKindHost
)

func (m NodeKind) String() string {
	switch m {
	case NodeKindDevice:
		return "device"
	case NodeKindHost:
		return "host"
	default:
		return "unknown"
	}
}

// Node is a graph vertex: either a device or a host identified by its IPv4
// address.
//
// Nodes are comparable and can be used as map keys.
type Node struct {
	Kind   NodeKind
	Device DeviceID
	Host   netip.Addr
}

// DeviceNode returns a node for the given device.
func DeviceNode(id DeviceID) Node {
	return Node{Kind: NodeKindDevice, Device: id}
}

// HostNode returns a node for the given host address.
func HostNode(addr netip.Addr) Node {
	return Node{Kind: NodeKindHost, Host: addr.Unmap()}
}

// IsDevice reports whether this node is a device.
func (m Node) IsDevice() bool {
	return m.Kind == NodeKindDevice
}

// IsHost reports whether this node is a host.
func (m Node) IsHost() bool {
	return m.Kind == NodeKindHost
}

func (m Node) String() string {
	switch m.Kind {
	case NodeKindDevice:
		return "dp:" + m.Device.String()
	case NodeKindHost:
		return m.Host.String()
	default:
		return fmt.Sprintf("node(%d)", m.Kind)
	}
}

// Edge is a directed edge of the topology graph.
//
// Port is the egress port on From and is meaningful only when From is a
// device.
type Edge struct {
	From Node
	To   Node
	Port uint32
}

func (m Edge) String() string {
	return fmt.Sprintf("%s -> %s (port %d)", m.From, m.To, m.Port)
}

// Link is an inter-device link as reported by topology discovery.
type Link struct {
	Src     DeviceID
	SrcPort uint32
	Dst     DeviceID
	DstPort uint32
}

package ofp

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/gopacket/gopacket/layers"

	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// Reserved port numbers and buffer ids, as defined by OpenFlow 1.3.
const (
	// PortController sends the packet to the controller.
	PortController uint32 = 0xfffffffd
	// PortAny is a wildcard port used in delete requests.
	PortAny uint32 = 0xffffffff
	// NoBuffer means the packet is not buffered on the device.
	NoBuffer uint32 = 0xffffffff
	// MaxLenNoBuffer asks the device to send the full packet to the
	// controller without buffering it.
	MaxLenNoBuffer uint16 = 0xffff
)

// Rule priorities.
const (
	// PriorityMiss is the priority of the catch-all rule.
	PriorityMiss uint16 = 0
	// PriorityForward is the priority of rules installed by the controller.
	PriorityForward uint16 = 1
)

// Match is a subset of OpenFlow match fields. Zero values are wildcards.
type Match struct {
	InPort    uint32
	EtherType layers.EthernetType
	IPv4Dst   netip.Addr
}

// IsEmpty reports whether the match is a full wildcard.
func (m Match) IsEmpty() bool {
	return m == Match{}
}

func (m Match) String() string {
	if m.IsEmpty() {
		return "any"
	}

	fields := make([]string, 0, 3)
	if m.InPort != 0 {
		fields = append(fields, fmt.Sprintf("in_port=%d", m.InPort))
	}
	if m.EtherType != 0 {
		fields = append(fields, fmt.Sprintf("eth_type=0x%04x", uint16(m.EtherType)))
	}
	if m.IPv4Dst.IsValid() {
		fields = append(fields, "ipv4_dst="+m.IPv4Dst.String())
	}
	return strings.Join(fields, ",")
}

// ActionType enumerates supported actions.
type ActionType uint8

const (
	ActionOutput ActionType = iota + 1
	ActionSetEthSrc
	ActionSetEthDst
)

func (m ActionType) String() string {
	switch m {
	case ActionOutput:
		return "output"
	case ActionSetEthSrc:
		return "set_eth_src"
	case ActionSetEthDst:
		return "set_eth_dst"
	default:
		return "unknown"
	}
}

// Action is a single action of an apply-actions instruction.
type Action struct {
	Type ActionType
	// Port is the output port for ActionOutput.
	Port uint32
	// MaxLen is the number of bytes sent to the controller for ActionOutput
	// to PortController.
	MaxLen uint16
	// MAC is the new address for ActionSetEthSrc and ActionSetEthDst.
	MAC net.HardwareAddr
}

// Output returns an action forwarding the packet out of the port.
func Output(port uint32) Action {
	return Action{Type: ActionOutput, Port: port}
}

// OutputToController returns an action sending full packets to the
// controller.
func OutputToController() Action {
	return Action{Type: ActionOutput, Port: PortController, MaxLen: MaxLenNoBuffer}
}

// SetEthSrc returns an action rewriting the source MAC address.
func SetEthSrc(mac net.HardwareAddr) Action {
	return Action{Type: ActionSetEthSrc, MAC: mac}
}

// SetEthDst returns an action rewriting the destination MAC address.
func SetEthDst(mac net.HardwareAddr) Action {
	return Action{Type: ActionSetEthDst, MAC: mac}
}

func (m Action) String() string {
	switch m.Type {
	case ActionOutput:
		if m.Port == PortController {
			return fmt.Sprintf("output:controller(max_len=%d)", m.MaxLen)
		}
		return fmt.Sprintf("output:%d", m.Port)
	case ActionSetEthSrc, ActionSetEthDst:
		return fmt.Sprintf("%s:%s", m.Type, m.MAC)
	default:
		return m.Type.String()
	}
}

// Message is a control message sent to a device.
type Message interface {
	fmt.Stringer
	isMessage()
}

// FlowMod adds a rule to the device flow table.
type FlowMod struct {
	Priority uint16
	Match    Match
	Actions  []Action
	// BufferID references a packet buffered on the device that should be
	// processed by the new rule, NoBuffer otherwise.
	BufferID uint32
}

func (*FlowMod) isMessage() {}

func (m *FlowMod) String() string {
	return fmt.Sprintf("flow_mod(priority=%d, match=%s, actions=%s)", m.Priority, m.Match, actionsString(m.Actions))
}

// FlowDelete removes every rule with priority not lower than Priority,
// regardless of its match.
type FlowDelete struct {
	Priority uint16
	OutPort  uint32
}

func (*FlowDelete) isMessage() {}

func (m *FlowDelete) String() string {
	return fmt.Sprintf("flow_delete(priority>=%d)", m.Priority)
}

// PacketOut sends a packet through the device.
type PacketOut struct {
	BufferID uint32
	InPort   uint32
	Actions  []Action
	// Data is the packet payload, set only when BufferID is NoBuffer.
	Data []byte
}

func (*PacketOut) isMessage() {}

func (m *PacketOut) String() string {
	return fmt.Sprintf("packet_out(buffer=%#x, in_port=%d, actions=%s, len=%d)", m.BufferID, m.InPort, actionsString(m.Actions), len(m.Data))
}

func actionsString(actions []Action) string {
	parts := make([]string, len(actions))
	for idx, action := range actions {
		parts[idx] = action.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Transport delivers messages to devices.
//
// Both methods are fire-and-forget: a nil error means the message was
// accepted for delivery, not that the device applied it.
type Transport interface {
	// SendControlMessage sends a control message to the device.
	SendControlMessage(device topology.DeviceID, msg Message) error
	// SendRawPacket emits a raw frame out of the device port.
	SendRawPacket(device topology.DeviceID, port uint32, data []byte) error
}

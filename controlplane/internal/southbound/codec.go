package southbound

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"

	"github.com/gopacket/gopacket/layers"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yanet-platform/sdnctl/controlplane/internal/controller"
	"github.com/yanet-platform/sdnctl/controlplane/internal/ofp"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// ErrInvalidMessage is returned when a stream message cannot be decoded.
var ErrInvalidMessage = errors.New("invalid message")

// Command types sent to the event runtime.
const (
	CommandFlowMod    = "flow_mod"
	CommandFlowDelete = "flow_delete"
	CommandPacketOut  = "packet_out"
	CommandRawPacket  = "raw_packet"
)

// Command is a decoded command addressed to a device.
type Command struct {
	Device topology.DeviceID
	// Message is set for control messages.
	Message ofp.Message
	// Raw is set for raw packet emissions.
	Raw *RawPacket
}

// RawPacket is a frame to emit out of a device port.
type RawPacket struct {
	Port uint32
	Data []byte
}

// DecodeEvent converts an inbound stream message into a controller event.
func DecodeEvent(msg *structpb.Struct) (controller.Event, error) {
	kind, err := stringField(msg, "type")
	if err != nil {
		return nil, err
	}

	switch kind {
	case controller.KindSwitchFeatures:
		device, err := deviceField(msg, "device")
		if err != nil {
			return nil, err
		}
		return &controller.SwitchFeatures{Device: device}, nil
	case controller.KindSwitchJoin:
		device, err := deviceField(msg, "device")
		if err != nil {
			return nil, err
		}
		devices, links, err := decodeTopology(msg)
		if err != nil {
			return nil, err
		}
		return &controller.SwitchJoin{Device: device, Devices: devices, Links: links}, nil
	case controller.KindSwitchLeave:
		device, err := deviceField(msg, "device")
		if err != nil {
			return nil, err
		}
		return &controller.SwitchLeave{Device: device}, nil
	case controller.KindTopology:
		devices, links, err := decodeTopology(msg)
		if err != nil {
			return nil, err
		}
		return &controller.TopologyUpdate{Devices: devices, Links: links}, nil
	case controller.KindPortStatus:
		return decodePortStatus(msg)
	case controller.KindPacketIn:
		return decodePacketIn(msg)
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidMessage, kind)
	}
}

// EncodeEvent converts a controller event into a stream message.
func EncodeEvent(ev controller.Event) (*structpb.Struct, error) {
	fields := map[string]*structpb.Value{
		"type": structpb.NewStringValue(ev.Kind()),
	}

	switch ev := ev.(type) {
	case *controller.SwitchFeatures:
		fields["device"] = deviceValue(ev.Device)
	case *controller.SwitchJoin:
		fields["device"] = deviceValue(ev.Device)
		encodeTopology(fields, ev.Devices, ev.Links)
	case *controller.SwitchLeave:
		fields["device"] = deviceValue(ev.Device)
	case *controller.TopologyUpdate:
		encodeTopology(fields, ev.Devices, ev.Links)
	case *controller.PortStatus:
		fields["device"] = deviceValue(ev.Device)
		fields["port"] = structpb.NewNumberValue(float64(ev.Port))
		fields["state"] = structpb.NewStringValue(ev.State.String())
	case *controller.PacketIn:
		fields["device"] = deviceValue(ev.Device)
		fields["in_port"] = structpb.NewNumberValue(float64(ev.InPort))
		fields["buffer_id"] = structpb.NewNumberValue(float64(ev.BufferID))
		fields["total_len"] = structpb.NewNumberValue(float64(ev.TotalLen))
		fields["data"] = bytesValue(ev.Data)
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}

	return &structpb.Struct{Fields: fields}, nil
}

// EncodeMessage converts a control message into an outbound stream message.
func EncodeMessage(device topology.DeviceID, msg ofp.Message) (*structpb.Struct, error) {
	fields := map[string]*structpb.Value{
		"device": deviceValue(device),
	}

	switch msg := msg.(type) {
	case *ofp.FlowMod:
		fields["type"] = structpb.NewStringValue(CommandFlowMod)
		fields["priority"] = structpb.NewNumberValue(float64(msg.Priority))
		fields["match"] = encodeMatch(msg.Match)
		fields["actions"] = encodeActions(msg.Actions)
		fields["buffer_id"] = structpb.NewNumberValue(float64(msg.BufferID))
	case *ofp.FlowDelete:
		fields["type"] = structpb.NewStringValue(CommandFlowDelete)
		fields["priority"] = structpb.NewNumberValue(float64(msg.Priority))
		fields["out_port"] = structpb.NewNumberValue(float64(msg.OutPort))
	case *ofp.PacketOut:
		fields["type"] = structpb.NewStringValue(CommandPacketOut)
		fields["buffer_id"] = structpb.NewNumberValue(float64(msg.BufferID))
		fields["in_port"] = structpb.NewNumberValue(float64(msg.InPort))
		fields["actions"] = encodeActions(msg.Actions)
		if len(msg.Data) > 0 {
			fields["data"] = bytesValue(msg.Data)
		}
	default:
		return nil, fmt.Errorf("unsupported message %T", msg)
	}

	return &structpb.Struct{Fields: fields}, nil
}

// EncodeRawPacket converts a raw packet emission into an outbound stream
// message.
func EncodeRawPacket(device topology.DeviceID, port uint32, data []byte) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"type":   structpb.NewStringValue(CommandRawPacket),
			"device": deviceValue(device),
			"port":   structpb.NewNumberValue(float64(port)),
			"data":   bytesValue(data),
		},
	}
}

// DecodeCommand converts an outbound stream message back into a command.
func DecodeCommand(msg *structpb.Struct) (*Command, error) {
	kind, err := stringField(msg, "type")
	if err != nil {
		return nil, err
	}
	device, err := deviceField(msg, "device")
	if err != nil {
		return nil, err
	}

	cmd := &Command{Device: device}
	switch kind {
	case CommandFlowMod:
		flowMod := &ofp.FlowMod{}
		priority, err := uint16Field(msg, "priority")
		if err != nil {
			return nil, err
		}
		flowMod.Priority = priority
		if flowMod.Match, err = decodeMatch(msg.GetFields()["match"].GetStructValue()); err != nil {
			return nil, err
		}
		if flowMod.Actions, err = decodeActions(msg); err != nil {
			return nil, err
		}
		if flowMod.BufferID, err = uint32Field(msg, "buffer_id"); err != nil {
			return nil, err
		}
		cmd.Message = flowMod
	case CommandFlowDelete:
		flowDelete := &ofp.FlowDelete{}
		priority, err := uint16Field(msg, "priority")
		if err != nil {
			return nil, err
		}
		flowDelete.Priority = priority
		if flowDelete.OutPort, err = uint32Field(msg, "out_port"); err != nil {
			return nil, err
		}
		cmd.Message = flowDelete
	case CommandPacketOut:
		packetOut := &ofp.PacketOut{}
		if packetOut.BufferID, err = uint32Field(msg, "buffer_id"); err != nil {
			return nil, err
		}
		if packetOut.InPort, err = uint32Field(msg, "in_port"); err != nil {
			return nil, err
		}
		if packetOut.Actions, err = decodeActions(msg); err != nil {
			return nil, err
		}
		if _, ok := msg.GetFields()["data"]; ok {
			if packetOut.Data, err = bytesField(msg, "data"); err != nil {
				return nil, err
			}
		}
		cmd.Message = packetOut
	case CommandRawPacket:
		port, err := uint32Field(msg, "port")
		if err != nil {
			return nil, err
		}
		data, err := bytesField(msg, "data")
		if err != nil {
			return nil, err
		}
		cmd.Raw = &RawPacket{Port: port, Data: data}
	default:
		return nil, fmt.Errorf("%w: unknown command type %q", ErrInvalidMessage, kind)
	}

	return cmd, nil
}

func decodeTopology(msg *structpb.Struct) ([]topology.DeviceID, []topology.Link, error) {
	var devices []topology.DeviceID
	for idx, v := range msg.GetFields()["devices"].GetListValue().GetValues() {
		device, err := deviceFromValue(v)
		if err != nil {
			return nil, nil, fmt.Errorf("devices[%d]: %w", idx, err)
		}
		devices = append(devices, device)
	}

	var links []topology.Link
	for idx, v := range msg.GetFields()["links"].GetListValue().GetValues() {
		link, err := decodeLink(v.GetStructValue())
		if err != nil {
			return nil, nil, fmt.Errorf("links[%d]: %w", idx, err)
		}
		links = append(links, link)
	}

	return devices, links, nil
}

func decodeLink(msg *structpb.Struct) (topology.Link, error) {
	if msg == nil {
		return topology.Link{}, fmt.Errorf("%w: link must be an object", ErrInvalidMessage)
	}

	src, err := deviceField(msg, "src")
	if err != nil {
		return topology.Link{}, err
	}
	srcPort, err := uint32Field(msg, "src_port")
	if err != nil {
		return topology.Link{}, err
	}
	dst, err := deviceField(msg, "dst")
	if err != nil {
		return topology.Link{}, err
	}
	dstPort, err := uint32Field(msg, "dst_port")
	if err != nil {
		return topology.Link{}, err
	}

	return topology.Link{Src: src, SrcPort: srcPort, Dst: dst, DstPort: dstPort}, nil
}

func encodeTopology(fields map[string]*structpb.Value, devices []topology.DeviceID, links []topology.Link) {
	deviceValues := make([]*structpb.Value, 0, len(devices))
	for _, device := range devices {
		deviceValues = append(deviceValues, deviceValue(device))
	}

	linkValues := make([]*structpb.Value, 0, len(links))
	for _, link := range links {
		linkValues = append(linkValues, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"src":      deviceValue(link.Src),
				"src_port": structpb.NewNumberValue(float64(link.SrcPort)),
				"dst":      deviceValue(link.Dst),
				"dst_port": structpb.NewNumberValue(float64(link.DstPort)),
			},
		}))
	}

	fields["devices"] = structpb.NewListValue(&structpb.ListValue{Values: deviceValues})
	fields["links"] = structpb.NewListValue(&structpb.ListValue{Values: linkValues})
}

func decodePortStatus(msg *structpb.Struct) (*controller.PortStatus, error) {
	device, err := deviceField(msg, "device")
	if err != nil {
		return nil, err
	}
	port, err := uint32Field(msg, "port")
	if err != nil {
		return nil, err
	}
	state, err := stringField(msg, "state")
	if err != nil {
		return nil, err
	}

	ev := &controller.PortStatus{Device: device, Port: port}
	switch state {
	case controller.PortUp.String():
		ev.State = controller.PortUp
	case controller.PortDown.String():
		ev.State = controller.PortDown
	default:
		return nil, fmt.Errorf("%w: unknown port state %q", ErrInvalidMessage, state)
	}
	return ev, nil
}

func decodePacketIn(msg *structpb.Struct) (*controller.PacketIn, error) {
	device, err := deviceField(msg, "device")
	if err != nil {
		return nil, err
	}
	inPort, err := uint32Field(msg, "in_port")
	if err != nil {
		return nil, err
	}
	data, err := bytesField(msg, "data")
	if err != nil {
		return nil, err
	}

	ev := &controller.PacketIn{
		Device:   device,
		InPort:   inPort,
		BufferID: ofp.NoBuffer,
		TotalLen: uint32(len(data)),
		Data:     data,
	}
	if _, ok := msg.GetFields()["buffer_id"]; ok {
		if ev.BufferID, err = uint32Field(msg, "buffer_id"); err != nil {
			return nil, err
		}
	}
	if _, ok := msg.GetFields()["total_len"]; ok {
		if ev.TotalLen, err = uint32Field(msg, "total_len"); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

func encodeMatch(match ofp.Match) *structpb.Value {
	fields := map[string]*structpb.Value{}
	if match.InPort != 0 {
		fields["in_port"] = structpb.NewNumberValue(float64(match.InPort))
	}
	if match.EtherType != 0 {
		fields["eth_type"] = structpb.NewNumberValue(float64(match.EtherType))
	}
	if match.IPv4Dst.IsValid() {
		fields["ipv4_dst"] = structpb.NewStringValue(match.IPv4Dst.String())
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func decodeMatch(msg *structpb.Struct) (ofp.Match, error) {
	match := ofp.Match{}
	if msg == nil {
		return match, nil
	}

	var err error
	if _, ok := msg.GetFields()["in_port"]; ok {
		if match.InPort, err = uint32Field(msg, "in_port"); err != nil {
			return ofp.Match{}, err
		}
	}
	if _, ok := msg.GetFields()["eth_type"]; ok {
		ethType, err := uint16Field(msg, "eth_type")
		if err != nil {
			return ofp.Match{}, err
		}
		match.EtherType = layers.EthernetType(ethType)
	}
	if _, ok := msg.GetFields()["ipv4_dst"]; ok {
		v, err := stringField(msg, "ipv4_dst")
		if err != nil {
			return ofp.Match{}, err
		}
		if match.IPv4Dst, err = netip.ParseAddr(v); err != nil {
			return ofp.Match{}, fmt.Errorf("%w: ipv4_dst: %v", ErrInvalidMessage, err)
		}
	}
	return match, nil
}

func encodeActions(actions []ofp.Action) *structpb.Value {
	values := make([]*structpb.Value, 0, len(actions))
	for _, action := range actions {
		fields := map[string]*structpb.Value{
			"type": structpb.NewStringValue(action.Type.String()),
		}
		switch action.Type {
		case ofp.ActionOutput:
			fields["port"] = structpb.NewNumberValue(float64(action.Port))
			if action.MaxLen != 0 {
				fields["max_len"] = structpb.NewNumberValue(float64(action.MaxLen))
			}
		case ofp.ActionSetEthSrc, ofp.ActionSetEthDst:
			fields["mac"] = structpb.NewStringValue(action.MAC.String())
		}
		values = append(values, structpb.NewStructValue(&structpb.Struct{Fields: fields}))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func decodeActions(msg *structpb.Struct) ([]ofp.Action, error) {
	var actions []ofp.Action
	for idx, v := range msg.GetFields()["actions"].GetListValue().GetValues() {
		action, err := decodeAction(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", idx, err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func decodeAction(msg *structpb.Struct) (ofp.Action, error) {
	if msg == nil {
		return ofp.Action{}, fmt.Errorf("%w: action must be an object", ErrInvalidMessage)
	}

	kind, err := stringField(msg, "type")
	if err != nil {
		return ofp.Action{}, err
	}

	switch kind {
	case ofp.ActionOutput.String():
		action := ofp.Action{Type: ofp.ActionOutput}
		if action.Port, err = uint32Field(msg, "port"); err != nil {
			return ofp.Action{}, err
		}
		if _, ok := msg.GetFields()["max_len"]; ok {
			if action.MaxLen, err = uint16Field(msg, "max_len"); err != nil {
				return ofp.Action{}, err
			}
		}
		return action, nil
	case ofp.ActionSetEthSrc.String(), ofp.ActionSetEthDst.String():
		v, err := stringField(msg, "mac")
		if err != nil {
			return ofp.Action{}, err
		}
		mac, err := net.ParseMAC(v)
		if err != nil {
			return ofp.Action{}, fmt.Errorf("%w: mac: %v", ErrInvalidMessage, err)
		}
		if kind == ofp.ActionSetEthSrc.String() {
			return ofp.SetEthSrc(mac), nil
		}
		return ofp.SetEthDst(mac), nil
	default:
		return ofp.Action{}, fmt.Errorf("%w: unknown action type %q", ErrInvalidMessage, kind)
	}
}

func deviceValue(device topology.DeviceID) *structpb.Value {
	return structpb.NewStringValue(device.String())
}

func bytesValue(data []byte) *structpb.Value {
	return structpb.NewStringValue(base64.StdEncoding.EncodeToString(data))
}

func stringField(msg *structpb.Struct, name string) (string, error) {
	v, ok := msg.GetFields()[name]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrInvalidMessage, name)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: field %q must be a string", ErrInvalidMessage, name)
	}
	return s.StringValue, nil
}

func deviceField(msg *structpb.Struct, name string) (topology.DeviceID, error) {
	v, ok := msg.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrInvalidMessage, name)
	}
	device, err := deviceFromValue(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", name, err)
	}
	return device, nil
}

// deviceFromValue accepts datapath ids both as decimal strings, which is the
// lossless form, and as numbers.
func deviceFromValue(v *structpb.Value) (topology.DeviceID, error) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		id, err := strconv.ParseUint(kind.StringValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid device id %q", ErrInvalidMessage, kind.StringValue)
		}
		return topology.DeviceID(id), nil
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n < 0 || n != math.Trunc(n) || n > 1<<53 {
			return 0, fmt.Errorf("%w: invalid device id %v", ErrInvalidMessage, n)
		}
		return topology.DeviceID(n), nil
	default:
		return 0, fmt.Errorf("%w: device id must be a string or a number", ErrInvalidMessage)
	}
}

func numberField(msg *structpb.Struct, name string, limit float64) (float64, error) {
	v, ok := msg.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrInvalidMessage, name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: field %q must be a number", ErrInvalidMessage, name)
	}
	if n.NumberValue < 0 || n.NumberValue > limit || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("%w: field %q is out of range: %v", ErrInvalidMessage, name, n.NumberValue)
	}
	return n.NumberValue, nil
}

func uint32Field(msg *structpb.Struct, name string) (uint32, error) {
	n, err := numberField(msg, name, math.MaxUint32)
	return uint32(n), err
}

func uint16Field(msg *structpb.Struct, name string) (uint16, error) {
	n, err := numberField(msg, name, math.MaxUint16)
	return uint16(n), err
}

func bytesField(msg *structpb.Struct, name string) ([]byte, error) {
	s, err := stringField(msg, name)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q must be base64: %v", ErrInvalidMessage, name, err)
	}
	return data, nil
}

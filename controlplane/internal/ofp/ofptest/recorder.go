// Package ofptest provides a recording transport for tests.
package ofptest

import (
	"slices"
	"sync"

	"github.com/yanet-platform/sdnctl/controlplane/internal/ofp"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// ControlMessage is a recorded control message.
type ControlMessage struct {
	Device  topology.DeviceID
	Message ofp.Message
}

// RawPacket is a recorded raw packet emission.
type RawPacket struct {
	Device topology.DeviceID
	Port   uint32
	Data   []byte
}

// Recorder is an ofp.Transport that keeps every message it is asked to send.
type Recorder struct {
	mu       sync.Mutex
	messages []ControlMessage
	packets  []RawPacket
	// Err, when set, is returned from every send. Messages are still
	// recorded.
	Err error
}

var _ ofp.Transport = (*Recorder)(nil)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (m *Recorder) SendControlMessage(device topology.DeviceID, msg ofp.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, ControlMessage{Device: device, Message: msg})
	return m.Err
}

func (m *Recorder) SendRawPacket(device topology.DeviceID, port uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.packets = append(m.packets, RawPacket{Device: device, Port: port, Data: slices.Clone(data)})
	return m.Err
}

// Messages returns recorded control messages.
func (m *Recorder) Messages() []ControlMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.messages)
}

// FlowMods returns recorded flow-mod messages sent to the device.
func (m *Recorder) FlowMods(device topology.DeviceID) []*ofp.FlowMod {
	var out []*ofp.FlowMod
	for _, msg := range m.Messages() {
		if flowMod, ok := msg.Message.(*ofp.FlowMod); ok && msg.Device == device {
			out = append(out, flowMod)
		}
	}
	return out
}

// PacketOuts returns recorded packet-out messages sent to the device.
func (m *Recorder) PacketOuts(device topology.DeviceID) []*ofp.PacketOut {
	var out []*ofp.PacketOut
	for _, msg := range m.Messages() {
		if packetOut, ok := msg.Message.(*ofp.PacketOut); ok && msg.Device == device {
			out = append(out, packetOut)
		}
	}
	return out
}

// RawPackets returns recorded raw packets.
func (m *Recorder) RawPackets() []RawPacket {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.packets)
}

// Reset forgets everything recorded so far.
func (m *Recorder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = nil
	m.packets = nil
}

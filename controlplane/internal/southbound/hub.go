package southbound

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yanet-platform/sdnctl/controlplane/internal/ofp"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

var (
	// ErrDeviceNotAttached is returned when no stream serves the device.
	ErrDeviceNotAttached = errors.New("device is not attached")
	// ErrQueueFull is returned when the outbound queue of the stream serving
	// the device is full.
	ErrQueueFull = errors.New("outbound queue is full")
)

// session is a single attachment stream.
type session struct {
	id  uint64
	out chan *structpb.Struct
}

// Hub routes commands to the streams serving their devices.
//
// A device is bound to the stream that last delivered an event for it.
// Sending never blocks: commands for a stream whose queue is full are
// dropped.
type Hub struct {
	mu       sync.Mutex
	nextID   uint64
	sessions map[topology.DeviceID]*session
	// queueSize is the capacity of every session outbound queue.
	queueSize int
}

var _ ofp.Transport = (*Hub)(nil)

// NewHub creates a hub with per-stream outbound queues of the given size.
func NewHub(queueSize int) *Hub {
	return &Hub{
		sessions:  map[topology.DeviceID]*session{},
		queueSize: max(queueSize, 1),
	}
}

// SendControlMessage implements ofp.Transport.
func (m *Hub) SendControlMessage(device topology.DeviceID, msg ofp.Message) error {
	cmd, err := EncodeMessage(device, msg)
	if err != nil {
		return err
	}
	return m.send(device, cmd)
}

// SendRawPacket implements ofp.Transport.
func (m *Hub) SendRawPacket(device topology.DeviceID, port uint32, data []byte) error {
	return m.send(device, EncodeRawPacket(device, port, data))
}

// Devices returns the number of devices bound to streams.
func (m *Hub) Devices() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

func (m *Hub) send(device topology.DeviceID, cmd *structpb.Struct) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[device]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotAttached, device)
	}

	select {
	case s.out <- cmd:
		return nil
	default:
		return fmt.Errorf("%w: device %s", ErrQueueFull, device)
	}
}

func (m *Hub) open() *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	return &session{
		id:  m.nextID,
		out: make(chan *structpb.Struct, m.queueSize),
	}
}

// bind binds the device to the session, returning true if the binding
// changed.
func (m *Hub) bind(device topology.DeviceID, s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[device]; ok && prev == s {
		return false
	}
	m.sessions[device] = s
	return true
}

// unbind removes the device binding if it belongs to the session.
func (m *Hub) unbind(device topology.DeviceID, s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bound, ok := m.sessions[device]; ok && bound == s {
		delete(m.sessions, device)
		return true
	}
	return false
}

// close unbinds every device still bound to the session and returns them.
func (m *Hub) close(s *session) []topology.DeviceID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var devices []topology.DeviceID
	for device, bound := range m.sessions {
		if bound == s {
			delete(m.sessions, device)
			devices = append(devices, device)
		}
	}
	slices.Sort(devices)
	return devices
}

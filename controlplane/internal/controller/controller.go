package controller

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"go.uber.org/zap"

	"github.com/yanet-platform/sdnctl/common/go/xpacket"
	"github.com/yanet-platform/sdnctl/controlplane/internal/arp"
	"github.com/yanet-platform/sdnctl/controlplane/internal/discovery"
	"github.com/yanet-platform/sdnctl/controlplane/internal/flow"
	"github.com/yanet-platform/sdnctl/controlplane/internal/forwarding"
	"github.com/yanet-platform/sdnctl/controlplane/internal/metrics"
	"github.com/yanet-platform/sdnctl/controlplane/internal/netcfg"
	"github.com/yanet-platform/sdnctl/controlplane/internal/ofp"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// ethernetHeaderLen is the length of an untagged Ethernet header.
const ethernetHeaderLen = 14

// ErrMalformedPacket is returned for packets that cannot be decoded.
var ErrMalformedPacket = errors.New("malformed packet")

// Option is a function that configures the controller.
type Option func(*options)

// WithLog configures the controller with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithMetrics configures the controller with a metrics registry.
func WithMetrics(registry *metrics.Registry) Option {
	return func(o *options) {
		o.Metrics = registry
	}
}

// WithQueueSize configures the capacity of the event queue.
func WithQueueSize(size int) Option {
	return func(o *options) {
		o.QueueSize = size
	}
}

// WithClock overrides the time source used to stamp learned hosts and
// installed rules.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.Now = now
	}
}

type options struct {
	Log       *zap.SugaredLogger
	Metrics   *metrics.Registry
	QueueSize int
	Now       func() time.Time
}

func newOptions() *options {
	return &options{
		Log:       zap.NewNop().Sugar(),
		QueueSize: 1024,
		Now:       time.Now,
	}
}

type portKey struct {
	device topology.DeviceID
	port   uint32
}

// Controller owns the whole controller state and applies events to it.
//
// Handle is not safe for concurrent use. Callers that do not serialize
// events themselves should use Submit together with Run.
type Controller struct {
	cfg       *netcfg.Config
	graph     *topology.Graph
	hosts     *discovery.HostDirectory
	resolver  *arp.Resolver
	installer *flow.Installer
	engine    *forwarding.Engine
	// switches are devices that completed the handshake, in order of
	// appearance. They are the targets of rule resets.
	switches []topology.DeviceID
	ports    map[portKey]PortState
	queue    chan request
	metrics  *metrics.Registry
	log      *zap.SugaredLogger
}

// NewController creates a new controller for the network configuration,
// sending device messages through the transport.
func NewController(cfg *netcfg.Config, tx ofp.Transport, options ...Option) *Controller {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	graph := topology.NewGraph()
	hosts := discovery.NewHostDirectory()
	learner := discovery.NewLearner(graph, hosts,
		discovery.WithLog(opts.Log.Named("learner")),
		discovery.WithClock(opts.Now),
	)
	resolver := arp.NewResolver(cfg, learner, tx,
		arp.WithLog(opts.Log.Named("arp")),
		arp.WithMetrics(opts.Metrics),
	)
	installer := flow.NewInstaller(tx, flow.NewCache(),
		flow.WithLog(opts.Log.Named("flow")),
		flow.WithMetrics(opts.Metrics),
		flow.WithClock(opts.Now),
	)
	engine := forwarding.NewEngine(graph, hosts, cfg, learner, resolver, installer,
		forwarding.WithLog(opts.Log.Named("forwarding")),
		forwarding.WithMetrics(opts.Metrics),
	)

	return &Controller{
		cfg:       cfg,
		graph:     graph,
		hosts:     hosts,
		resolver:  resolver,
		installer: installer,
		engine:    engine,
		ports:     map[portKey]PortState{},
		queue:     make(chan request, max(opts.QueueSize, 1)),
		metrics:   opts.Metrics,
		log:       opts.Log,
	}
}

// Handle applies a single event to the controller state.
//
// Topology mutations, including the flow cache reset, are fully applied
// before Handle returns.
func (m *Controller) Handle(ev Event) error {
	if isNilEvent(ev) {
		return fmt.Errorf("event %T must not be nil", ev)
	}
	startedAt := time.Now()

	var err error
	switch ev := ev.(type) {
	case *SwitchFeatures:
		err = m.onSwitchFeatures(ev)
	case *SwitchJoin:
		err = m.onSwitchJoin(ev)
	case *SwitchLeave:
		m.onSwitchLeave(ev)
	case *TopologyUpdate:
		err = m.onTopologyUpdate(ev)
	case *PortStatus:
		err = m.onPortStatus(ev)
	case *PacketIn:
		err = m.onPacketIn(ev)
	default:
		err = fmt.Errorf("unsupported event %T", ev)
	}

	m.metrics.RecordEvent(ev.Kind(), err, time.Since(startedAt))
	m.metrics.SetTopology(len(m.graph.Devices()), len(m.graph.Hosts()))
	m.metrics.SetFlowCacheEntries(m.installer.Cache().Len())

	if err != nil {
		return fmt.Errorf("failed to handle %s event: %w", ev.Kind(), err)
	}
	return nil
}

// isNilEvent reports whether the event is nil, including a typed nil pointer
// stored in the interface.
func isNilEvent(ev Event) bool {
	switch ev := ev.(type) {
	case nil:
		return true
	case *SwitchFeatures:
		return ev == nil
	case *SwitchJoin:
		return ev == nil
	case *SwitchLeave:
		return ev == nil
	case *TopologyUpdate:
		return ev == nil
	case *PortStatus:
		return ev == nil
	case *PacketIn:
		return ev == nil
	default:
		return false
	}
}

func (m *Controller) onSwitchFeatures(ev *SwitchFeatures) error {
	return m.register(ev.Device)
}

func (m *Controller) onSwitchJoin(ev *SwitchJoin) error {
	var errs []error
	if err := m.register(ev.Device); err != nil {
		errs = append(errs, err)
	}
	if err := m.rebuild(ev.Devices, ev.Links); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *Controller) onSwitchLeave(ev *SwitchLeave) {
	idx := slices.Index(m.switches, ev.Device)
	if idx < 0 {
		return
	}
	m.switches = slices.Delete(m.switches, idx, idx+1)

	for key := range m.ports {
		if key.device == ev.Device {
			delete(m.ports, key)
		}
	}

	m.log.Infow("switch left", zap.Stringer("device", ev.Device))
}

func (m *Controller) onTopologyUpdate(ev *TopologyUpdate) error {
	return m.rebuild(ev.Devices, ev.Links)
}

func (m *Controller) onPortStatus(ev *PortStatus) error {
	key := portKey{device: ev.Device, port: ev.Port}
	prev := m.ports[key]
	m.ports[key] = ev.State

	switch ev.State {
	case PortDown:
		if edge, ok := m.graph.RemoveEdge(ev.Device, ev.Port); ok {
			m.log.Infow("port down, edge is offline",
				zap.Stringer("edge", edge),
				zap.Stringer("prev_state", prev),
			)
		}
	case PortUp:
		if edge, ok := m.graph.RestoreEdge(ev.Device, ev.Port); ok {
			m.log.Infow("port up, edge restored",
				zap.Stringer("edge", edge),
				zap.Stringer("prev_state", prev),
			)
		}
	default:
		m.log.Warnw("unknown port state",
			zap.Stringer("device", ev.Device),
			zap.Uint32("port", ev.Port),
			zap.Stringer("state", ev.State),
		)
	}

	return m.installer.ResetAll(m.switches)
}

func (m *Controller) onPacketIn(ev *PacketIn) error {
	if len(ev.Data) < ethernetHeaderLen {
		m.metrics.RecordDrop(metrics.DropMalformed)
		return fmt.Errorf("%w: %d bytes captured", ErrMalformedPacket, len(ev.Data))
	}
	if int(ev.TotalLen) > len(ev.Data) {
		m.log.Debugw("packet is truncated",
			zap.Stringer("device", ev.Device),
			zap.Uint32("total_len", ev.TotalLen),
			zap.Int("captured_len", len(ev.Data)),
		)
	}

	pkt := xpacket.ParseEtherPacket(ev.Data)
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		m.metrics.RecordDrop(metrics.DropMalformed)
		return fmt.Errorf("%w: no Ethernet header", ErrMalformedPacket)
	}

	// Only the network layer decides whether the packet is malformed;
	// decode errors above it are ignored.
	switch eth.EthernetType {
	case layers.EthernetTypeARP:
		frame := &layers.ARP{}
		if err := frame.DecodeFromBytes(eth.Payload, gopacket.NilDecodeFeedback); err != nil {
			m.metrics.RecordDrop(metrics.DropMalformed)
			return fmt.Errorf("%w: invalid ARP frame: %v", ErrMalformedPacket, err)
		}
		return m.resolver.Handle(ev.Device, ev.InPort, eth, frame)
	case layers.EthernetTypeIPv4:
		ip := &layers.IPv4{}
		if err := ip.DecodeFromBytes(eth.Payload, gopacket.NilDecodeFeedback); err != nil {
			m.metrics.RecordDrop(metrics.DropMalformed)
			return fmt.Errorf("%w: invalid IPv4 header: %v", ErrMalformedPacket, err)
		}
		return m.engine.Forward(&forwarding.Packet{
			Device:   ev.Device,
			InPort:   ev.InPort,
			BufferID: ev.BufferID,
			Ethernet: eth,
			IPv4:     ip,
			Data:     ev.Data,
		})
	default:
		m.log.Debugw("ignore packet",
			zap.Stringer("device", ev.Device),
			zap.Stringer("ethertype", eth.EthernetType),
		)
		return nil
	}
}

// register remembers the device as a reset target and installs the miss
// rule on it the first time it is seen.
func (m *Controller) register(device topology.DeviceID) error {
	if slices.Contains(m.switches, device) {
		return nil
	}
	m.switches = append(m.switches, device)

	m.log.Infow("switch connected", zap.Stringer("device", device))
	return m.installer.InstallMissRule(device)
}

// rebuild replaces the device subgraph and invalidates every installed rule.
func (m *Controller) rebuild(devices []topology.DeviceID, links []topology.Link) error {
	m.graph.Rebuild(devices, links)
	m.graph.ClearOffline()

	m.log.Infow("topology rebuilt",
		zap.Int("devices", len(devices)),
		zap.Int("links", len(links)),
		zap.Int("nodes", m.graph.Len()),
	)

	return m.installer.ResetAll(m.switches)
}

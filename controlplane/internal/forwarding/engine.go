package forwarding

import (
	"fmt"
	"net/netip"

	"github.com/gopacket/gopacket/layers"
	"go.uber.org/zap"

	"github.com/yanet-platform/sdnctl/controlplane/internal/arp"
	"github.com/yanet-platform/sdnctl/controlplane/internal/discovery"
	"github.com/yanet-platform/sdnctl/controlplane/internal/flow"
	"github.com/yanet-platform/sdnctl/controlplane/internal/metrics"
	"github.com/yanet-platform/sdnctl/controlplane/internal/netcfg"
	"github.com/yanet-platform/sdnctl/controlplane/internal/ofp"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// Option is a function that configures the engine.
type Option func(*options)

// WithLog configures the engine with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithMetrics configures the engine with a metrics registry.
func WithMetrics(registry *metrics.Registry) Option {
	return func(o *options) {
		o.Metrics = registry
	}
}

type options struct {
	Log     *zap.SugaredLogger
	Metrics *metrics.Registry
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// Packet is an IPv4 packet received from a device.
type Packet struct {
	Device   topology.DeviceID
	InPort   uint32
	BufferID uint32
	Ethernet *layers.Ethernet
	IPv4     *layers.IPv4
	// Data is the packet as captured by the device.
	Data []byte
}

// Engine decides where IPv4 packets go and programs devices accordingly.
type Engine struct {
	graph     *topology.Graph
	hosts     *discovery.HostDirectory
	cfg       *netcfg.Config
	learner   *discovery.Learner
	resolver  *arp.Resolver
	installer *flow.Installer
	metrics   *metrics.Registry
	log       *zap.SugaredLogger
}

// NewEngine creates a new forwarding engine.
func NewEngine(
	graph *topology.Graph,
	hosts *discovery.HostDirectory,
	cfg *netcfg.Config,
	learner *discovery.Learner,
	resolver *arp.Resolver,
	installer *flow.Installer,
	options ...Option,
) *Engine {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &Engine{
		graph:     graph,
		hosts:     hosts,
		cfg:       cfg,
		learner:   learner,
		resolver:  resolver,
		installer: installer,
		metrics:   opts.Metrics,
		log:       opts.Log,
	}
}

// Forward handles a single IPv4 packet.
//
// Packets towards destinations already covered by a rule on the device are
// ignored. Packets towards unknown destinations trigger address resolution
// and are dropped. Otherwise a rule for the destination is installed on the
// ingress device and the packet is sent along it.
//
// Every drop is local and silent: only ErrNoRoute and transport failures are
// reported to the caller.
func (m *Engine) Forward(pkt *Packet) error {
	src, ok := netip.AddrFromSlice(pkt.IPv4.SrcIP)
	if !ok {
		m.metrics.RecordDrop(metrics.DropMalformed)
		return nil
	}
	dst, ok := netip.AddrFromSlice(pkt.IPv4.DstIP)
	if !ok {
		m.metrics.RecordDrop(metrics.DropMalformed)
		return nil
	}
	src, dst = src.Unmap(), dst.Unmap()

	m.learner.Observe(pkt.Device, pkt.InPort, src, pkt.Ethernet.SrcMAC)

	if m.installer.Covered(pkt.Device, dst) {
		return nil
	}

	dstNode := topology.HostNode(dst)
	if !m.graph.HasNode(dstNode) {
		return m.resolve(pkt.Device, dst)
	}

	path, err := m.graph.ShortestPath(topology.DeviceNode(pkt.Device), dstNode)
	if err != nil {
		m.metrics.RecordDrop(metrics.DropNoRoute)
		return fmt.Errorf("failed to forward %s -> %s: %w", src, dst, err)
	}

	next := path[1]
	outPort, ok := m.graph.Port(topology.DeviceNode(pkt.Device), next)
	if !ok {
		m.metrics.RecordDrop(metrics.DropNoRoute)
		return fmt.Errorf("failed to forward %s -> %s: no edge to %s: %w", src, dst, next, topology.ErrNoRoute)
	}

	if outPort == pkt.InPort {
		m.metrics.RecordDrop(metrics.DropLoopback)
		m.log.Debugw("drop packet that would leave through its ingress port",
			zap.Stringer("device", pkt.Device),
			zap.Uint32("port", outPort),
			zap.Stringer("dst", dst),
		)
		return nil
	}

	actions := []ofp.Action{ofp.Output(outPort)}
	if next == dstNode {
		actions, ok = m.lastHopActions(pkt.Device, dst, outPort)
		if !ok {
			return nil
		}
	}

	m.log.Infow("forward",
		zap.Stringer("device", pkt.Device),
		zap.Uint32("in_port", pkt.InPort),
		zap.Uint32("out_port", outPort),
		zap.Stringer("src", src),
		zap.Stringer("dst", dst),
		zap.Stringer("next", next),
	)

	// The buffered packet is released by the packet-out alone, so the
	// flow-mod must not reference it as well.
	if err := m.installer.Install(pkt.Device, flow.ForwardMatch(pkt.InPort, dst), actions, ofp.NoBuffer); err != nil {
		return err
	}
	return m.installer.PacketOut(pkt.Device, pkt.BufferID, pkt.InPort, actions, pkt.Data)
}

// resolve handles a packet towards an address not yet present in the
// topology.
func (m *Engine) resolve(device topology.DeviceID, dst netip.Addr) error {
	if owner, _, ok := m.cfg.OwnerOf(dst); ok {
		m.metrics.RecordDrop(metrics.DropOwnAddress)
		m.log.Debugw("drop packet towards gateway address",
			zap.Stringer("device", device),
			zap.Stringer("owner", owner),
			zap.Stringer("dst", dst),
		)
		return nil
	}

	owner, iface, ok := m.cfg.SubnetOf(dst)
	if !ok {
		m.metrics.RecordDrop(metrics.DropUnknownDest)
		m.log.Debugw("drop packet towards unknown destination",
			zap.Stringer("device", device),
			zap.Stringer("dst", dst),
		)
		return nil
	}

	m.metrics.RecordDrop(metrics.DropUnresolved)
	m.log.Infow("resolve unknown destination",
		zap.Stringer("device", owner),
		zap.Uint32("port", iface.Port),
		zap.Stringer("dst", dst),
	)
	return m.resolver.Send(owner, layers.ARPRequest, iface.MAC, iface.IP, arp.BroadcastMAC, dst, iface.Port)
}

// lastHopActions returns actions delivering a packet to a host attached to
// the device: the gateway becomes the source and the host the destination of
// the frame.
func (m *Engine) lastHopActions(device topology.DeviceID, dst netip.Addr, outPort uint32) ([]ofp.Action, bool) {
	gateway, ok := m.cfg.GatewayFor(device, dst)
	if !ok {
		m.metrics.RecordDrop(metrics.DropNoGateway)
		m.log.Infow("drop packet: no gateway interface for destination",
			zap.Stringer("device", device),
			zap.Stringer("dst", dst),
		)
		return nil, false
	}

	host, ok := m.hosts.Lookup(discovery.HostKey{Device: device, Addr: dst})
	if !ok {
		m.metrics.RecordDrop(metrics.DropUnresolved)
		m.log.Infow("drop packet: destination MAC is unknown",
			zap.Stringer("device", device),
			zap.Stringer("dst", dst),
		)
		return nil, false
	}

	return []ofp.Action{
		ofp.SetEthSrc(gateway.MAC),
		ofp.SetEthDst(host.MAC),
		ofp.Output(outPort),
	}, true
}

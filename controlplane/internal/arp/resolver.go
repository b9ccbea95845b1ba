package arp

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket/layers"
	"go.uber.org/zap"

	"github.com/yanet-platform/sdnctl/common/go/xpacket"
	"github.com/yanet-platform/sdnctl/controlplane/internal/discovery"
	"github.com/yanet-platform/sdnctl/controlplane/internal/metrics"
	"github.com/yanet-platform/sdnctl/controlplane/internal/netcfg"
	"github.com/yanet-platform/sdnctl/controlplane/internal/ofp"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

var (
	// BroadcastMAC is the Ethernet destination of ARP requests.
	BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	zeroMAC      = net.HardwareAddr{0, 0, 0, 0, 0, 0}
)

// Option is a function that configures the resolver.
type Option func(*options)

// WithLog configures the resolver with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithMetrics configures the resolver with a metrics registry.
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

// Resolver answers ARP requests for gateway addresses configured on devices
// and learns hosts from every ARP frame it sees.
type Resolver struct {
	cfg     *netcfg.Config
	learner *discovery.Learner
	tx      ofp.Transport
	metrics *metrics.Registry
	log     *zap.SugaredLogger
}

// NewResolver creates a new ARP resolver.
func NewResolver(
	cfg *netcfg.Config,
	learner *discovery.Learner,
	tx ofp.Transport,
	options ...Option,
) *Resolver {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &Resolver{
		cfg:     cfg,
		learner: learner,
		tx:      tx,
		metrics: opts.Metrics,
		log:     opts.Log,
	}
}

// Handle processes an ARP frame received on the device port.
//
// Requests for an address owned by the ingress device are answered out of
// the ingress port. Everything else is only learned from.
func (m *Resolver) Handle(
	device topology.DeviceID,
	inPort uint32,
	eth *layers.Ethernet,
	frame *layers.ARP,
) error {
	if !isEthernetIPv4(frame) {
		m.metrics.RecordDrop(metrics.DropUnsupported)
		m.log.Debugw("drop ARP frame with unsupported address types",
			zap.Stringer("device", device),
			zap.Stringer("addr_type", frame.AddrType),
			zap.Stringer("protocol", frame.Protocol),
		)
		return nil
	}

	senderIP, _ := netip.AddrFromSlice(frame.SourceProtAddress)
	targetIP, _ := netip.AddrFromSlice(frame.DstProtAddress)

	switch frame.Operation {
	case layers.ARPRequest:
		m.learner.Observe(device, inPort, senderIP, eth.SrcMAC)

		iface, ok := m.cfg.InterfaceByIP(device, targetIP)
		if !ok {
			m.log.Infow("ignore ARP request for foreign address",
				zap.Stringer("device", device),
				zap.Stringer("target", targetIP),
				zap.Stringer("sender", senderIP),
			)
			return nil
		}

		m.log.Infow("answer ARP request",
			zap.Stringer("device", device),
			zap.Uint32("port", inPort),
			zap.Stringer("target", targetIP),
			zap.Stringer("sender", senderIP),
		)
		return m.Send(device, layers.ARPReply, iface.MAC, targetIP, eth.SrcMAC, senderIP, inPort)
	case layers.ARPReply:
		m.learner.Observe(device, inPort, senderIP, eth.SrcMAC)
		m.log.Debugw("learned host from ARP reply",
			zap.Stringer("device", device),
			zap.Stringer("sender", senderIP),
			zap.Stringer("mac", eth.SrcMAC),
		)
		return nil
	default:
		m.metrics.RecordDrop(metrics.DropUnsupported)
		m.log.Debugw("drop ARP frame with unsupported opcode",
			zap.Stringer("device", device),
			zap.Uint16("opcode", frame.Operation),
		)
		return nil
	}
}

// Send builds an ARP frame and emits it out of the device port.
//
// For requests the Ethernet destination is dstMAC while the ARP target MAC
// is left zero.
func (m *Resolver) Send(
	device topology.DeviceID,
	op uint16,
	srcMAC net.HardwareAddr,
	srcIP netip.Addr,
	dstMAC net.HardwareAddr,
	dstIP netip.Addr,
	outPort uint32,
) error {
	data, err := BuildFrame(op, srcMAC, srcIP, dstMAC, dstIP)
	if err != nil {
		return err
	}

	if err := m.tx.SendRawPacket(device, outPort, data); err != nil {
		m.metrics.RecordTransportError()
		m.log.Warnw("failed to send ARP frame",
			zap.Stringer("device", device),
			zap.Uint32("port", outPort),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send ARP frame: %w", err)
	}

	m.metrics.RecordArpFrame(opName(op))
	return nil
}

// BuildFrame serializes an Ethernet frame carrying an ARP message.
func BuildFrame(
	op uint16,
	srcMAC net.HardwareAddr,
	srcIP netip.Addr,
	dstMAC net.HardwareAddr,
	dstIP netip.Addr,
) ([]byte, error) {
	if !srcIP.Unmap().Is4() || !dstIP.Unmap().Is4() {
		return nil, fmt.Errorf("unsupported ARP addresses %s -> %s: must be IPv4", srcIP, dstIP)
	}

	targetMAC := dstMAC
	if op == layers.ARPRequest {
		targetMAC = zeroMAC
	}

	srcProto := srcIP.Unmap().As4()
	dstProto := dstIP.Unmap().As4()

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	frame := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: srcProto[:],
		DstHwAddress:      targetMAC,
		DstProtAddress:    dstProto[:],
	}

	data, err := xpacket.SerializeLayers(eth, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to build ARP frame: %w", err)
	}
	return data, nil
}

func isEthernetIPv4(frame *layers.ARP) bool {
	return frame.AddrType == layers.LinkTypeEthernet &&
		frame.Protocol == layers.EthernetTypeIPv4 &&
		frame.HwAddressSize == 6 &&
		frame.ProtAddressSize == 4 &&
		len(frame.SourceProtAddress) == 4 &&
		len(frame.DstProtAddress) == 4
}

func opName(op uint16) string {
	switch op {
	case layers.ARPRequest:
		return "request"
	case layers.ARPReply:
		return "reply"
	default:
		return "other"
	}
}

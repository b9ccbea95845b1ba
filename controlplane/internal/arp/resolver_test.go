package arp

import (
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/sdnctl/common/go/xerror"
	"github.com/yanet-platform/sdnctl/common/go/xpacket"
	"github.com/yanet-platform/sdnctl/common/go/xpacket/xpackettest"
	"github.com/yanet-platform/sdnctl/controlplane/internal/discovery"
	"github.com/yanet-platform/sdnctl/controlplane/internal/netcfg"
	"github.com/yanet-platform/sdnctl/controlplane/internal/ofp/ofptest"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

const testConfig = `{"bridges": [{"datapath_id": 1, "networks": [
  {"mac_address": "aa:aa:aa:aa:aa:01", "ip_address": "192.168.10.1", "ip_network": "192.168.10.0/24", "port": 1},
  {"mac_address": "aa:aa:aa:aa:aa:02", "ip_address": "192.168.20.1", "ip_network": "192.168.20.0/24", "port": 2}
]}]}`

var (
	gatewayMAC = xerror.Unwrap(net.ParseMAC("aa:aa:aa:aa:aa:01"))
	hostMAC    = xerror.Unwrap(net.ParseMAC("00:00:00:00:00:01"))
	hostIP     = netip.MustParseAddr("192.168.10.10")
)

type testSetup struct {
	resolver *Resolver
	tx       *ofptest.Recorder
	graph    *topology.Graph
	hosts    *discovery.HostDirectory
}

func newTestSetup(t *testing.T) *testSetup {
	cfg, err := netcfg.Parse([]byte(testConfig))
	require.NoError(t, err)

	graph := topology.NewGraph()
	graph.Rebuild([]topology.DeviceID{1}, nil)
	hosts := discovery.NewHostDirectory()
	tx := ofptest.NewRecorder()

	return &testSetup{
		resolver: NewResolver(cfg, discovery.NewLearner(graph, hosts), tx),
		tx:       tx,
		graph:    graph,
		hosts:    hosts,
	}
}

func arpLayers(t *testing.T, op uint16, srcMAC net.HardwareAddr, srcIP string, dstIP string) (*layers.Ethernet, *layers.ARP) {
	t.Helper()

	src := netip.MustParseAddr(srcIP).As4()
	dst := netip.MustParseAddr(dstIP).As4()
	pkt := xpackettest.LayersToPacket(t,
		&layers.Ethernet{
			SrcMAC:       srcMAC,
			DstMAC:       BroadcastMAC,
			EthernetType: layers.EthernetTypeARP,
		},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         op,
			SourceHwAddress:   srcMAC,
			SourceProtAddress: src[:],
			DstHwAddress:      zeroMAC,
			DstProtAddress:    dst[:],
		},
	)

	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	frame, ok := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
	require.True(t, ok)
	return eth, frame
}

func decodeFrame(t *testing.T, data []byte) (*layers.Ethernet, *layers.ARP) {
	t.Helper()

	pkt := xpacket.ParseEtherPacket(data)
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	frame, ok := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
	require.True(t, ok)
	return eth, frame
}

func TestHandle_RequestForGateway(t *testing.T) {
	setup := newTestSetup(t)
	eth, frame := arpLayers(t, layers.ARPRequest, hostMAC, "192.168.10.10", "192.168.10.1")

	require.NoError(t, setup.resolver.Handle(1, 1, eth, frame))

	packets := setup.tx.RawPackets()
	require.Len(t, packets, 1)
	require.Equal(t, topology.DeviceID(1), packets[0].Device)
	require.Equal(t, uint32(1), packets[0].Port)

	replyEth, reply := decodeFrame(t, packets[0].Data)
	require.Equal(t, gatewayMAC, replyEth.SrcMAC)
	require.Equal(t, hostMAC, replyEth.DstMAC)

	expected := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   []byte(gatewayMAC),
		SourceProtAddress: []byte{192, 168, 10, 1},
		DstHwAddress:      []byte(hostMAC),
		DstProtAddress:    []byte{192, 168, 10, 10},
	}
	diff := cmp.Diff(expected, reply, cmpopts.IgnoreFields(layers.ARP{}, "BaseLayer"))
	require.Empty(t, diff)

	// The requester is learned.
	entry, ok := setup.hosts.Lookup(discovery.HostKey{Device: 1, Addr: hostIP})
	require.True(t, ok)
	require.Equal(t, hostMAC, entry.MAC)
	port, ok := setup.graph.Port(topology.DeviceNode(1), topology.HostNode(hostIP))
	require.True(t, ok)
	require.Equal(t, uint32(1), port)
}

func TestHandle_RequestForForeignAddress(t *testing.T) {
	setup := newTestSetup(t)

	for _, target := range []string{"192.168.10.20", "192.168.30.1", "10.0.0.1"} {
		eth, frame := arpLayers(t, layers.ARPRequest, hostMAC, "192.168.10.10", target)
		require.NoError(t, setup.resolver.Handle(1, 1, eth, frame))
	}

	require.Empty(t, setup.tx.RawPackets())
	require.Equal(t, 1, setup.hosts.Len())
}

func TestHandle_RequestOnOtherDevice(t *testing.T) {
	setup := newTestSetup(t)
	eth, frame := arpLayers(t, layers.ARPRequest, hostMAC, "192.168.10.10", "192.168.10.1")

	// Device 2 owns no addresses.
	require.NoError(t, setup.resolver.Handle(2, 1, eth, frame))
	require.Empty(t, setup.tx.RawPackets())
}

func TestHandle_Reply(t *testing.T) {
	setup := newTestSetup(t)
	eth, frame := arpLayers(t, layers.ARPReply, hostMAC, "192.168.10.10", "192.168.10.1")

	require.NoError(t, setup.resolver.Handle(1, 1, eth, frame))

	require.Empty(t, setup.tx.RawPackets())
	_, ok := setup.hosts.Lookup(discovery.HostKey{Device: 1, Addr: hostIP})
	require.True(t, ok)
}

func TestHandle_Unsupported(t *testing.T) {
	setup := newTestSetup(t)

	eth, frame := arpLayers(t, 3, hostMAC, "192.168.10.10", "192.168.10.1")
	require.NoError(t, setup.resolver.Handle(1, 1, eth, frame))

	eth, frame = arpLayers(t, layers.ARPRequest, hostMAC, "192.168.10.10", "192.168.10.1")
	frame.Protocol = layers.EthernetTypeIPv6
	require.NoError(t, setup.resolver.Handle(1, 1, eth, frame))

	require.Empty(t, setup.tx.RawPackets())
	require.Zero(t, setup.hosts.Len())
}

func TestSend_Request(t *testing.T) {
	setup := newTestSetup(t)

	err := setup.resolver.Send(1, layers.ARPRequest,
		gatewayMAC, netip.MustParseAddr("192.168.10.1"),
		BroadcastMAC, netip.MustParseAddr("192.168.10.10"),
		1,
	)
	require.NoError(t, err)

	packets := setup.tx.RawPackets()
	require.Len(t, packets, 1)

	eth, frame := decodeFrame(t, packets[0].Data)
	require.Equal(t, BroadcastMAC, eth.DstMAC)
	require.Equal(t, layers.EthernetTypeARP, eth.EthernetType)
	require.Equal(t, uint16(layers.ARPRequest), frame.Operation)
	require.Equal(t, []byte(zeroMAC), frame.DstHwAddress)
	require.Equal(t, []byte{192, 168, 10, 10}, frame.DstProtAddress)
}

func TestSend_TransportFailure(t *testing.T) {
	setup := newTestSetup(t)
	setup.tx.Err = errors.New("not attached")

	err := setup.resolver.Send(1, layers.ARPReply,
		gatewayMAC, netip.MustParseAddr("192.168.10.1"),
		hostMAC, hostIP,
		1,
	)
	require.ErrorIs(t, err, setup.tx.Err)
}

func TestBuildFrame_RejectsIPv6(t *testing.T) {
	_, err := BuildFrame(layers.ARPRequest,
		gatewayMAC, netip.MustParseAddr("fe80::1"),
		BroadcastMAC, hostIP,
	)
	require.Error(t, err)
}

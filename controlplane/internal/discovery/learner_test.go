package discovery

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/sdnctl/common/go/xerror"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func newTestLearner() (*Learner, *topology.Graph, *HostDirectory) {
	graph := topology.NewGraph()
	graph.Rebuild([]topology.DeviceID{1, 2}, []topology.Link{
		{Src: 1, SrcPort: 2, Dst: 2, DstPort: 2},
	})
	hosts := NewHostDirectory()
	learner := NewLearner(graph, hosts, WithClock(fixedClock(time.Unix(1700000000, 0))))
	return learner, graph, hosts
}

func TestObserve_Idempotent(t *testing.T) {
	learner, graph, hosts := newTestLearner()
	addr := netip.MustParseAddr("10.0.1.10")
	mac := xerror.Unwrap(net.ParseMAC("00:00:00:00:01:10"))

	learner.Observe(1, 1, addr, mac)
	edges := graph.Edges()
	view := hosts.View()
	entry, ok := view.Lookup(HostKey{Device: 1, Addr: addr})
	require.True(t, ok)

	learner.Observe(1, 1, addr, mac)
	require.Equal(t, edges, graph.Edges())
	require.Equal(t, 1, hosts.Len())

	again, ok := hosts.Lookup(HostKey{Device: 1, Addr: addr})
	require.True(t, ok)
	require.Equal(t, entry, again)
	require.Equal(t, uint32(1), again.Port)
	require.Equal(t, mac, again.MAC)
}

func TestObserve_Relearn(t *testing.T) {
	learner, graph, hosts := newTestLearner()
	addr := netip.MustParseAddr("10.0.1.10")

	learner.Observe(1, 1, addr, xerror.Unwrap(net.ParseMAC("00:00:00:00:01:10")))
	learner.Observe(1, 1, addr, xerror.Unwrap(net.ParseMAC("00:00:00:00:01:11")))

	entry, ok := hosts.Lookup(HostKey{Device: 1, Addr: addr})
	require.True(t, ok)
	require.Equal(t, "00:00:00:00:01:11", entry.MAC.String())
	require.Equal(t, []netip.Addr{addr}, graph.Hosts())
}

func TestObserve_DirectoryIsPerDevice(t *testing.T) {
	learner, graph, hosts := newTestLearner()
	addr := netip.MustParseAddr("10.0.1.10")
	mac := xerror.Unwrap(net.ParseMAC("00:00:00:00:01:10"))

	learner.Observe(1, 1, addr, mac)
	// The same host seen in transit on device 2 is recorded in the directory,
	// while the graph keeps the first attachment.
	learner.Observe(2, 2, addr, mac)

	require.Equal(t, 2, hosts.Len())
	port, ok := graph.Port(topology.DeviceNode(1), topology.HostNode(addr))
	require.True(t, ok)
	require.Equal(t, uint32(1), port)
	_, ok = graph.Port(topology.DeviceNode(2), topology.HostNode(addr))
	require.False(t, ok)
}

func TestObserve_UnknownDevice(t *testing.T) {
	learner, graph, hosts := newTestLearner()
	addr := netip.MustParseAddr("10.0.9.10")

	learner.Observe(9, 1, addr, xerror.Unwrap(net.ParseMAC("00:00:00:00:09:10")))

	require.False(t, graph.HasNode(topology.HostNode(addr)))
	_, ok := hosts.Lookup(HostKey{Device: 9, Addr: addr})
	require.True(t, ok)
}

func TestCacheView_IsSnapshot(t *testing.T) {
	cache := NewEmptyCache[int, string]()
	cache.Store(1, "one")

	view := cache.View()
	cache.Store(2, "two")
	cache.Clear()

	v, ok := view.Lookup(1)
	require.True(t, ok)
	require.Equal(t, "one", v)
	_, size := view.Entries()
	require.Equal(t, 1, size)
	require.Equal(t, 0, cache.Len())
}

package topology

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linear builds s1 -(2:2)- s2 -(3:2)- s3.
func linear() *Graph {
	g := NewGraph()
	g.Rebuild(
		[]DeviceID{1, 2, 3},
		[]Link{
			{Src: 1, SrcPort: 2, Dst: 2, DstPort: 2},
			{Src: 2, SrcPort: 3, Dst: 3, DstPort: 2},
		},
	)
	return g
}

func TestRebuild_SymmetricEdges(t *testing.T) {
	g := linear()

	require.Equal(t, []DeviceID{1, 2, 3}, g.Devices())

	for _, tc := range []struct {
		from, to DeviceID
		port     uint32
	}{
		{1, 2, 2},
		{2, 1, 2},
		{2, 3, 3},
		{3, 2, 2},
	} {
		port, ok := g.Port(DeviceNode(tc.from), DeviceNode(tc.to))
		require.True(t, ok, "%d -> %d", tc.from, tc.to)
		assert.Equal(t, tc.port, port, "%d -> %d", tc.from, tc.to)
	}
	assert.Len(t, g.Edges(), 4)
}

func TestRebuild_Idempotent(t *testing.T) {
	g := linear()
	before := g.Edges()

	g.Rebuild(
		[]DeviceID{1, 2, 3},
		[]Link{
			{Src: 1, SrcPort: 2, Dst: 2, DstPort: 2},
			{Src: 2, SrcPort: 3, Dst: 3, DstPort: 2},
		},
	)
	require.Equal(t, before, g.Edges())
}

func TestRebuild_ExactDeviceSet(t *testing.T) {
	g := linear()

	g.Rebuild([]DeviceID{1, 2}, []Link{
		{Src: 1, SrcPort: 2, Dst: 2, DstPort: 2},
		// References a device that is not part of the set.
		{Src: 2, SrcPort: 3, Dst: 3, DstPort: 2},
	})

	require.Equal(t, []DeviceID{1, 2}, g.Devices())
	require.False(t, g.HasNode(DeviceNode(3)))
	require.Len(t, g.Edges(), 2)
}

func TestRebuild_KeepsAttachedHosts(t *testing.T) {
	g := linear()
	h1 := netip.MustParseAddr("10.0.1.10")
	h3 := netip.MustParseAddr("10.0.3.10")
	require.True(t, g.AddHost(1, 1, h1))
	require.True(t, g.AddHost(3, 1, h3))

	g.Rebuild([]DeviceID{1, 2}, []Link{{Src: 1, SrcPort: 2, Dst: 2, DstPort: 2}})

	require.True(t, g.HasNode(HostNode(h1)))
	require.False(t, g.HasNode(HostNode(h3)))
	port, ok := g.Port(DeviceNode(1), HostNode(h1))
	require.True(t, ok)
	require.Equal(t, uint32(1), port)
}

func TestAddHost_Idempotent(t *testing.T) {
	g := linear()
	addr := netip.MustParseAddr("10.0.1.10")

	require.True(t, g.AddHost(1, 1, addr))
	edges := g.Edges()
	hosts := g.Hosts()

	require.False(t, g.AddHost(1, 1, addr))
	require.Equal(t, edges, g.Edges())
	require.Equal(t, hosts, g.Hosts())

	port, ok := g.Port(DeviceNode(1), HostNode(addr))
	require.True(t, ok)
	require.Equal(t, uint32(1), port)
	_, ok = g.Port(HostNode(addr), DeviceNode(1))
	require.True(t, ok)
}

func TestAddHost_Rejected(t *testing.T) {
	g := linear()

	// Unknown device.
	require.False(t, g.AddHost(42, 1, netip.MustParseAddr("10.0.0.1")))
	// Port already used by an inter-switch link.
	require.False(t, g.AddHost(1, 2, netip.MustParseAddr("10.0.0.2")))
	require.Empty(t, g.Hosts())
}

func TestShortestPath(t *testing.T) {
	g := linear()
	h3 := netip.MustParseAddr("10.0.3.10")
	require.True(t, g.AddHost(3, 1, h3))

	path, err := g.ShortestPath(DeviceNode(1), HostNode(h3))
	require.NoError(t, err)
	require.Equal(t, []Node{DeviceNode(1), DeviceNode(2), DeviceNode(3), HostNode(h3)}, path)

	path, err = g.ShortestPath(DeviceNode(2), DeviceNode(2))
	require.NoError(t, err)
	require.Equal(t, []Node{DeviceNode(2)}, path)
}

func TestShortestPath_NoRoute(t *testing.T) {
	g := NewGraph()
	g.Rebuild([]DeviceID{1, 2}, nil)

	_, err := g.ShortestPath(DeviceNode(1), DeviceNode(2))
	require.True(t, errors.Is(err, ErrNoRoute))

	_, err = g.ShortestPath(DeviceNode(1), HostNode(netip.MustParseAddr("10.0.0.1")))
	require.ErrorIs(t, err, ErrNoRoute)
}

func TestRemoveRestoreEdge(t *testing.T) {
	g := linear()

	edge, ok := g.RemoveEdge(2, 3)
	require.True(t, ok)
	require.Equal(t, Edge{From: DeviceNode(2), To: DeviceNode(3), Port: 3}, edge)
	_, ok = g.Port(DeviceNode(2), DeviceNode(3))
	require.False(t, ok)
	require.Equal(t, []Edge{edge}, g.Offline())

	_, err := g.ShortestPath(DeviceNode(1), DeviceNode(3))
	require.ErrorIs(t, err, ErrNoRoute)

	// Removing an edge that is already offline is a no-op.
	_, ok = g.RemoveEdge(2, 3)
	require.False(t, ok)
	require.Len(t, g.Offline(), 1)

	// Restoring with a different port is a no-op.
	_, ok = g.RestoreEdge(2, 2)
	require.False(t, ok)
	require.Len(t, g.Offline(), 1)

	restored, ok := g.RestoreEdge(2, 3)
	require.True(t, ok)
	require.Equal(t, edge, restored)
	require.Empty(t, g.Offline())

	port, ok := g.Port(DeviceNode(2), DeviceNode(3))
	require.True(t, ok)
	require.Equal(t, uint32(3), port)

	// Nothing is recorded anymore.
	_, ok = g.RestoreEdge(2, 3)
	require.False(t, ok)
}

func TestRemoveEdge_UnknownPort(t *testing.T) {
	g := linear()

	_, ok := g.RemoveEdge(1, 7)
	require.False(t, ok)
	require.Empty(t, g.Offline())
}

func TestClearOffline(t *testing.T) {
	g := linear()
	_, ok := g.RemoveEdge(1, 2)
	require.True(t, ok)

	g.ClearOffline()
	require.Empty(t, g.Offline())

	_, ok = g.RestoreEdge(1, 2)
	require.False(t, ok)
}

func TestNodeString(t *testing.T) {
	assert.Equal(t, "dp:7", DeviceNode(7).String())
	assert.Equal(t, "10.0.0.1", HostNode(netip.MustParseAddr("10.0.0.1")).String())
	assert.Equal(t, "dp:1 -> dp:2 (port 3)", Edge{From: DeviceNode(1), To: DeviceNode(2), Port: 3}.String())
}

package topology

import (
	"cmp"
	"errors"
	"fmt"
	"net/netip"
	"slices"
)

// ErrNoRoute is returned when two nodes are disconnected.
var ErrNoRoute = errors.New("no route found")

type portKey struct {
	device DeviceID
	port   uint32
}

// Graph is a directed graph over device and host nodes.
//
// Adjacency lists keep insertion order, so path computation is
// deterministic for the same sequence of mutations.
//
// Graph is not safe for concurrent use: it is owned by the controller event
// loop.
type Graph struct {
	nodes map[Node]struct{}
	order []Node
	adj   map[Node][]Edge
	// offline holds edges removed because of a port-down event, keyed by
	// the egress (device, port).
	offline map[portKey]Edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   map[Node]struct{}{},
		adj:     map[Node][]Edge{},
		offline: map[portKey]Edge{},
	}
}

// Rebuild replaces the device-level subgraph with the given devices and
// links, inserting both directions for every link.
//
// Hosts attached to a device that is still present keep their attachment
// edges, other hosts are dropped. Links referencing devices outside of the
// given set are ignored. The offline edge record is left untouched.
func (m *Graph) Rebuild(devices []DeviceID, links []Link) {
	attachments := m.hostAttachments()

	m.nodes = map[Node]struct{}{}
	m.order = m.order[:0]
	m.adj = map[Node][]Edge{}

	for _, id := range devices {
		m.addNode(DeviceNode(id))
	}

	for _, link := range links {
		src, dst := DeviceNode(link.Src), DeviceNode(link.Dst)
		if !m.HasNode(src) || !m.HasNode(dst) {
			continue
		}
		m.setEdge(Edge{From: src, To: dst, Port: link.SrcPort})
		m.setEdge(Edge{From: dst, To: src, Port: link.DstPort})
	}

	for _, edge := range attachments {
		m.AddHost(edge.From.Device, edge.Port, edge.To.Host)
	}
}

// AddHost attaches a host to the device behind the given port.
//
// Returns true if the host was added. An already known host, an unknown
// device or a port that already carries a live edge leaves the graph
// unchanged.
func (m *Graph) AddHost(device DeviceID, port uint32, addr netip.Addr) bool {
	host := HostNode(addr)
	dev := DeviceNode(device)

	if m.HasNode(host) || !m.HasNode(dev) {
		return false
	}
	if _, ok := m.edgeByPort(device, port); ok {
		return false
	}

	m.addNode(host)
	m.setEdge(Edge{From: dev, To: host, Port: port})
	m.setEdge(Edge{From: host, To: dev})
	return true
}

// RemoveEdge removes the live edge leaving the device through the given port
// and records it offline.
//
// Returns the removed edge, or false if there is no such live edge or it is
// already offline.
func (m *Graph) RemoveEdge(device DeviceID, port uint32) (Edge, bool) {
	key := portKey{device: device, port: port}
	if _, ok := m.offline[key]; ok {
		return Edge{}, false
	}

	edge, ok := m.edgeByPort(device, port)
	if !ok {
		return Edge{}, false
	}

	m.deleteEdge(edge.From, edge.To)
	m.offline[key] = edge
	return edge, true
}

// RestoreEdge re-inserts the edge previously recorded offline for exactly
// the given device and port, and clears the record.
//
// Returns false if nothing was recorded. The record is also dropped when
// the edge cannot be restored because one of its endpoints is gone.
func (m *Graph) RestoreEdge(device DeviceID, port uint32) (Edge, bool) {
	key := portKey{device: device, port: port}
	edge, ok := m.offline[key]
	if !ok {
		return Edge{}, false
	}
	delete(m.offline, key)

	if !m.HasNode(edge.From) || !m.HasNode(edge.To) {
		return Edge{}, false
	}
	if _, ok := m.edgeByPort(device, port); ok {
		return Edge{}, false
	}

	m.setEdge(edge)
	return edge, true
}

// ClearOffline forgets every offline edge.
func (m *Graph) ClearOffline() {
	clear(m.offline)
}

// Offline returns edges recorded offline, ordered by device and port.
func (m *Graph) Offline() []Edge {
	keys := make([]portKey, 0, len(m.offline))
	for key := range m.offline {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b portKey) int {
		if c := cmp.Compare(a.device, b.device); c != 0 {
			return c
		}
		return cmp.Compare(a.port, b.port)
	})

	edges := make([]Edge, 0, len(keys))
	for _, key := range keys {
		edges = append(edges, m.offline[key])
	}
	return edges
}

// ShortestPath returns the unweighted shortest path from src to dst,
// both ends included.
func (m *Graph) ShortestPath(src Node, dst Node) ([]Node, error) {
	if !m.HasNode(src) || !m.HasNode(dst) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, src, dst)
	}
	if src == dst {
		return []Node{src}, nil
	}

	prev := map[Node]Node{src: src}
	queue := []Node{src}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, edge := range m.adj[node] {
			if _, seen := prev[edge.To]; seen {
				continue
			}
			prev[edge.To] = node
			if edge.To == dst {
				return buildPath(prev, src, dst), nil
			}
			queue = append(queue, edge.To)
		}
	}

	return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, src, dst)
}

func buildPath(prev map[Node]Node, src Node, dst Node) []Node {
	path := []Node{dst}
	for node := dst; node != src; {
		node = prev[node]
		path = append(path, node)
	}
	slices.Reverse(path)
	return path
}

// HasNode reports whether the node is present.
func (m *Graph) HasNode(node Node) bool {
	_, ok := m.nodes[node]
	return ok
}

// Port returns the egress port of the edge from -> to.
func (m *Graph) Port(from Node, to Node) (uint32, bool) {
	for _, edge := range m.adj[from] {
		if edge.To == to {
			return edge.Port, true
		}
	}
	return 0, false
}

// Devices returns device nodes in insertion order.
func (m *Graph) Devices() []DeviceID {
	out := make([]DeviceID, 0, len(m.order))
	for _, node := range m.order {
		if node.IsDevice() {
			out = append(out, node.Device)
		}
	}
	return out
}

// Hosts returns host nodes in insertion order.
func (m *Graph) Hosts() []netip.Addr {
	out := make([]netip.Addr, 0, len(m.order))
	for _, node := range m.order {
		if node.IsHost() {
			out = append(out, node.Host)
		}
	}
	return out
}

// Edges returns all live edges grouped by source node in insertion order.
func (m *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(m.order))
	for _, node := range m.order {
		out = append(out, m.adj[node]...)
	}
	return out
}

// Len returns the number of nodes.
func (m *Graph) Len() int {
	return len(m.order)
}

func (m *Graph) addNode(node Node) {
	if m.HasNode(node) {
		return
	}
	m.nodes[node] = struct{}{}
	m.order = append(m.order, node)
}

// setEdge inserts or updates the edge from -> to. For device sources it also
// evicts any other edge using the same egress port.
func (m *Graph) setEdge(edge Edge) {
	edges := m.adj[edge.From]
	if edge.From.IsDevice() {
		edges = slices.DeleteFunc(edges, func(e Edge) bool {
			return e.Port == edge.Port && e.To != edge.To
		})
	}

	for idx := range edges {
		if edges[idx].To == edge.To {
			edges[idx].Port = edge.Port
			m.adj[edge.From] = edges
			return
		}
	}
	m.adj[edge.From] = append(edges, edge)
}

func (m *Graph) deleteEdge(from Node, to Node) {
	m.adj[from] = slices.DeleteFunc(m.adj[from], func(e Edge) bool {
		return e.To == to
	})
}

func (m *Graph) edgeByPort(device DeviceID, port uint32) (Edge, bool) {
	for _, edge := range m.adj[DeviceNode(device)] {
		if edge.Port == port {
			return edge, true
		}
	}
	return Edge{}, false
}

// hostAttachments returns device -> host edges of all known hosts.
func (m *Graph) hostAttachments() []Edge {
	var out []Edge
	for _, node := range m.order {
		if !node.IsDevice() {
			continue
		}
		for _, edge := range m.adj[node] {
			if edge.To.IsHost() {
				out = append(out, edge)
			}
		}
	}
	return out
}

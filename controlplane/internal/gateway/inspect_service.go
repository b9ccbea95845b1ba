package gateway

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/gobwas/glob"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yanet-platform/sdnctl/controlplane/internal/controller"
	"github.com/yanet-platform/sdnctl/controlplane/internal/discovery"
	"github.com/yanet-platform/sdnctl/controlplane/internal/flow"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
)

// StateInspector runs callbacks against a consistent controller state.
type StateInspector interface {
	Inspect(ctx context.Context, fn func(controller.View)) error
}

// InspectService exposes the controller state: the topology graph, learned
// hosts and installed forwarding rules.
type InspectService struct {
	inspector StateInspector
}

func NewInspectService(inspector StateInspector) *InspectService {
	return &InspectService{
		inspector: inspector,
	}
}

func (m *InspectService) ShowTopology(
	ctx context.Context,
	request *emptypb.Empty,
) (*structpb.Struct, error) {
	var out map[string]any
	err := m.inspect(ctx, func(view controller.View) {
		out = map[string]any{
			"switches": deviceList(view.Switches),
			"devices":  deviceList(view.Graph.Devices()),
			"hosts":    hostList(view.Graph),
			"edges":    edgeList(view.Graph.Edges()),
			"offline":  edgeList(view.Graph.Offline()),
		}
	})
	if err != nil {
		return nil, err
	}

	return newStruct(out)
}

// ListHosts returns learned hosts whose address matches the glob pattern in
// the request. An empty pattern matches every host.
func (m *InspectService) ListHosts(
	ctx context.Context,
	request *wrapperspb.StringValue,
) (*structpb.Struct, error) {
	pattern := request.GetValue()
	if pattern == "" {
		pattern = "*"
	}
	filter, err := glob.Compile(pattern)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid host pattern %q: %v", pattern, err)
	}

	var entries []discovery.HostEntry
	err = m.inspect(ctx, func(view controller.View) {
		values, _ := view.Hosts.Entries()
		for entry := range values {
			if filter.Match(entry.Addr.String()) {
				entries = append(entries, entry)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(entries, func(a, b discovery.HostEntry) int {
		return cmp.Or(cmp.Compare(a.Device, b.Device), a.Addr.Compare(b.Addr))
	})

	hosts := make([]any, len(entries))
	for idx, entry := range entries {
		hosts[idx] = map[string]any{
			"device":     entry.Device.String(),
			"addr":       entry.Addr.String(),
			"mac":        entry.MAC.String(),
			"port":       entry.Port,
			"updated_at": entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}
	}

	return newStruct(map[string]any{"hosts": hosts})
}

func (m *InspectService) ListFlows(
	ctx context.Context,
	request *emptypb.Empty,
) (*structpb.Struct, error) {
	var entries []flow.Entry
	err := m.inspect(ctx, func(view controller.View) {
		values, size := view.Flows.Entries()
		entries = make([]flow.Entry, 0, size)
		for entry := range values {
			entries = append(entries, entry)
		}
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(entries, func(a, b flow.Entry) int {
		return cmp.Or(cmp.Compare(a.Device, b.Device), a.Dst.Compare(b.Dst))
	})

	flows := make([]any, len(entries))
	for idx, entry := range entries {
		flows[idx] = map[string]any{
			"device":       entry.Device.String(),
			"dst":          entry.Dst.String(),
			"in_port":      entry.InPort,
			"out_port":     entry.OutPort,
			"installed_at": entry.InstalledAt.UTC().Format(time.RFC3339Nano),
		}
	}

	return newStruct(map[string]any{"flows": flows})
}

func (m *InspectService) inspect(ctx context.Context, fn func(controller.View)) error {
	if err := m.inspector.Inspect(ctx, fn); err != nil {
		return status.FromContextError(err).Err()
	}
	return nil
}

func newStruct(v map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func deviceList(devices []topology.DeviceID) []any {
	out := make([]any, len(devices))
	for idx, device := range devices {
		out[idx] = device.String()
	}
	return out
}

func hostList(graph *topology.Graph) []any {
	hosts := graph.Hosts()

	out := make([]any, len(hosts))
	for idx, host := range hosts {
		out[idx] = host.String()
	}
	return out
}

func edgeList(edges []topology.Edge) []any {
	out := make([]any, len(edges))
	for idx, edge := range edges {
		out[idx] = map[string]any{
			"from": edge.From.String(),
			"to":   edge.To.String(),
			"port": edge.Port,
		}
	}
	return out
}

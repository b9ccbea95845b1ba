package gateway

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yanet-platform/sdnctl/common/go/xerror"
	"github.com/yanet-platform/sdnctl/controlplane/internal/controller"
	"github.com/yanet-platform/sdnctl/controlplane/internal/discovery"
	"github.com/yanet-platform/sdnctl/controlplane/internal/flow"
	"github.com/yanet-platform/sdnctl/controlplane/internal/topology"
	"github.com/yanet-platform/sdnctl/controlplane/sdnpb"
)

const testTimeout = 10 * time.Second

var (
	h1 = netip.MustParseAddr("10.0.1.10")
	h2 = netip.MustParseAddr("10.0.2.10")
)

type stateInspector struct {
	view controller.View
	err  error
}

func (m *stateInspector) Inspect(ctx context.Context, fn func(controller.View)) error {
	if m.err != nil {
		return m.err
	}
	fn(m.view)
	return nil
}

type southboundStub struct{}

func (southboundStub) Attach(grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error {
	return status.Error(codes.Unimplemented, "not attached")
}

func newTestView() controller.View {
	graph := topology.NewGraph()
	graph.Rebuild([]topology.DeviceID{1, 2}, []topology.Link{
		{Src: 1, SrcPort: 2, Dst: 2, DstPort: 2},
	})
	graph.AddHost(1, 1, h1)
	graph.RemoveEdge(2, 2)

	hosts := discovery.NewHostDirectory()
	hosts.Store(discovery.HostKey{Device: 2, Addr: h2}, discovery.HostEntry{
		Device:    2,
		Addr:      h2,
		MAC:       xerror.Unwrap(net.ParseMAC("00:00:00:00:02:10")),
		Port:      1,
		UpdatedAt: time.Unix(1700000000, 0),
	})
	hosts.Store(discovery.HostKey{Device: 1, Addr: h1}, discovery.HostEntry{
		Device:    1,
		Addr:      h1,
		MAC:       xerror.Unwrap(net.ParseMAC("00:00:00:00:01:10")),
		Port:      1,
		UpdatedAt: time.Unix(1700000000, 0),
	})

	flows := flow.NewCache()
	flows.Store(flow.Key{Device: 1, Dst: h1}, flow.Entry{
		Device:      1,
		Dst:         h1,
		InPort:      2,
		OutPort:     1,
		InstalledAt: time.Unix(1700000000, 0),
	})

	return controller.View{
		Graph:    graph,
		Hosts:    hosts.View(),
		Flows:    flows.View(),
		Switches: []topology.DeviceID{1},
	}
}

type testGateway struct {
	gateway *Gateway
	conn    *grpc.ClientConn
	level   zap.AtomicLevel
}

func startGateway(t *testing.T, inspector StateInspector) *testGateway {
	t.Helper()

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	gw := NewGateway(DefaultConfig(), southboundStub{}, inspector, WithAtomicLogLevel(&level))

	listener := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return gw.Serve(ctx, listener)
	})
	t.Cleanup(func() {
		cancel()
		require.NoError(t, wg.Wait())
	})

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testGateway{gateway: gw, conn: conn, level: level}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func TestInspect_ShowTopology(t *testing.T) {
	gw := startGateway(t, &stateInspector{view: newTestView()})
	client := sdnpb.NewInspectServiceClient(gw.conn)

	resp, err := client.ShowTopology(testContext(t), &emptypb.Empty{})
	require.NoError(t, err)

	topo := resp.AsMap()
	assert.Equal(t, []any{"1"}, topo["switches"])
	assert.Equal(t, []any{"1", "2"}, topo["devices"])
	assert.Equal(t, []any{"10.0.1.10"}, topo["hosts"])

	edges := topo["edges"].([]any)
	require.Len(t, edges, 3)
	assert.Equal(t, map[string]any{"from": "dp:1", "to": "dp:2", "port": 2.0}, edges[0])

	assert.Equal(t, []any{
		map[string]any{"from": "dp:2", "to": "dp:1", "port": 2.0},
	}, topo["offline"])
}

func TestInspect_ListHosts(t *testing.T) {
	gw := startGateway(t, &stateInspector{view: newTestView()})
	client := sdnpb.NewInspectServiceClient(gw.conn)

	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{name: "all", pattern: "", want: []string{"10.0.1.10", "10.0.2.10"}},
		{name: "filtered", pattern: "10.0.2.*", want: []string{"10.0.2.10"}},
		{name: "none", pattern: "192.168.*", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.ListHosts(testContext(t), wrapperspb.String(tt.pattern))
			require.NoError(t, err)

			var addrs []string
			for _, host := range resp.AsMap()["hosts"].([]any) {
				addrs = append(addrs, host.(map[string]any)["addr"].(string))
			}
			assert.Equal(t, tt.want, addrs)
		})
	}

	_, err := client.ListHosts(testContext(t), wrapperspb.String("[10"))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestInspect_ListFlows(t *testing.T) {
	gw := startGateway(t, &stateInspector{view: newTestView()})
	client := sdnpb.NewInspectServiceClient(gw.conn)

	resp, err := client.ListFlows(testContext(t), &emptypb.Empty{})
	require.NoError(t, err)

	assert.Equal(t, []any{
		map[string]any{
			"device":       "1",
			"dst":          "10.0.1.10",
			"in_port":      2.0,
			"out_port":     1.0,
			"installed_at": "2023-11-14T22:13:20Z",
		},
	}, resp.AsMap()["flows"])
}

func TestInspect_Unavailable(t *testing.T) {
	gw := startGateway(t, &stateInspector{err: context.DeadlineExceeded})
	client := sdnpb.NewInspectServiceClient(gw.conn)

	_, err := client.ShowTopology(testContext(t), &emptypb.Empty{})
	require.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestLogging_UpdateLevel(t *testing.T) {
	gw := startGateway(t, &stateInspector{})
	client := sdnpb.NewLoggingClient(gw.conn)

	_, err := client.UpdateLevel(testContext(t), wrapperspb.String("debug"))
	require.NoError(t, err)
	require.Equal(t, zap.DebugLevel, gw.level.Level())

	_, err = client.UpdateLevel(testContext(t), wrapperspb.String("trace"))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	require.Equal(t, zap.DebugLevel, gw.level.Level())
}

type echoServer interface {
	Echo(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

type echo struct{}

func (echo) Echo(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("echo: " + in.GetValue()), nil
}

var echoServiceDesc = grpc.ServiceDesc{
	ServiceName: "sdntest.Echo",
	HandlerType: (*echoServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Echo",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(wrapperspb.StringValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(echoServer).Echo(ctx, in)
			},
		},
	},
}

func startEchoBackend(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	server.RegisterService(&echoServiceDesc, echo{})
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	return listener.Addr().String()
}

func TestGateway_ProxiesRegisteredBackend(t *testing.T) {
	gw := startGateway(t, &stateInspector{})
	endpoint := startEchoBackend(t)
	ctx := testContext(t)

	out := new(wrapperspb.StringValue)
	err := gw.conn.Invoke(ctx, "/sdntest.Echo/Echo", wrapperspb.String("ping"), out)
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = sdnpb.NewGatewayClient(gw.conn).Register(ctx, sdnpb.NewRegisterRequest("sdntest.Echo", endpoint))
	require.NoError(t, err)
	require.Equal(t, []string{"sdntest.Echo"}, gw.gateway.Registry().Services())

	err = gw.conn.Invoke(ctx, "/sdntest.Echo/Echo", wrapperspb.String("ping"), out)
	require.NoError(t, err)
	require.Equal(t, "echo: ping", out.GetValue())
}

func TestGateway_ReRegisterClosesReplacedBackend(t *testing.T) {
	gw := startGateway(t, &stateInspector{})
	client := sdnpb.NewGatewayClient(gw.conn)
	ctx := testContext(t)
	out := new(wrapperspb.StringValue)

	_, err := client.Register(ctx, sdnpb.NewRegisterRequest("sdntest.Echo", startEchoBackend(t)))
	require.NoError(t, err)
	require.NoError(t, gw.conn.Invoke(ctx, "/sdntest.Echo/Echo", wrapperspb.String("first"), out))

	backend, ok := gw.gateway.Registry().GetBackend("sdntest.Echo")
	require.True(t, ok)
	first, ok := backend.(*remoteBackend)
	require.True(t, ok)

	_, err = client.Register(ctx, sdnpb.NewRegisterRequest("sdntest.Echo", startEchoBackend(t)))
	require.NoError(t, err)

	assert.Equal(t, connectivity.Shutdown, first.conn.GetState())
	require.Equal(t, []string{"sdntest.Echo"}, gw.gateway.Registry().Services())
	require.NoError(t, gw.conn.Invoke(ctx, "/sdntest.Echo/Echo", wrapperspb.String("second"), out))
	require.Equal(t, "echo: second", out.GetValue())
}

func TestGateway_RegisterRejects(t *testing.T) {
	gw := startGateway(t, &stateInspector{})
	client := sdnpb.NewGatewayClient(gw.conn)

	tests := []struct {
		name    string
		request *structpb.Struct
		code    codes.Code
	}{
		{
			name:    "missing endpoint",
			request: sdnpb.NewRegisterRequest("sdntest.Echo", ""),
			code:    codes.InvalidArgument,
		},
		{
			name:    "missing name",
			request: sdnpb.NewRegisterRequest("", "127.0.0.1:1"),
			code:    codes.InvalidArgument,
		},
		{
			name:    "built-in service",
			request: sdnpb.NewRegisterRequest(sdnpb.InspectServiceName, "127.0.0.1:1"),
			code:    codes.AlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Register(testContext(t), tt.request)
			require.Equal(t, tt.code, status.Code(err))
		})
	}
	require.Empty(t, gw.gateway.Registry().Services())
}

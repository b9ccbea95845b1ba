package sdnpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	InspectServiceName                         = "sdnpb.InspectService"
	InspectService_ShowTopology_FullMethodName = "/sdnpb.InspectService/ShowTopology"
	InspectService_ListHosts_FullMethodName    = "/sdnpb.InspectService/ListHosts"
	InspectService_ListFlows_FullMethodName    = "/sdnpb.InspectService/ListFlows"
)

// InspectServiceServer is the server API for the InspectService service.
type InspectServiceServer interface {
	// ShowTopology returns devices, hosts, live and offline edges.
	ShowTopology(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// ListHosts returns learned hosts whose address matches the glob
	// pattern. An empty pattern matches every host.
	ListHosts(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// ListFlows returns destinations covered by installed rules.
	ListFlows(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// InspectServiceDesc is the grpc.ServiceDesc for the InspectService service.
var InspectServiceDesc = grpc.ServiceDesc{
	ServiceName: InspectServiceName,
	HandlerType: (*InspectServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ShowTopology",
			Handler: unaryHandler(InspectService_ShowTopology_FullMethodName, newEmpty,
				func(srv any, ctx context.Context, req *emptypb.Empty) (any, error) {
					return srv.(InspectServiceServer).ShowTopology(ctx, req)
				},
			),
		},
		{
			MethodName: "ListHosts",
			Handler: unaryHandler(InspectService_ListHosts_FullMethodName, newStringValue,
				func(srv any, ctx context.Context, req *wrapperspb.StringValue) (any, error) {
					return srv.(InspectServiceServer).ListHosts(ctx, req)
				},
			),
		},
		{
			MethodName: "ListFlows",
			Handler: unaryHandler(InspectService_ListFlows_FullMethodName, newEmpty,
				func(srv any, ctx context.Context, req *emptypb.Empty) (any, error) {
					return srv.(InspectServiceServer).ListFlows(ctx, req)
				},
			),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sdnpb/inspect.proto",
}

// RegisterInspectServiceServer registers the InspectService service.
func RegisterInspectServiceServer(s grpc.ServiceRegistrar, srv InspectServiceServer) {
	s.RegisterService(&InspectServiceDesc, srv)
}

// InspectServiceClient is the client API for the InspectService service.
type InspectServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewInspectServiceClient creates a new InspectService client.
func NewInspectServiceClient(cc grpc.ClientConnInterface) *InspectServiceClient {
	return &InspectServiceClient{cc: cc}
}

func (c *InspectServiceClient) ShowTopology(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, InspectService_ShowTopology_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InspectServiceClient) ListHosts(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, InspectService_ListHosts_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InspectServiceClient) ListFlows(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, InspectService_ListFlows_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func newEmpty() *emptypb.Empty {
	return &emptypb.Empty{}
}

func newStringValue() *wrapperspb.StringValue {
	return &wrapperspb.StringValue{}
}

func newStruct() *structpb.Struct {
	return &structpb.Struct{}
}

package sdnpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	GatewayServiceName              = "sdnpb.Gateway"
	Gateway_Register_FullMethodName = "/sdnpb.Gateway/Register"
)

// GatewayServer is the server API for the Gateway service.
type GatewayServer interface {
	// Register makes the gateway proxy calls of the named service to the
	// endpoint. The request carries "name" and "endpoint" string fields.
	Register(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// GatewayServiceDesc is the grpc.ServiceDesc for the Gateway service.
var GatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: GatewayServiceName,
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Register",
			Handler: unaryHandler(Gateway_Register_FullMethodName, newStruct,
				func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
					return srv.(GatewayServer).Register(ctx, req)
				},
			),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sdnpb/gateway.proto",
}

// RegisterGatewayServer registers the Gateway service.
func RegisterGatewayServer(s grpc.ServiceRegistrar, srv GatewayServer) {
	s.RegisterService(&GatewayServiceDesc, srv)
}

// GatewayClient is the client API for the Gateway service.
type GatewayClient struct {
	cc grpc.ClientConnInterface
}

// NewGatewayClient creates a new Gateway client.
func NewGatewayClient(cc grpc.ClientConnInterface) *GatewayClient {
	return &GatewayClient{cc: cc}
}

func (c *GatewayClient) Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, Gateway_Register_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// NewRegisterRequest builds a Register request.
func NewRegisterRequest(name string, endpoint string) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"name":     structpb.NewStringValue(name),
			"endpoint": structpb.NewStringValue(endpoint),
		},
	}
}

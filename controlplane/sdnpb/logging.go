package sdnpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	LoggingServiceName                 = "sdnpb.Logging"
	Logging_UpdateLevel_FullMethodName = "/sdnpb.Logging/UpdateLevel"
)

// LoggingServer is the server API for the Logging service.
type LoggingServer interface {
	// UpdateLevel sets the minimum logging level: one of "debug", "info",
	// "warn" or "error".
	UpdateLevel(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// LoggingServiceDesc is the grpc.ServiceDesc for the Logging service.
var LoggingServiceDesc = grpc.ServiceDesc{
	ServiceName: LoggingServiceName,
	HandlerType: (*LoggingServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "UpdateLevel",
			Handler: unaryHandler(Logging_UpdateLevel_FullMethodName, newStringValue,
				func(srv any, ctx context.Context, req *wrapperspb.StringValue) (any, error) {
					return srv.(LoggingServer).UpdateLevel(ctx, req)
				},
			),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sdnpb/logging.proto",
}

// RegisterLoggingServer registers the Logging service.
func RegisterLoggingServer(s grpc.ServiceRegistrar, srv LoggingServer) {
	s.RegisterService(&LoggingServiceDesc, srv)
}

// LoggingClient is the client API for the Logging service.
type LoggingClient struct {
	cc grpc.ClientConnInterface
}

// NewLoggingClient creates a new Logging client.
func NewLoggingClient(cc grpc.ClientConnInterface) *LoggingClient {
	return &LoggingClient{cc: cc}
}

func (c *LoggingClient) UpdateLevel(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, Logging_UpdateLevel_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

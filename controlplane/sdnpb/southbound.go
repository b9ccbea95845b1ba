package sdnpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	SouthboundServiceName            = "sdnpb.Southbound"
	Southbound_Attach_FullMethodName = "/sdnpb.Southbound/Attach"
)

// SouthboundServer is the server API for the Southbound service.
//
// Attach is a bidirectional stream: the event runtime sends device events
// and receives commands for the devices it serves.
type SouthboundServer interface {
	Attach(grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error
}

// SouthboundServiceDesc is the grpc.ServiceDesc for the Southbound service.
var SouthboundServiceDesc = grpc.ServiceDesc{
	ServiceName: SouthboundServiceName,
	HandlerType: (*SouthboundServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Attach",
			Handler:       southboundAttachHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "sdnpb/southbound.proto",
}

func southboundAttachHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SouthboundServer).Attach(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// RegisterSouthboundServer registers the Southbound service.
func RegisterSouthboundServer(s grpc.ServiceRegistrar, srv SouthboundServer) {
	s.RegisterService(&SouthboundServiceDesc, srv)
}

// SouthboundClient is the client API for the Southbound service.
type SouthboundClient struct {
	cc grpc.ClientConnInterface
}

// NewSouthboundClient creates a new Southbound client.
func NewSouthboundClient(cc grpc.ClientConnInterface) *SouthboundClient {
	return &SouthboundClient{cc: cc}
}

// Attach opens the attachment stream.
func (c *SouthboundClient) Attach(
	ctx context.Context,
	opts ...grpc.CallOption,
) (grpc.BidiStreamingClient[structpb.Struct, structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &SouthboundServiceDesc.Streams[0], Southbound_Attach_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}, nil
}

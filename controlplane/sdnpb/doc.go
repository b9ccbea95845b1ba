// Package sdnpb describes the gRPC services exposed by the controller.
//
// Services are declared by hand on top of protobuf well-known types, so no
// code generation is involved: every request and response is one of
// google.protobuf.Struct, StringValue or Empty.
package sdnpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
)

// unaryHandler builds a gRPC method handler decoding requests of type T and
// passing them through the server interceptor chain.
func unaryHandler[T proto.Message](
	fullMethod string,
	newRequest func() T,
	call func(srv any, ctx context.Context, req T) (any, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newRequest()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(T))
		}
		return interceptor(ctx, in, info, handler)
	}
}

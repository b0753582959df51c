package grpctransport

import (
	"context"

	"google.golang.org/grpc"
)

// pushServer is implemented by Transport: a single unary method
// carrying one opaque, already-encoded gossip message.
type pushServer interface {
	push(ctx context.Context, frame *rawFrame) (*rawFrame, error)
}

// pushServiceDesc is a hand-written grpc.ServiceDesc: there is no
// protobuf-generated stub because the wire payload is opaque to gRPC
// (see rawCodec). This is the same shape protoc-gen-go-grpc emits,
// written by hand for a single method.
var pushServiceDesc = grpc.ServiceDesc{
	ServiceName: "gossipcore.Push",
	HandlerType: (*pushServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Send",
			Handler:    pushHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gossipcore/grpctransport",
}

func pushHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(rawFrame)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(pushServer).push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/gossipcore.Push/Send"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(pushServer).push(ctx, req.(*rawFrame))
	}
	return interceptor(ctx, in, info, handler)
}

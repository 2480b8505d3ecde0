package server

import (
	"context"

	"google.golang.org/grpc"
)

// UnaryMethod builds the descriptor of one unary method. S is the
// service's handler interface; the server hands every call the
// implementation registered for it.
//
// Example:
//
//	server.UnaryMethod(ServiceName, "Block", SafetyServer.Block)
func UnaryMethod[S any, Req any, Resp any](
	service, method string,
	call func(S, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServerStream is the typed send side of a server-streaming method.
type ServerStream[Resp any] interface {
	grpc.ServerStream
	Send(*Resp) error
}

type serverStream[Resp any] struct {
	grpc.ServerStream
}

func (s serverStream[Resp]) Send(m *Resp) error { return s.ServerStream.SendMsg(m) }

// ServerStreamMethod builds the descriptor of a server-streaming method:
// one request in, any number of responses out.
func ServerStreamMethod[S any, Req any, Resp any](
	method string,
	call func(S, *Req, ServerStream[Resp]) error,
) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(S), in, serverStream[Resp]{stream})
		},
	}
}

// Invoke runs a unary call with the json codec.
func Invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, fullMethod string, req any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := cc.Invoke(ctx, fullMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ClientStream is the typed receive side of a server-streaming call.
type ClientStream[Resp any] struct {
	grpc.ClientStream
}

func (s *ClientStream[Resp]) Recv() (*Resp, error) {
	m := new(Resp)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// OpenServerStream starts a server-streaming call and sends its single
// request.
func OpenServerStream[Resp any](
	ctx context.Context,
	cc grpc.ClientConnInterface,
	desc *grpc.StreamDesc,
	fullMethod string,
	req any,
	opts ...grpc.CallOption,
) (*ClientStream[Resp], error) {
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	cs, err := cc.NewStream(ctx, desc, fullMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &ClientStream[Resp]{ClientStream: cs}, nil
}

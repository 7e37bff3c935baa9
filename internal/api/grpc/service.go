package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "matching.v1.MatchingEngine"

const (
	submitOrderMethod      = "/" + ServiceName + "/SubmitOrder"
	cancelOrderMethod      = "/" + ServiceName + "/CancelOrder"
	getBookMethod          = "/" + ServiceName + "/GetBook"
	streamMarketDataMethod = "/" + ServiceName + "/StreamMarketData"
)

// MatchingEngineServer is the server API. Messages are free-form structs;
// their fields are documented on GRPCServer.
type MatchingEngineServer interface {
	SubmitOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBook(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamMarketData(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

func Register(s grpc.ServiceRegistrar, srv MatchingEngineServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchingEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitOrder", Handler: unaryHandler(submitOrderMethod, MatchingEngineServer.SubmitOrder)},
		{MethodName: "CancelOrder", Handler: unaryHandler(cancelOrderMethod, MatchingEngineServer.CancelOrder)},
		{MethodName: "GetBook", Handler: unaryHandler(getBookMethod, MatchingEngineServer.GetBook)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamMarketData",
			Handler:       streamMarketDataHandler,
			ServerStreams: true,
		},
	},
	Metadata: "matching/v1/matching.proto",
}

type unaryMethod func(MatchingEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MatchingEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MatchingEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamMarketDataHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MatchingEngineServer).StreamMarketData(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Client calls the service over any client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) SubmitOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, submitOrderMethod, in, opts...)
}

func (c *Client) CancelOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, cancelOrderMethod, in, opts...)
}

func (c *Client) GetBook(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, getBookMethod, in, opts...)
}

func (c *Client) StreamMarketData(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], streamMarketDataMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Package rpc exposes the junction sequencer as the junction.v1.Junction gRPC
// service. Messages are protobuf well-known types, so no generated code is
// needed on either side.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "junction.v1.Junction"

const (
	methodRequestRoad     = "/" + serviceName + "/RequestRoad"
	methodRequestCrossing = "/" + serviceName + "/RequestCrossing"
	methodEmergencyStop   = "/" + serviceName + "/EmergencyStop"
	methodGetState        = "/" + serviceName + "/GetState"
	methodGetStats        = "/" + serviceName + "/GetStats"
	methodClearLog        = "/" + serviceName + "/ClearLog"
	methodWatch           = "/" + serviceName + "/Watch"
)

type JunctionServer interface {
	RequestRoad(context.Context, *wrapperspb.UInt32Value) (*structpb.Struct, error)
	RequestCrossing(context.Context, *wrapperspb.UInt32Value) (*structpb.Struct, error)
	EmergencyStop(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ClearLog(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Watch(*emptypb.Empty, WatchStream) error
}

// WatchStream is the server side of a Watch call.
type WatchStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

type watchStream struct {
	grpc.ServerStream
}

func (w watchStream) Send(m *structpb.Struct) error {
	return w.ServerStream.SendMsg(m)
}

func RegisterJunctionServer(s grpc.ServiceRegistrar, srv JunctionServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*JunctionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestRoad", Handler: unary(methodRequestRoad, JunctionServer.RequestRoad)},
		{MethodName: "RequestCrossing", Handler: unary(methodRequestCrossing, JunctionServer.RequestCrossing)},
		{MethodName: "EmergencyStop", Handler: unary(methodEmergencyStop, JunctionServer.EmergencyStop)},
		{MethodName: "GetState", Handler: unary(methodGetState, JunctionServer.GetState)},
		{MethodName: "GetStats", Handler: unary(methodGetStats, JunctionServer.GetStats)},
		{MethodName: "ClearLog", Handler: unary(methodClearLog, JunctionServer.ClearLog)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "junction/v1/junction.proto",
}

func unary[T any](method string, call func(JunctionServer, context.Context, *T) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(T)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(JunctionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(JunctionServer), ctx, req.(*T))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(JunctionServer).Watch(in, watchStream{stream})
}

package group

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
)

const serviceName = "opgrid.group.v1.Coordinator"

const (
	methodJoin    = "/" + serviceName + "/Join"
	methodFetch   = "/" + serviceName + "/Fetch"
	methodBarrier = "/" + serviceName + "/Barrier"
	methodAbort   = "/" + serviceName + "/Abort"
	methodFinish  = "/" + serviceName + "/Finish"
)

// jsonCodec carries the plain request structs over gRPC so the service needs
// no generated stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "json" }

type coordinatorServer interface {
	Join(context.Context, *JoinRequest) (*JoinResponse, error)
	Fetch(context.Context, *FetchRequest) (*FetchResponse, error)
	Barrier(context.Context, *BarrierRequest) (*BarrierResponse, error)
	Abort(context.Context, *AbortRequest) (*AbortResponse, error)
	Finish(context.Context, *FinishRequest) (*FinishResponse, error)
}

var coordinatorServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*coordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Join", Handler: unaryHandler(methodJoin, coordinatorServer.Join)},
		{MethodName: "Fetch", Handler: unaryHandler(methodFetch, coordinatorServer.Fetch)},
		{MethodName: "Barrier", Handler: unaryHandler(methodBarrier, coordinatorServer.Barrier)},
		{MethodName: "Abort", Handler: unaryHandler(methodAbort, coordinatorServer.Abort)},
		{MethodName: "Finish", Handler: unaryHandler(methodFinish, coordinatorServer.Finish)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "opgrid/group",
}

// unaryHandler adapts a typed server method to grpc's method handler shape.
func unaryHandler[Req, Resp any](fullMethod string, call func(coordinatorServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(coordinatorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(coordinatorServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

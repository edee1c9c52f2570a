package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "arbiter.v1.Arbiter"

const (
	methodProcessTurn = "/" + ServiceName + "/ProcessTurn"
	methodGetState    = "/" + ServiceName + "/GetState"
)

// #region server-api

// ArbiterServer is the server API for the Arbiter service. Payloads are
// google.protobuf.Struct documents holding the JSON forms of the session types.
type ArbiterServer interface {
	ProcessTurn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterArbiterServer attaches srv to a gRPC server.
func RegisterArbiterServer(s grpc.ServiceRegistrar, srv ArbiterServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the Arbiter service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ArbiterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessTurn", Handler: processTurnHandler},
		{MethodName: "GetState", Handler: getStateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "arbiter/v1/arbiter.proto",
}

func processTurnHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArbiterServer).ProcessTurn(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodProcessTurn}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ArbiterServer).ProcessTurn(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getStateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArbiterServer).GetState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetState}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ArbiterServer).GetState(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// #endregion server-api

// #region client-api

// ArbiterClient is the client API for the Arbiter service.
type ArbiterClient interface {
	ProcessTurn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetState(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type arbiterClient struct {
	cc grpc.ClientConnInterface
}

// NewArbiterClient wraps a connection.
func NewArbiterClient(cc grpc.ClientConnInterface) ArbiterClient {
	return &arbiterClient{cc: cc}
}

func (c *arbiterClient) ProcessTurn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodProcessTurn, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *arbiterClient) GetState(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetState, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion client-api

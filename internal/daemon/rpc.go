package daemon

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName      = "tracewatch.v1.Agent"
	methodPing       = "/" + serviceName + "/Ping"
	methodListTraces = "/" + serviceName + "/ListTraces"
)

// AgentServer is the control surface of a running trace agent.
type AgentServer interface {
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	// ListTraces returns one struct per trace; see traceToStruct.
	ListTraces(context.Context, *structpb.Struct) (*structpb.ListValue, error)
}

// AgentClient is the client API for AgentServer.
type AgentClient interface {
	Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	ListTraces(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error)
}

type agentClient struct {
	cc grpc.ClientConnInterface
}

// NewAgentClient wraps a connection to an agent.
func NewAgentClient(cc grpc.ClientConnInterface) AgentClient {
	return &agentClient{cc: cc}
}

func (c *agentClient) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodPing, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentClient) ListTraces(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, methodListTraces, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func registerAgentServer(s grpc.ServiceRegistrar, srv AgentServer) {
	s.RegisterService(&agentServiceDesc, srv)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPing}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AgentServer).Ping(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func listTracesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).ListTraces(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListTraces}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AgentServer).ListTraces(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var agentServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
		{MethodName: "ListTraces", Handler: listTracesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tracewatch/v1/agent.proto",
}

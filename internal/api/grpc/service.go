// Package grpc serves the partprune gRPC API. Messages are
// google.protobuf.Struct values so the service needs no generated code.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "partprune.v1.PruneService"

const (
	explainMethod  = "/" + ServiceName + "/Explain"
	relationMethod = "/" + ServiceName + "/DescribeRelation"
)

// PruneServiceServer is the server API of the prune service.
type PruneServiceServer interface {
	// Explain plans {"sql": "..."} and returns the plan.
	Explain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// DescribeRelation returns the scheme of {"name": "..."}.
	DescribeRelation(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPruneServiceServer registers srv on s.
func RegisterPruneServiceServer(s grpc.ServiceRegistrar, srv PruneServiceServer) {
	s.RegisterService(&PruneServiceDesc, srv)
}

// PruneServiceDesc describes the prune service.
var PruneServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PruneServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Explain", Handler: unaryHandler(explainMethod, PruneServiceServer.Explain)},
		{MethodName: "DescribeRelation", Handler: unaryHandler(relationMethod, PruneServiceServer.DescribeRelation)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "partprune/v1/prune.proto",
}

type unaryMethod func(PruneServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PruneServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(PruneServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// PruneServiceClient calls the prune service.
type PruneServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPruneServiceClient creates a client on cc.
func NewPruneServiceClient(cc grpc.ClientConnInterface) *PruneServiceClient {
	return &PruneServiceClient{cc: cc}
}

// Explain plans sql on the server.
func (c *PruneServiceClient) Explain(ctx context.Context, sql string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"sql": sql})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, explainMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// DescribeRelation fetches the scheme of a relation.
func (c *PruneServiceClient) DescribeRelation(ctx context.Context, name string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"name": name})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, relationMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

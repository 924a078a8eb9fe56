package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const seckillServiceName = "seckill.v1.SeckillService"

// SeckillServiceServer carries requests and replies as google.protobuf.Struct,
// so no generated stubs are needed.
type SeckillServiceServer interface {
	Expose(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(SeckillServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SeckillServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + seckillServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(SeckillServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var SeckillServiceDesc = grpc.ServiceDesc{
	ServiceName: seckillServiceName,
	HandlerType: (*SeckillServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Expose", SeckillServiceServer.Expose),
		unaryHandler("Execute", SeckillServiceServer.Execute),
		unaryHandler("List", SeckillServiceServer.List),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "seckill/v1/seckill.proto",
}

func RegisterSeckillServiceServer(s grpc.ServiceRegistrar, srv SeckillServiceServer) {
	s.RegisterService(&SeckillServiceDesc, srv)
}

type SeckillServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSeckillServiceClient(cc grpc.ClientConnInterface) *SeckillServiceClient {
	return &SeckillServiceClient{cc: cc}
}

func (c *SeckillServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+seckillServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SeckillServiceClient) Expose(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Expose", in, opts...)
}

func (c *SeckillServiceClient) Execute(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Execute", in, opts...)
}

func (c *SeckillServiceClient) List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "List", in, opts...)
}

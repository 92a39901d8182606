package grpc

import (
	"context"
	"sort"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// StructHandler serves one unary method whose request and response bodies
// are structpb.Struct values.
type StructHandler func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// FullMethod returns the gRPC method path for service and method.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// RegisterStructService registers a unary service whose methods all carry
// structpb.Struct bodies. handlers is keyed by method name.
func RegisterStructService(registrar gogrpc.ServiceRegistrar, service string, handlers map[string]StructHandler) {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	desc := gogrpc.ServiceDesc{
		ServiceName: service,
		HandlerType: (*any)(nil),
		Methods:     make([]gogrpc.MethodDesc, 0, len(names)),
		Metadata:    service,
	}
	for _, name := range names {
		desc.Methods = append(desc.Methods, gogrpc.MethodDesc{
			MethodName: name,
			Handler:    structMethodHandler(FullMethod(service, name), handlers[name]),
		})
	}
	registrar.RegisterService(&desc, handlers)
}

func structMethodHandler(fullMethod string, handle StructHandler) gogrpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return handle(ctx, in)
		}
		info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return handle(ctx, req.(*structpb.Struct))
		})
	}
}

// InvokeStruct calls a unary Struct-bodied method on conn.
func InvokeStruct(ctx context.Context, conn gogrpc.ClientConnInterface, fullMethod string, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, fullMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

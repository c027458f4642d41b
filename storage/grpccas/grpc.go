package grpccas

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The Records service carries run plans and reports between operators and a
// shared record daemon. Messages are protobuf well-known wrappers, so no
// generated code is needed:
//
//	service Records {
//	  rpc Put(google.protobuf.BytesValue) returns (google.protobuf.StringValue);
//	  rpc Get(google.protobuf.StringValue) returns (google.protobuf.BytesValue);
//	  rpc Has(google.protobuf.StringValue) returns (google.protobuf.BoolValue);
//	  // Claim stores a record only if it is absent and reports whether it did.
//	  rpc Claim(google.protobuf.BytesValue) returns (google.protobuf.BoolValue);
//	}
const serviceName = "xdao.vaultseed.records.v1.Records"

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

type RecordsServer interface {
	Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	Claim(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error)
}

// UnimplementedRecordsServer answers every method with Unimplemented.
type UnimplementedRecordsServer struct{}

func (UnimplementedRecordsServer) Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, unimplemented("Put")
}

func (UnimplementedRecordsServer) Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented("Get")
}

func (UnimplementedRecordsServer) Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, unimplemented("Has")
}

func (UnimplementedRecordsServer) Claim(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	return nil, unimplemented("Claim")
}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

// unary builds the method descriptor for one RPC; call dispatches to the
// matching RecordsServer method.
func unary[Req, Resp any](name string, call func(RecordsServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handle := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RecordsServer), ctx, req.(*Req))
			}
			if interceptor == nil {
				return handle(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}, handle)
		},
	}
}

var recordsServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RecordsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Put", RecordsServer.Put),
		unary("Get", RecordsServer.Get),
		unary("Has", RecordsServer.Has),
		unary("Claim", RecordsServer.Claim),
	},
	Metadata: "records.proto",
}

// RegisterRecordsServer registers the Records service on a gRPC server.
func RegisterRecordsServer(s grpc.ServiceRegistrar, srv RecordsServer) {
	s.RegisterService(&recordsServiceDesc, srv)
}

// invoke runs one unary RPC and decodes the reply into a fresh Resp.
func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, fullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

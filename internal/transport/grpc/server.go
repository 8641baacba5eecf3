package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/milad/metermon/internal/domain"
)

const (
	ServiceName    = "metermon.v1.MeterService"
	getStateMethod = "/" + ServiceName + "/GetState"
)

// StateReader is the subset of the monitor the service exposes.
type StateReader interface {
	State(ctx context.Context) (domain.Snapshot, error)
}

// MeterServiceServer is the server API for the meter service. Messages are
// well-known types, so no generated stubs are needed.
type MeterServiceServer interface {
	GetState(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes metermon.v1.MeterService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MeterServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetState", Handler: getStateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "metermon/v1/meter.proto",
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv MeterServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func getStateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MeterServiceServer).GetState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MeterServiceServer).GetState(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

type Server struct {
	src StateReader
}

func New(src StateReader) *Server {
	return &Server{src: src}
}

func (s *Server) GetState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap, err := s.src.State(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	out, err := toProtoSnapshot(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

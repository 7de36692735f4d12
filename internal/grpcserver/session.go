package grpcserver

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/qr-payment-confirm/internal/session"
)

const ServiceName = "qrpay.v1.SessionService"

// SessionService is the handler contract of ServiceDesc. Requests and replies
// are google.protobuf.Struct messages so no generated code is needed.
type SessionService interface {
	RequestPayment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ResetSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	WatchSession(in *structpb.Struct, stream grpc.ServerStream) error
}

// SessionServer serves one engine: one terminal, one payment at a time.
type SessionServer struct {
	Engine       *session.Engine
	NotifyMobile bool
	Logger       *slog.Logger
}

func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionService) {
	s.RegisterService(&ServiceDesc, srv)
}

func (s *SessionServer) RequestPayment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	amount, err := decimal.NewFromString(fields["amount"].GetStringValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "amount: %v", err)
	}

	req := session.PaymentRequest{
		Amount:              amount,
		CallerTransactionID: fields["txn_id"].GetStringValue(),
		NotifyMobile:        s.NotifyMobile,
	}
	if v, ok := fields["notify_mobile"]; ok {
		req.NotifyMobile = v.GetBoolValue()
	}

	if err := s.Engine.Request(ctx, req); err != nil {
		return nil, toStatus(err)
	}
	s.logger().Info("payment requested", slog.String("amount", amount.StringFixed(2)), slog.String("txn_id", req.CallerTransactionID))
	return EncodeSession(s.Engine.Snapshot())
}

func (s *SessionServer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *SessionServer) GetSession(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return EncodeSession(s.Engine.Snapshot())
}

func (s *SessionServer) ResetSession(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.Engine.Reset(ctx); err != nil {
		return nil, toStatus(err)
	}
	return EncodeSession(s.Engine.Snapshot())
}

// WatchSession streams snapshots. With until_terminal set it ends after the
// first terminal snapshot.
func (s *SessionServer) WatchSession(in *structpb.Struct, stream grpc.ServerStream) error {
	untilTerminal := in.GetFields()["until_terminal"].GetBoolValue()
	ch, unsubscribe := s.Engine.Subscribe(16)
	defer unsubscribe()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				return status.Error(codes.Unavailable, "engine closed")
			}
			out, err := EncodeSession(snap)
			if err != nil {
				return status.Errorf(codes.Internal, "encode session: %v", err)
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
			if untilTerminal && snap.State.Terminal() {
				return nil
			}
		}
	}
}

func toStatus(err error) error {
	switch {
	case stderrors.Is(err, session.ErrInvalidAmount):
		return status.Error(codes.InvalidArgument, err.Error())
	case stderrors.Is(err, session.ErrSessionActive):
		return status.Error(codes.FailedPrecondition, err.Error())
	case stderrors.Is(err, session.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func _SessionService_RequestPayment_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionService).RequestPayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RequestPayment"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionService).RequestPayment(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _SessionService_GetSession_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionService).GetSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetSession"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionService).GetSession(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _SessionService_ResetSession_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionService).ResetSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ResetSession"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionService).ResetSession(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _SessionService_WatchSession_Handler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SessionService).WatchSession(in, stream)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestPayment", Handler: _SessionService_RequestPayment_Handler},
		{MethodName: "GetSession", Handler: _SessionService_GetSession_Handler},
		{MethodName: "ResetSession", Handler: _SessionService_ResetSession_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchSession", Handler: _SessionService_WatchSession_Handler, ServerStreams: true},
	},
	Metadata: "qrpay/v1/session.proto",
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"autorsa/internal/domain"
	"autorsa/internal/engine"
)

// OrderServiceName is the fully qualified gRPC service name.
const OrderServiceName = "autorsa.v1.OrderService"

// SubmitMethod is the full method name of OrderService.Submit.
const SubmitMethod = "/" + OrderServiceName + "/Submit"

const requestIDHeader = "x-request-id"

// OrderServiceServer is the server API for OrderService. Requests are a
// google.protobuf.Struct with the same fields as the HTTP body; the reply is
// the string "OK".
type OrderServiceServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error)
}

// OrderServiceDesc describes OrderService for grpc.Server.RegisterService.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "autorsa/v1/order.proto",
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// orderService adapts Server to OrderServiceServer.
type orderService struct {
	s *Server
}

var _ OrderServiceServer = (*orderService)(nil)

func (o *orderService) Submit(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	raw, err := in.MarshalJSON()
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad request: %v", err)
	}
	var req OrderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad request: %v", err)
	}

	_, err = o.s.submit(ctx, req)
	var ve *domain.ValidationError
	switch {
	case err == nil:
		return wrapperspb.String("OK"), nil
	case errors.As(err, &ve):
		return nil, status.Error(codes.InvalidArgument, ve.Error())
	case errors.Is(err, engine.ErrQueueFull):
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	default:
		return nil, status.Error(codes.Internal, err.Error())
	}
}

// NewGRPCServer builds a grpc.Server exposing OrderService and the standard
// health service.
func (s *Server) NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		requestIDInterceptor(),
		recoveryInterceptor(s.log),
		loggingInterceptor(s.log),
	))
	srv.RegisterService(&OrderServiceDesc, &orderService{s: s})

	hs := health.NewServer()
	hs.SetServingStatus(OrderServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// ServeGRPC serves gRPC on ln until ctx is cancelled, then marks the service
// not serving and stops gracefully.
func (s *Server) ServeGRPC(ctx context.Context, ln net.Listener) error {
	srv, hs := s.NewGRPCServer()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gRPC server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.log.Info("shutting down gRPC server")
	hs.Shutdown()
	srv.GracefulStop()
	return nil
}

// ---------------------------------------------------------------------------
// Interceptors
// ---------------------------------------------------------------------------

type requestIDKey struct{}

// RequestIDFromContext extracts the request ID set by the interceptor.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func requestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var requestID string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(requestIDHeader); len(ids) > 0 {
				requestID = ids[0]
			}
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}
		return handler(context.WithValue(ctx, requestIDKey{}, requestID), req)
	}
}

func recoveryInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []any{
			"method", info.FullMethod,
			"duration", time.Since(start),
			"request_id", RequestIDFromContext(ctx),
		}
		if err != nil {
			fields = append(fields, "code", status.Code(err).String(), "error", err.Error())
			log.Warn("grpc request failed", fields...)
		} else {
			log.Info("grpc request completed", fields...)
		}
		return resp, err
	}
}

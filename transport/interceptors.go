package transport

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor logs the start, duration, and result of each unary
// RPC call.
func LoggingInterceptor(logger Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		logger.Debug("transport_request_started", "method", info.FullMethod)

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		if err != nil {
			st, _ := status.FromError(err)
			logger.Error("transport_request_failed", "method", info.FullMethod, "duration_ms", duration.Milliseconds(), "code", st.Code().String(), "error", err.Error())
		} else {
			logger.Debug("transport_request_completed", "method", info.FullMethod, "duration_ms", duration.Milliseconds())
		}
		return resp, err
	}
}

// StreamLoggingInterceptor is LoggingInterceptor's stream counterpart.
func StreamLoggingInterceptor(logger Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger.Debug("transport_stream_started", "method", info.FullMethod)

		err := handler(srv, ss)

		duration := time.Since(start)
		if err != nil {
			st, _ := status.FromError(err)
			logger.Error("transport_stream_failed", "method", info.FullMethod, "duration_ms", duration.Milliseconds(), "code", st.Code().String(), "error", err.Error())
		} else {
			logger.Debug("transport_stream_completed", "method", info.FullMethod, "duration_ms", duration.Milliseconds())
		}
		return err
	}
}

// RecoveryHandler is called when a panic is recovered from a handler.
type RecoveryHandler func(p interface{}) error

// DefaultRecoveryHandler returns an Internal error with panic details.
func DefaultRecoveryHandler(p interface{}) error {
	return status.Errorf(codes.Internal, "panic recovered: %v", p)
}

// StreamRecoveryInterceptor recovers a panic inside the Exchange stream
// handler, logs the stack, and turns it into an Internal status instead
// of crashing the process (a single misbehaving peer must never take
// down the others sharing this server).
func StreamRecoveryInterceptor(logger Logger, handler RecoveryHandler) grpc.StreamServerInterceptor {
	if handler == nil {
		handler = DefaultRecoveryHandler
	}
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, grpcHandler grpc.StreamHandler) (err error) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("transport_stream_panic_recovered", "method", info.FullMethod, "panic", fmt.Sprintf("%v", p), "stack", string(debug.Stack()))
				err = handler(p)
			}
		}()
		return grpcHandler(srv, ss)
	}
}

// ChainStreamInterceptors composes multiple stream interceptors into one,
// executed in the order given.
func ChainStreamInterceptors(interceptors ...grpc.StreamServerInterceptor) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor := interceptors[i]
			currentHandler := chain
			chain = func(srv interface{}, ss grpc.ServerStream) error {
				return interceptor(srv, ss, info, currentHandler)
			}
		}
		return chain(srv, ss)
	}
}

// ServerOptions returns the standard recovery+logging interceptor stack
// for a participant's gRPC server.
func ServerOptions(logger Logger) []grpc.ServerOption {
	streamInterceptor := ChainStreamInterceptors(
		StreamRecoveryInterceptor(logger, nil),
		StreamLoggingInterceptor(logger),
	)
	return []grpc.ServerOption{
		grpc.StreamInterceptor(streamInterceptor),
	}
}

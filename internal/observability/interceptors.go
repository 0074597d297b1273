package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-screening-call-service/internal/observability/logging"
	"ai-screening-call-service/internal/observability/metrics"
)

// Probes hit the health service every few seconds.
const healthServicePrefix = "/grpc.health.v1.Health/"

// UnaryServerInterceptor logs unary calls and turns handler panics into
// codes.Internal. Health checks are logged at debug level.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("method", info.FullMethod).Msg("gRPC handler panicked")
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
			st, _ := status.FromError(err)
			callEvent(&logger, info.FullMethod, err).
				Str("method", info.FullMethod).
				Str("code", st.Code().String()).
				Dur("duration", time.Since(start)).
				Msg("gRPC unary call")
		}()

		return handler(ctx, req)
	}
}

// StreamServerInterceptor records stream metrics and logs completion.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()
		m.RecordStreamStart()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("method", info.FullMethod).Msg("gRPC stream handler panicked")
				err = status.Error(codes.Internal, "internal error")
			}
			duration := time.Since(start)
			// A health watch ends when the server drains; that is not a failure
			success := err == nil || status.Code(err) == codes.Canceled
			m.RecordStreamEnd(success, duration.Seconds())

			st, _ := status.FromError(err)
			callEvent(&logger, info.FullMethod, err).
				Str("method", info.FullMethod).
				Str("code", st.Code().String()).
				Dur("duration", duration).
				Bool("success", success).
				Msg("gRPC stream completed")
		}()

		return handler(srv, ss)
	}
}

func callEvent(logger *zerolog.Logger, method string, err error) *zerolog.Event {
	switch {
	case err != nil && status.Code(err) == codes.Internal:
		return logger.Error()
	case strings.HasPrefix(method, healthServicePrefix):
		return logger.Debug()
	default:
		return logger.Info()
	}
}

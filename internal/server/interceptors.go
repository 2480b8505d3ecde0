package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// RequestIDHeader is read from incoming metadata and echoed back.
const RequestIDHeader = "x-request-id"

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDHeader); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}

// UnaryLogging logs every unary call with its request id, duration and
// outcome. Domain errors that slipped through unmapped are mapped here.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := requestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))
		start := time.Now()

		resp, err := handler(ctx, req)
		err = svcErr.Map(err)
		logCall(ctx, logger, info.FullMethod, id, start, err)
		return resp, err
	}
}

// StreamLogging is UnaryLogging for streams; it logs once the stream ends.
func StreamLogging(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		id := requestID(ctx)
		_ = ss.SetHeader(metadata.Pairs(RequestIDHeader, id))
		start := time.Now()

		err := svcErr.Map(handler(srv, ss))
		logCall(ctx, logger, info.FullMethod, id, start, err)
		return err
	}
}

func logCall(ctx context.Context, logger *slog.Logger, method, id string, start time.Time, err error) {
	attrs := []any{
		"method", method,
		"request_id", id,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err == nil {
		logger.DebugContext(ctx, "grpc call", attrs...)
		return
	}
	st, _ := status.FromError(err)
	attrs = append(attrs, "code", st.Code().String(), "err", st.Message())
	if kind := svcErr.KindOf(err); kind != "" {
		attrs = append(attrs, "kind", string(kind))
		logger.InfoContext(ctx, "grpc call rejected", attrs...)
		return
	}
	logger.ErrorContext(ctx, "grpc call failed", attrs...)
}

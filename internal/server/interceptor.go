package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/atlekbai/record_query/internal/metrics"
)

// ObservingInterceptor logs every unary call and counts it by procedure and
// status code.
func ObservingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			code := "ok"
			level := slog.LevelInfo
			if err != nil {
				code = connect.CodeOf(err).String()
				if !isClientError(err) {
					level = slog.LevelError
				}
			}
			procedure := req.Spec().Procedure
			metrics.RPCRequestsTotal.WithLabelValues(procedure, code).Inc()
			logger.Log(ctx, level, "rpc",
				"procedure", procedure,
				"code", code,
				"duration", time.Since(start),
			)
			return resp, err
		}
	}
}

func isClientError(err error) bool {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return false
	}
	switch cerr.Code() {
	case connect.CodeInvalidArgument, connect.CodeNotFound, connect.CodeCanceled:
		return true
	}
	return false
}

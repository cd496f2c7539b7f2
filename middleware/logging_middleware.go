package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iamfat/http-jsonrpc/message"
)

// Logging records every dispatched request with its duration and outcome.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.ByteString("id", req.ID),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil:
				logger.Error("handler failed", append(fields, zap.Error(err))...)
			case resp != nil && resp.Error != nil:
				logger.Debug("request rejected", append(fields,
					zap.Int("code", resp.Error.Code),
					zap.String("message", resp.Error.Message))...)
			default:
				logger.Debug("request served", fields...)
			}
			return resp, err
		}
	}
}

package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/iamfat/http-jsonrpc/message"
)

// CodeRateLimited is in the range JSON-RPC reserves for server errors.
const CodeRateLimited = -32000

var ErrRateLimited = message.NewError(CodeRateLimited, "Rate limit exceeded")

// RateLimit admits r requests per second with bursts of up to burst (token bucket).
// Requests over the limit are rejected without reaching the handler.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
			if !limiter.Allow() {
				return message.NewErrorResponse(req.ID, ErrRateLimited), nil
			}
			return next(ctx, req)
		}
	}
}

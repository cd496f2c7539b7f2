package middleware

import (
	"context"
	"time"

	"github.com/iamfat/http-jsonrpc/message"
)

// ErrTimeout answers requests whose handler ran past the Timeout limit.
var ErrTimeout = message.NewError(message.CodeInternalError, "Request timed out")

// Timeout bounds how long a handler may take, deferred completions included. The
// handler's context is cancelled when the limit is hit; whatever it reports later
// is discarded. When the request context itself ends first, its error is returned
// instead of a reply.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(parent context.Context, req *message.Envelope) (*message.Envelope, error) {
			ctx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()

			type outcome struct {
				resp *message.Envelope
				err  error
			}
			done := make(chan outcome, 1)
			go func() {
				resp, err := next(ctx, req)
				done <- outcome{resp, err}
			}()

			select {
			case o := <-done:
				return o.resp, o.err
			case <-ctx.Done():
				// The caller went away; nobody is left to read a timeout reply.
				if err := parent.Err(); err != nil {
					return nil, err
				}
				return message.NewErrorResponse(req.ID, ErrTimeout), nil
			}
		}
	}
}

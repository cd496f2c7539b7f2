// Package middleware wraps the server's method dispatch.
//
// A HandlerFunc receives one decoded request and returns the response envelope for
// it. The server echoes the request id onto that envelope and drops it entirely for
// notifications, so middlewares never need to care about either.
package middleware

import (
	"context"

	"github.com/iamfat/http-jsonrpc/message"
)

// HandlerFunc answers one request. A non-nil error is a failure that must not be
// turned into a JSON-RPC error; the server reports it as fatal.
type HandlerFunc func(ctx context.Context, req *message.Envelope) (*message.Envelope, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one runs outermost:
// Chain(A, B, C)(h) is A(B(C(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

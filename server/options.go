package server

import (
	"go.uber.org/zap"

	"github.com/iamfat/http-jsonrpc/codec"
	"github.com/iamfat/http-jsonrpc/middleware"
)

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMiddleware appends middlewares; the first one given runs outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Server) { s.middlewares = append(s.middlewares, mws...) }
}

// WithMaxContentLength caps request bodies; 0 disables the cap.
func WithMaxContentLength(n int64) Option {
	return func(s *Server) { s.maxContentLength = n }
}

// WithFatalHandler sets what happens with handler failures that are not JSON-RPC
// errors. The default only logs them at error level and does not abort the
// process; pass a function that exits to get fail-fast behaviour.
func WithFatalHandler(fn func(error)) Option {
	return func(s *Server) { s.fatal = fn }
}

func WithCodec(c codec.Codec) Option {
	return func(s *Server) { s.codec = c }
}

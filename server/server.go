// Package server answers JSON-RPC requests posted over HTTP.
//
// Request processing pipeline:
//
//	ServeHTTP (POST body) → Handle
//	  → Codec.Decode          (Parse error / Invalid Request answered right away)
//	  → Middleware Chain → dispatch (method lookup → Handler → await deferred result)
//	  → Codec.Encode          (skipped for notifications)
//	→ 200 with the response body, 204 for notifications
//
// Handlers fail deliberately with *message.Error. Any other error is a programming
// error: it aborts the request with HTTP 500 and goes to the fatal handler instead of
// being disguised as a JSON-RPC error. Handler panics are left alone too.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iamfat/http-jsonrpc/codec"
	"github.com/iamfat/http-jsonrpc/message"
	"github.com/iamfat/http-jsonrpc/middleware"
	"github.com/iamfat/http-jsonrpc/registry"
)

// DefaultMaxContentLength caps request bodies unless WithMaxContentLength says otherwise.
const DefaultMaxContentLength = 4 << 20

// HandlerError is a handler failure that is not a JSON-RPC error.
type HandlerError struct {
	Method string
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Method, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

type announcement struct {
	registry registry.Registry
	service  string
	url      string
}

// Server is the answering side of a peer.
type Server struct {
	codec            codec.Codec
	logger           *zap.Logger
	middlewares      []middleware.Middleware
	maxContentLength int64
	fatal            func(error)

	methods methodTable
	handler middleware.HandlerFunc // middleware(middleware(...(dispatch)))

	mu         sync.Mutex
	httpServer *http.Server
	announced  []announcement
}

// New creates a server with no methods registered.
func New(opts ...Option) *Server {
	s := &Server{
		codec:            codec.Default,
		logger:           zap.NewNop(),
		maxContentLength: DefaultMaxContentLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fatal == nil {
		s.fatal = func(err error) {
			s.logger.Error("fatal handler error", zap.Error(err))
		}
	}
	// Build the chain once, not per request.
	s.handler = middleware.Chain(s.middlewares...)(s.dispatch)
	return s
}

// Handle answers one request body. It returns nil bytes when nothing must be sent
// back (notifications). A *HandlerError means a handler failed with a non-RPC error;
// any other error means ctx ended while a deferred handler was still running.
func (s *Server) Handle(ctx context.Context, body []byte) ([]byte, error) {
	req, err := s.codec.Decode(body)
	if err != nil {
		s.logger.Error("HTTP ERROR: bad request", zap.ByteString("body", body), zap.Error(err))
		return s.encode(message.NewErrorResponse(nil, codec.AsRPCError(err)))
	}
	s.logger.Debug("HTTP <=", zap.ByteString("id", req.ID), zap.ByteString("body", body))

	if req.Method == "" {
		s.logger.Error("HTTP ERROR: request without method", zap.ByteString("body", body))
		return s.encode(message.NewErrorResponse(req.ID, message.ErrInvalidRequest))
	}

	resp, err := s.handler(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.IsNotification() || resp == nil {
		return nil, nil
	}
	resp.ID = req.ID
	return s.encode(resp)
}

func (s *Server) encode(resp *message.Envelope) ([]byte, error) {
	data, err := s.codec.Encode(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	s.logger.Debug("HTTP =>", zap.ByteString("id", resp.ID), zap.ByteString("body", data))
	return data, nil
}

// dispatch is the innermost handler of the chain.
func (s *Server) dispatch(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
	h, ok := s.methods.lookup(req.Method)
	if !ok {
		return message.NewErrorResponse(req.ID, message.ErrMethodNotFound), nil
	}

	value, err, waitErr := await(ctx, h(ctx, Params(req.Params)))
	if waitErr != nil {
		return nil, waitErr
	}
	if err != nil {
		rpcErr, ok := message.AsError(err)
		if !ok {
			return nil, &HandlerError{Method: req.Method, Err: err}
		}
		return message.NewErrorResponse(req.ID, withDefaults(rpcErr)), nil
	}

	resp, err := message.NewResult(req.ID, value)
	if err != nil {
		return nil, &HandlerError{Method: req.Method, Err: fmt.Errorf("encode result: %w", err)}
	}
	return resp, nil
}

// withDefaults fills in the code and message a handler left out.
func withDefaults(e *message.Error) *message.Error {
	if e.Code != 0 && e.Message != "" {
		return e
	}
	out := *e
	if out.Code == 0 {
		out.Code = message.CodeInternalError
	}
	if out.Message == "" {
		out.Message = message.DefaultMessage
	}
	return &out
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	var body io.Reader = r.Body
	if s.maxContentLength > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxContentLength)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Error("HTTP ERROR: cannot read request", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	resp, err := s.Handle(r.Context(), data)
	if err != nil {
		var fatal *HandlerError
		if errors.As(err, &fatal) {
			s.fatal(fatal)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		s.logger.Debug("request abandoned", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", s.codec.ContentType())
	_, _ = w.Write(resp)
}

// ListenAndServe listens on the TCP address addr and serves requests until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve serves requests on l until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already serving")
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("HTTP-RPC listening", zap.String("addr", l.Addr().String()))
	if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Announce publishes endpoint under service in reg. Shutdown withdraws it again.
func (s *Server) Announce(ctx context.Context, reg registry.Registry, service string, endpoint registry.Endpoint, ttl int64) error {
	if err := reg.Register(ctx, service, endpoint, ttl); err != nil {
		return fmt.Errorf("announce %s: %w", service, err)
	}
	s.mu.Lock()
	s.announced = append(s.announced, announcement{registry: reg, service: service, url: endpoint.URL})
	s.mu.Unlock()
	s.logger.Info("HTTP-RPC announced", zap.String("service", service), zap.String("url", endpoint.URL))
	return nil
}

// Shutdown withdraws every announcement first, so that callers stop picking this
// server, then stops accepting requests and waits for the running ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	announced := s.announced
	s.announced = nil
	srv := s.httpServer
	s.mu.Unlock()

	for _, a := range announced {
		if err := a.registry.Deregister(ctx, a.service, a.url); err != nil {
			s.logger.Error("cannot withdraw announcement",
				zap.String("service", a.service),
				zap.String("url", a.url),
				zap.Error(err))
		}
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Package transport carries encoded envelopes to a remote peer over HTTP.
//
// One call is one POST: the request envelope is the body, the response envelope (if
// any) is the body of the reply. Transport knows nothing about JSON-RPC; it reports
// the status code and the raw reply bytes and leaves their meaning to the client.
//
//	client.Go ──encode──▶ Transport.Post(target, body) ──HTTP POST──▶ peer
//	          ◀─decode── Response{StatusCode, Body}     ◀───reply─────
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// Transport posts one payload and returns the peer's reply.
type Transport interface {
	Post(ctx context.Context, target Target, contentType string, body []byte) (*Response, error)
}

// Response is a fully read HTTP reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError is returned by callers that treat a non-2xx reply as a failure.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status code: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTP is the net/http implementation of Transport. Cookies set by the peer are kept
// in a jar and replayed on later requests, which gives session affinity to servers
// that pin clients with a cookie.
type HTTP struct {
	client *http.Client
	logger *zap.Logger

	// MaxContentLength caps the reply size read from the peer (optional).
	MaxContentLength int64
}

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the underlying client. Its Jar is kept if set.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(h *HTTP) { h.logger = l }
}

// WithMaxContentLength caps the reply size.
func WithMaxContentLength(n int64) HTTPOption {
	return func(h *HTTP) { h.MaxContentLength = n }
}

// NewHTTP creates an HTTP transport with a session cookie jar.
func NewHTTP(opts ...HTTPOption) (*HTTP, error) {
	h := &HTTP{
		client: &http.Client{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.client.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		h.client.Jar = jar
	}
	return h, nil
}

func (h *HTTP) Post(ctx context.Context, target Target, contentType string, body []byte) (*Response, error) {
	if target.IsZero() {
		return nil, fmt.Errorf("no target address configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if h.MaxContentLength > 0 && resp.ContentLength > h.MaxContentLength {
		return nil, fmt.Errorf("response too large: %d bytes", resp.ContentLength)
	}
	var r io.Reader = resp.Body
	if h.MaxContentLength > 0 {
		r = io.LimitReader(resp.Body, h.MaxContentLength)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	h.logger.Debug("http exchange",
		zap.String("url", target.URL()),
		zap.Int("status", resp.StatusCode),
		zap.Int("sent", len(body)),
		zap.Int("received", len(data)))
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

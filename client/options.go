package client

import (
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/iamfat/http-jsonrpc/codec"
	"github.com/iamfat/http-jsonrpc/idgen"
	"github.com/iamfat/http-jsonrpc/transport"
)

// DefaultTimeout bounds how long a call waits for its reply.
const DefaultTimeout = 5 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxConcurrency bounds calls in flight; 0 means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(c *Client) { c.maxConcurrency = n }
}

// WithIDGenerator replaces the correlation id generator.
func WithIDGenerator(g idgen.Generator) Option {
	return func(c *Client) { c.ids = g }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver adds an observer. May be given several times.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observers = append(c.observers, o) }
}

// WithClock sets the clock driving call timeouts.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

func WithTransport(t transport.Transport) Option {
	return func(c *Client) { c.transport = t }
}

func WithCodec(cd codec.Codec) Option {
	return func(c *Client) { c.codec = cd }
}

// WithQuery adds query parameters to every request URL.
func WithQuery(q map[string]string) Option {
	return func(c *Client) { c.query = q }
}

// WithResolver routes calls through r instead of a fixed target. New rejects a
// non-empty target alongside it; a later Connect replaces r.
func WithResolver(r Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

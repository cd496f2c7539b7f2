// Package client issues JSON-RPC calls over HTTP.
//
// One call flows through the engine like this:
//
//	Go(method, params)
//	  → Throttle.Admit (start now, or park until a slot frees up)
//	  → pending.Register(id, timeout)           (skipped for notifications)
//	  → encode → Transport.Post → decode
//	  → pending.ResolveOrReject(id, response)   → Call settles → Throttle.Release
//
// The pending table decides the outcome: whichever of response, timeout or transport
// failure reaches it first settles the call, and that single outcome releases the
// throttle slot. Anything arriving later is dropped.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/iamfat/http-jsonrpc/codec"
	"github.com/iamfat/http-jsonrpc/idgen"
	"github.com/iamfat/http-jsonrpc/message"
	"github.com/iamfat/http-jsonrpc/pending"
	"github.com/iamfat/http-jsonrpc/throttle"
	"github.com/iamfat/http-jsonrpc/transport"
)

// Client is the calling side of a peer.
type Client struct {
	codec          codec.Codec
	transport      transport.Transport
	ids            idgen.Generator
	clock          clock.Clock
	logger         *zap.Logger
	observers      Observers
	timeout        time.Duration
	query          map[string]string
	maxConcurrency int

	pending  *pending.Table
	throttle *throttle.Throttle

	mu       sync.RWMutex
	resolver Resolver
}

// New creates a client posting to target, e.g. "http://localhost:8080/api".
// target may be empty and supplied later with Connect. It must be empty when
// WithResolver is used.
func New(target string, opts ...Option) (*Client, error) {
	c := &Client{
		codec:   codec.Default,
		clock:   clock.WallClock,
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ids == nil {
		c.ids = idgen.NewTimestamp(c.clock)
	}
	if c.transport == nil {
		h, err := transport.NewHTTP(transport.WithLogger(c.logger))
		if err != nil {
			return nil, err
		}
		c.transport = h
	}
	c.pending = pending.New(c.clock, c.logger)
	c.throttle = throttle.New(c.maxConcurrency)

	if target != "" {
		if c.resolver != nil {
			return nil, fmt.Errorf("target %q given together with a resolver", target)
		}
		if err := c.Connect(target); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Connect points the client at target. Calls already in flight keep their target.
func (c *Client) Connect(target string) error {
	t, err := transport.ParseTarget(target, c.query)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.resolver = StaticResolver{Target: t}
	c.mu.Unlock()

	c.logger.Info("HTTP-RPC connected",
		zap.String("hostname", t.Host),
		zap.Int("port", t.Port),
		zap.String("path", t.Path))
	return nil
}

// SetMaxConcurrency changes the concurrency bound at runtime; 0 means unbounded.
func (c *Client) SetMaxConcurrency(n int) {
	c.throttle.SetMax(n)
}

// MaxConcurrency returns the current concurrency bound.
func (c *Client) MaxConcurrency() int {
	return c.throttle.Max()
}

// Pending returns the number of calls waiting for a reply.
func (c *Client) Pending() int {
	return c.pending.Len()
}

// InFlight returns the number of admitted calls.
func (c *Client) InFlight() int {
	return c.throttle.InFlight()
}

// Queued returns the number of calls waiting for admission.
func (c *Client) Queued() int {
	return c.throttle.Queued()
}

// Go starts a correlated call and returns immediately. The returned Call settles
// with the peer's result or error, with message.ErrCallTimeout, or with
// message.ErrTransport when the request could not be delivered.
func (c *Client) Go(method string, params any) *Call {
	return c.start(c.ids.Next(), method, params)
}

// Notify sends a notification. The returned Call settles once the request has been
// delivered (or failed to be); no reply is awaited.
func (c *Client) Notify(method string, params any) *Call {
	return c.start("", method, params)
}

// Call performs a call and decodes its result into reply, which may be nil.
// Giving up through ctx stops the wait but not the call.
func (c *Client) Call(ctx context.Context, method string, params any, reply any) error {
	raw, err := c.Go(method, params).Wait(ctx)
	if err != nil {
		return err
	}
	return decodeResult(raw, reply)
}

func (c *Client) start(id, method string, params any) *Call {
	call := newCall(id, method)
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			c.logger.Error("cannot encode params", zap.String("method", method), zap.Error(err))
			call.settle(nil, message.Errorf(message.CodeInvalidParams, "Invalid params: %v", err))
			return call
		}
		call.Params = raw
	}

	if c.throttle.Admit(func() { c.transmit(call) }) {
		// Release may already have started it.
		call.state.CompareAndSwap(int32(StateCreated), int32(StateQueued))
		c.logger.Debug("call queued", zap.String("id", id), zap.String("method", method))
	}
	return call
}

// transmit runs once the throttle admitted the call. It must not block.
func (c *Client) transmit(call *Call) {
	call.setState(StateAdmitted)
	call.started = c.clock.Now()

	// Notifications have no pending entry to time them out.
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if call.ID == "" {
		ctx, cancel = context.WithTimeout(context.Background(), c.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	call.abort = cancel

	if call.ID != "" {
		err := c.pending.Register(call.ID, call.Method, call.Params, c.timeout, func(result json.RawMessage, rpcErr *message.Error) {
			c.finish(call, result, rpcErr)
		})
		if err != nil {
			c.logger.Error("cannot register call", zap.String("id", call.ID), zap.Error(err))
			c.finish(call, nil, message.ErrTransport)
			return
		}
	}
	go c.send(ctx, call)
}

// finish settles the call, reports it and gives the throttle slot back.
func (c *Client) finish(call *Call, result json.RawMessage, rpcErr *message.Error) {
	ev := c.event(call)
	if rpcErr != nil {
		ev.Err = rpcErr
	}
	switch {
	case rpcErr == message.ErrCallTimeout:
		c.observers.OnTimeout(ev)
	case rpcErr == message.ErrTransport:
		c.observers.OnError(ev)
	default:
		c.observers.OnResponse(ev)
	}

	call.settle(result, rpcErr)
	c.throttle.Release()
}

func (c *Client) event(call *Call) Event {
	return Event{
		ID:           call.ID,
		Method:       call.Method,
		Notification: call.ID == "",
		Elapsed:      c.clock.Now().Sub(call.started),
	}
}

func (c *Client) send(ctx context.Context, call *Call) {
	call.setState(StateTransmitting)

	env := &message.Envelope{
		Version: message.Version,
		Method:  call.Method,
		Params:  call.Params,
	}
	if call.ID != "" {
		env.ID, _ = json.Marshal(call.ID)
	}
	body, err := c.codec.Encode(env)
	if err != nil {
		c.fail(call, fmt.Errorf("encode request: %w", err))
		return
	}

	c.mu.RLock()
	resolver := c.resolver
	c.mu.RUnlock()
	if resolver == nil {
		c.fail(call, fmt.Errorf("no target address configured"))
		return
	}
	target, err := resolver.Resolve(ctx, call.Method)
	if err != nil {
		c.fail(call, err)
		return
	}

	c.observers.BeforeRequest(Event{ID: call.ID, Method: call.Method, Notification: call.ID == ""})
	c.logger.Debug("HTTP =>", zap.String("id", idOrNA(call.ID)), zap.ByteString("body", body))

	call.setState(StateAwaiting)
	resp, err := c.transport.Post(ctx, target, c.codec.ContentType(), body)
	if err == nil && !resp.OK() {
		err = &transport.StatusError{StatusCode: resp.StatusCode}
	}
	if err != nil {
		c.fail(call, err)
		return
	}

	if call.ID == "" {
		c.finish(call, nil, nil)
		return
	}
	c.receive(call, resp.Body)
}

// fail handles a request that could not be delivered.
func (c *Client) fail(call *Call, err error) {
	if call.Settled() {
		// Timed out already; the abort is what failed the request.
		return
	}
	c.logger.Error("HTTP error",
		zap.String("id", idOrNA(call.ID)),
		zap.String("method", call.Method),
		zap.Error(err))
	if call.ID == "" {
		c.finish(call, nil, message.ErrTransport)
		return
	}
	c.pending.Cancel(call.ID, message.ErrTransport)
}

// receive hands a reply to the pending table. Replies that cannot be decoded carry
// no usable id, so they are dropped and the call runs into its timeout.
func (c *Client) receive(call *Call, body []byte) {
	env, err := c.codec.Decode(body)
	if err != nil {
		c.logger.Error("HTTP ERROR: dropping undecodable response",
			zap.String("id", call.ID),
			zap.ByteString("body", body),
			zap.Error(err))
		return
	}
	id, err := env.StringID()
	if err != nil {
		c.logger.Error("HTTP ERROR: dropping response without id",
			zap.String("id", call.ID),
			zap.ByteString("body", body))
		return
	}
	c.logger.Debug("HTTP <=", zap.String("id", id), zap.ByteString("body", body))
	c.pending.ResolveOrReject(id, env)
}

func idOrNA(id string) string {
	if id == "" {
		return "N/A"
	}
	return id
}

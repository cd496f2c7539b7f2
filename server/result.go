package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/iamfat/http-jsonrpc/message"
)

// Params are the raw params of a request, as sent by the caller.
type Params json.RawMessage

// Bind decodes the params into v. Decoding failures come back as an Invalid params
// RPC error so handlers can pass them straight to Error.
func (p Params) Bind(v any) error {
	if len(p) == 0 {
		return message.NewError(message.CodeInvalidParams, "Invalid params: missing")
	}
	if err := json.Unmarshal(p, v); err != nil {
		return message.Errorf(message.CodeInvalidParams, "Invalid params: %v", err)
	}
	return nil
}

// Completion reports the outcome of a deferred handler. Only the first call counts.
type Completion func(value any, err error)

type resultKind int

const (
	kindValue resultKind = iota
	kindError
	kindDeferred
)

// Result is what a handler returns: an immediate value, an immediate error, or a
// deferred completion. Build one with Value, Error or Defer.
type Result struct {
	kind  resultKind
	value any
	err   error
	start func(Completion)
}

// Value is an immediate success. A nil value is answered with "result": null.
func Value(v any) Result {
	return Result{kind: kindValue, value: v}
}

// Error is an immediate failure. *message.Error values (anywhere in the chain) are
// sent to the caller; any other error is fatal for the request.
func Error(err error) Result {
	if err == nil {
		return Value(nil)
	}
	return Result{kind: kindError, err: err}
}

// Defer hands the request over to start, which must eventually call its Completion,
// from any goroutine. The response is written once it does.
func Defer(start func(done Completion)) Result {
	return Result{kind: kindDeferred, start: start}
}

// await resolves r to its outcome. waitErr is set when ctx ended before a deferred
// handler completed.
func await(ctx context.Context, r Result) (value any, err error, waitErr error) {
	switch r.kind {
	case kindError:
		return nil, r.err, nil
	case kindDeferred:
	default:
		return r.value, nil, nil
	}

	type outcome struct {
		value any
		err   error
	}
	ch := make(chan outcome, 1)
	var once sync.Once
	r.start(func(value any, err error) {
		once.Do(func() { ch <- outcome{value, err} })
	})

	select {
	case o := <-ch:
		return o.value, o.err, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

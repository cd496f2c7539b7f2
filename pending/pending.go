// Package pending tracks outbound calls that are waiting for their response.
//
// Every call registered here ends exactly once: when its response arrives, when its
// timer fires, or when the caller cancels it because the request could not be sent.
// Whichever comes first removes the entry and stops the timer under the table lock;
// the others find nothing and do nothing. A late response after a timeout is
// therefore dropped silently.
package pending

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/iamfat/http-jsonrpc/message"
)

// Outcome receives the end of a call. Exactly one of result / err is meaningful:
// err == nil means the call resolved with result.
type Outcome func(result json.RawMessage, err *message.Error)

// Call is one in-flight correlated call.
type Call struct {
	ID      string
	Method  string
	Params  json.RawMessage
	Started time.Time

	done  Outcome
	timer clock.Timer
}

// Table maps correlation ids to in-flight calls.
type Table struct {
	clock  clock.Clock
	logger *zap.Logger

	mu    sync.Mutex
	calls map[string]*Call
}

// New creates an empty table. Nil arguments select the wall clock and a no-op logger.
func New(clk clock.Clock, logger *zap.Logger) *Table {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		clock:  clk,
		logger: logger,
		calls:  make(map[string]*Call),
	}
}

// Register adds a call and arms its timeout. When the timer fires first the call is
// removed and done is rejected with message.ErrCallTimeout.
func (t *Table) Register(id, method string, params json.RawMessage, timeout time.Duration, done Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.calls[id]; ok {
		return fmt.Errorf("call %s already pending", id)
	}
	c := &Call{
		ID:      id,
		Method:  method,
		Params:  params,
		Started: t.clock.Now(),
		done:    done,
	}
	t.calls[id] = c
	// The callback blocks on t.mu until Register returns.
	c.timer = t.clock.AfterFunc(timeout, func() { t.expire(c) })
	return nil
}

func (t *Table) expire(c *Call) {
	t.mu.Lock()
	if t.calls[c.ID] != c {
		t.mu.Unlock()
		return
	}
	delete(t.calls, c.ID)
	t.mu.Unlock()

	t.logger.Debug("call timed out",
		zap.String("id", c.ID),
		zap.String("method", c.Method),
		zap.Duration("after", t.clock.Now().Sub(c.Started)))
	c.done(nil, message.ErrCallTimeout)
}

// take removes the call under the lock and stops its timer.
func (t *Table) take(id string) *Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok {
		return nil
	}
	delete(t.calls, id)
	c.timer.Stop()
	return c
}

// ResolveOrReject completes the call matching id with the response envelope.
// It returns false when no such call is pending.
func (t *Table) ResolveOrReject(id string, resp *message.Envelope) bool {
	c := t.take(id)
	if c == nil {
		t.logger.Debug("dropping response for unknown call", zap.String("id", id))
		return false
	}
	switch {
	case resp.HasResult():
		c.done(resp.Result, nil)
	case resp.Error != nil:
		c.done(nil, resp.Error)
	default:
		c.done(nil, message.ErrUnknown)
	}
	return true
}

// Cancel rejects the call matching id with reason. It returns false when no such
// call is pending.
func (t *Table) Cancel(id string, reason *message.Error) bool {
	c := t.take(id)
	if c == nil {
		return false
	}
	c.done(nil, reason)
	return true
}

// Len returns the number of pending calls.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// Has reports whether id is pending.
func (t *Table) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.calls[id]
	return ok
}

package client

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iamfat/http-jsonrpc/message"
)

// State is where a call is in its life cycle.
//
//	Created → Admitted | Queued → (Queued → Admitted) → Transmitting → Awaiting → Resolved | Rejected
type State int32

const (
	StateCreated State = iota
	StateQueued
	StateAdmitted
	StateTransmitting
	StateAwaiting
	StateResolved
	StateRejected
)

var stateNames = [...]string{"created", "queued", "admitted", "transmitting", "awaiting", "resolved", "rejected"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Call is an outbound call in progress. It settles exactly once, either resolved
// with a raw JSON result or rejected with an error. Errors produced by the engine or
// sent by the peer are *message.Error values.
type Call struct {
	ID     string // empty for notifications
	Method string
	Params json.RawMessage

	state   atomic.Int32
	started time.Time
	abort   context.CancelFunc

	once   sync.Once
	done   chan struct{}
	result json.RawMessage
	err    error
}

func newCall(id, method string) *Call {
	return &Call{
		ID:     id,
		Method: method,
		done:   make(chan struct{}),
	}
}

// State returns the current life cycle state.
func (c *Call) State() State {
	return State(c.state.Load())
}

func (c *Call) setState(s State) {
	c.state.Store(int32(s))
}

// settle records the outcome. Only the first call has an effect.
func (c *Call) settle(result json.RawMessage, err *message.Error) bool {
	settled := false
	c.once.Do(func() {
		if err != nil {
			c.err = err
			c.setState(StateRejected)
		} else {
			c.result = result
			c.setState(StateResolved)
		}
		if c.abort != nil {
			c.abort()
		}
		close(c.done)
		settled = true
	})
	return settled
}

// Settled reports whether the call reached a terminal state.
func (c *Call) Settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed when the call settles.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call settles or ctx is done. Giving up on the wait does not
// cancel the call; it still ends by response or timeout.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the rejection reason once settled, nil otherwise.
func (c *Call) Err() error {
	if !c.Settled() {
		return nil
	}
	return c.err
}

// Result waits for the call and decodes its result into v. A null or missing result
// leaves v untouched.
func (c *Call) Result(v any) error {
	raw, err := c.Wait(context.Background())
	if err != nil {
		return err
	}
	return decodeResult(raw, v)
}

func decodeResult(raw json.RawMessage, v any) error {
	if v == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

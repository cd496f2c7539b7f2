// Package throttle bounds the number of outbound calls in flight.
//
// Calls that arrive while the throttle is full are parked on a stack. Each Release
// starts the most recently parked call, so under load newer calls go first and the
// oldest parked call waits longest. Callers relying on fairness must not use a
// bounded throttle.
package throttle

import "sync"

// Throttle admits calls up to a maximum concurrency. The zero value is unbounded.
type Throttle struct {
	mu       sync.Mutex
	max      int
	inFlight int
	stack    []func()
}

// New returns a throttle admitting at most max concurrent calls; 0 means unbounded.
func New(max int) *Throttle {
	return &Throttle{max: max}
}

func (t *Throttle) full() bool {
	return t.max > 0 && t.inFlight >= t.max
}

// Admit runs start now if there is capacity, otherwise parks it until a Release.
// start runs on the calling goroutine and must not block.
func (t *Throttle) Admit(start func()) (queued bool) {
	t.mu.Lock()
	if t.full() {
		t.stack = append(t.stack, start)
		t.mu.Unlock()
		return true
	}
	t.inFlight++
	t.mu.Unlock()

	start()
	return false
}

// Release marks one admitted call as finished and starts the most recently parked
// call, if any. It must be called exactly once per admitted call.
func (t *Throttle) Release() {
	t.mu.Lock()
	if t.inFlight == 0 {
		t.mu.Unlock()
		panic("throttle: release without admitted call")
	}
	t.inFlight--
	next := t.popLocked()
	t.mu.Unlock()

	if next != nil {
		next()
	}
}

// popLocked takes the top of the stack and counts it as in flight. t.mu must be held.
func (t *Throttle) popLocked() func() {
	n := len(t.stack)
	if n == 0 || t.full() {
		return nil
	}
	next := t.stack[n-1]
	t.stack[n-1] = nil
	t.stack = t.stack[:n-1]
	t.inFlight++
	return next
}

// SetMax changes the concurrency limit. Raising it starts parked calls up to the new
// limit; lowering it lets in-flight calls drain naturally.
func (t *Throttle) SetMax(max int) {
	t.mu.Lock()
	t.max = max
	var started []func()
	for {
		next := t.popLocked()
		if next == nil {
			break
		}
		started = append(started, next)
	}
	t.mu.Unlock()

	for _, start := range started {
		start()
	}
}

// Max returns the configured limit.
func (t *Throttle) Max() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.max
}

// InFlight returns the number of admitted, unreleased calls.
func (t *Throttle) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

// Queued returns the number of parked calls.
func (t *Throttle) Queued() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stack)
}

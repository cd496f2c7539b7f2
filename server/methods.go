package server

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
)

// Handler serves one method.
type Handler func(ctx context.Context, params Params) Result

// methodTable maps method names to handlers. Lookups take the read lock, so a
// pattern removal is never seen half done.
type methodTable struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func (m *methodTable) set(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = make(map[string]Handler)
	}
	m.handlers[name] = h
}

func (m *methodTable) lookup(name string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[name]
	return h, ok
}

func (m *methodTable) remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, name)
}

func (m *methodTable) removeMatching(pattern string) (int, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for name := range m.handlers {
		if ok, _ := path.Match(pattern, name); ok {
			delete(m.handlers, name)
			n++
		}
	}
	return n, nil
}

func (m *methodTable) names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register installs h for name, replacing any earlier handler.
func (s *Server) Register(name string, h Handler) {
	s.methods.set(name, h)
}

// RegisterFunc installs a synchronous handler.
func (s *Server) RegisterFunc(name string, fn func(ctx context.Context, params Params) (any, error)) {
	s.Register(name, func(ctx context.Context, params Params) Result {
		v, err := fn(ctx, params)
		if err != nil {
			return Error(err)
		}
		return Value(v)
	})
}

// Unregister removes the handler for name, if any.
func (s *Server) Unregister(name string) {
	s.methods.remove(name)
}

// UnregisterMatching removes every handler whose name matches the shell glob
// pattern ("*", "?", "[a-z]") and returns how many were removed. Note that "*"
// does not match "/".
func (s *Server) UnregisterMatching(pattern string) (int, error) {
	return s.methods.removeMatching(pattern)
}

// Methods lists the registered method names in order.
func (s *Server) Methods() []string {
	return s.methods.names()
}

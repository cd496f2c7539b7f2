package registry

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Registry. TTLs are ignored.
type Memory struct {
	mu       sync.Mutex
	services map[string]map[string]Endpoint
	watchers map[string][]chan []Endpoint
}

func NewMemory() *Memory {
	return &Memory{
		services: make(map[string]map[string]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
}

func (m *Memory) Register(ctx context.Context, service string, endpoint Endpoint, ttl int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.services[service] == nil {
		m.services[service] = make(map[string]Endpoint)
	}
	m.services[service][endpoint.URL] = endpoint
	m.notifyLocked(service)
	return nil
}

func (m *Memory) Deregister(ctx context.Context, service string, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services[service], url)
	m.notifyLocked(service)
	return nil
}

func (m *Memory) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(service), nil
}

func (m *Memory) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	m.mu.Lock()
	m.watchers[service] = append(m.watchers[service], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[service]
		for i, w := range ws {
			if w == ch {
				m.watchers[service] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// listLocked returns endpoints sorted by URL so picks are reproducible.
func (m *Memory) listLocked(service string) []Endpoint {
	endpoints := make([]Endpoint, 0, len(m.services[service]))
	for _, ep := range m.services[service] {
		endpoints = append(endpoints, ep)
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].URL < endpoints[j].URL })
	return endpoints
}

// notifyLocked replaces any unread update with the latest list.
func (m *Memory) notifyLocked(service string) {
	list := m.listLocked(service)
	for _, ch := range m.watchers[service] {
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}

// Package registry publishes and discovers the HTTP endpoints serving a JSON-RPC service.
package registry

import "context"

// Endpoint is one server instance able to answer calls for a service.
type Endpoint struct {
	URL     string `json:"url"`              // e.g. "http://10.0.0.5:8080/api"
	Weight  int    `json:"weight,omitempty"` // Weight for load balancing
	Version string `json:"version,omitempty"`
}

type Registry interface {
	// Register publishes an endpoint. It disappears after ttl seconds unless the
	// implementation keeps it alive.
	Register(ctx context.Context, service string, endpoint Endpoint, ttl int64) error
	Deregister(ctx context.Context, service string, url string) error
	Discover(ctx context.Context, service string) ([]Endpoint, error)
	// Watch emits the full endpoint list whenever it changes, until ctx is done.
	Watch(ctx context.Context, service string) <-chan []Endpoint
}

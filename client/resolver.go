package client

import (
	"context"
	"fmt"

	"github.com/iamfat/http-jsonrpc/loadbalance"
	"github.com/iamfat/http-jsonrpc/registry"
	"github.com/iamfat/http-jsonrpc/transport"
)

// Resolver decides where a call is posted.
type Resolver interface {
	Resolve(ctx context.Context, method string) (transport.Target, error)
}

// StaticResolver always returns the same target.
type StaticResolver struct {
	Target transport.Target
}

func (r StaticResolver) Resolve(context.Context, string) (transport.Target, error) {
	return r.Target, nil
}

// DiscoveryResolver looks the service up in a registry on every call and lets the
// balancer pick one endpoint. Query is merged into the chosen endpoint URL.
type DiscoveryResolver struct {
	Registry registry.Registry
	Balancer loadbalance.Balancer
	Service  string
	Query    map[string]string
}

func (r *DiscoveryResolver) Resolve(ctx context.Context, method string) (transport.Target, error) {
	endpoints, err := r.Registry.Discover(ctx, r.Service)
	if err != nil {
		return transport.Target{}, fmt.Errorf("discover %s: %w", r.Service, err)
	}
	ep, err := r.Balancer.Pick(endpoints, method)
	if err != nil {
		return transport.Target{}, fmt.Errorf("pick endpoint for %s: %w", r.Service, err)
	}
	return transport.ParseTarget(ep.URL, r.Query)
}

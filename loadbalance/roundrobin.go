package loadbalance

import (
	"sync/atomic"

	"github.com/iamfat/http-jsonrpc/registry"
)

// RoundRobin cycles through the endpoints in order using an atomic counter.
type RoundRobin struct {
	counter atomic.Uint64
}

func (b *RoundRobin) Pick(endpoints []registry.Endpoint, _ string) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	n := b.counter.Add(1) - 1
	return &endpoints[n%uint64(len(endpoints))], nil
}

func (b *RoundRobin) Name() string {
	return "round_robin"
}

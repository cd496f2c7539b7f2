// Package loadbalance picks which discovered endpoint receives a call.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity endpoints
//   - WeightedRandom:  endpoints with different capacity
//   - ConsistentHash:  the same method always lands on the same endpoint
package loadbalance

import (
	"errors"
	"fmt"

	"github.com/iamfat/http-jsonrpc/registry"
)

// ErrNoEndpoints is returned when there is nothing to pick from.
var ErrNoEndpoints = errors.New("no endpoints available")

// Balancer selects one endpoint per call. Pick is called on every call and must be
// goroutine-safe. key is the method name; strategies that do not need it ignore it.
type Balancer interface {
	Pick(endpoints []registry.Endpoint, key string) (*registry.Endpoint, error)
	Name() string
}

// ByName returns a strategy by its configuration name.
func ByName(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobin{}, nil
	case "weighted_random":
		return &WeightedRandom{}, nil
	case "consistent_hash":
		return NewConsistentHash(0), nil
	}
	return nil, fmt.Errorf("unknown balancer %q", name)
}

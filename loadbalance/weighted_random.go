package loadbalance

import (
	"math/rand/v2"

	"github.com/iamfat/http-jsonrpc/registry"
)

// WeightedRandom picks an endpoint with probability proportional to its weight.
// Endpoints without a weight count as weight 1.
type WeightedRandom struct{}

func weight(ep registry.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}

func (b *WeightedRandom) Pick(endpoints []registry.Endpoint, _ string) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	total := 0
	for _, ep := range endpoints {
		total += weight(ep)
	}
	r := rand.IntN(total)
	for i := range endpoints {
		r -= weight(endpoints[i])
		if r < 0 {
			return &endpoints[i], nil
		}
	}
	return &endpoints[len(endpoints)-1], nil
}

func (b *WeightedRandom) Name() string {
	return "weighted_random"
}

package loadbalance

import (
	"hash/crc32"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/iamfat/http-jsonrpc/registry"
)

// ConsistentHash maps keys onto a hash ring of endpoints so the same method keeps
// hitting the same server while the endpoint set is stable. Each endpoint owns
// several virtual nodes to even out the ring. The ring is rebuilt whenever the
// endpoint set passed to Pick changes.
type ConsistentHash struct {
	replicas int

	mu    sync.Mutex
	sig   string
	ring  []uint32
	nodes map[uint32]registry.Endpoint
}

// NewConsistentHash creates a ring with the given number of virtual nodes per
// endpoint (100 when replicas <= 0).
func NewConsistentHash(replicas int) *ConsistentHash {
	if replicas <= 0 {
		replicas = 100
	}
	return &ConsistentHash{replicas: replicas}
}

func signature(endpoints []registry.Endpoint) string {
	urls := make([]string, len(endpoints))
	for i, ep := range endpoints {
		urls[i] = ep.URL
	}
	sort.Strings(urls)
	return strings.Join(urls, "\n")
}

// rebuildLocked lays the virtual nodes "{url}#{i}" out on the ring. b.mu must be held.
func (b *ConsistentHash) rebuildLocked(endpoints []registry.Endpoint, sig string) {
	b.sig = sig
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]registry.Endpoint, len(endpoints)*b.replicas)
	for _, ep := range endpoints {
		for i := 0; i < b.replicas; i++ {
			h := crc32.ChecksumIEEE([]byte(ep.URL + "#" + strconv.Itoa(i)))
			b.ring = append(b.ring, h)
			b.nodes[h] = ep
		}
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

func (b *ConsistentHash) Pick(endpoints []registry.Endpoint, key string) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if sig := signature(endpoints); sig != b.sig {
		b.rebuildLocked(endpoints, sig)
	}

	h := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= h })
	if idx == len(b.ring) {
		idx = 0
	}
	ep := b.nodes[b.ring[idx]]
	return &ep, nil
}

func (b *ConsistentHash) Name() string {
	return "consistent_hash"
}

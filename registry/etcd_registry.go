package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/http-jsonrpc/"

// Etcd implements Registry using etcd v3.
//
//	Key:   /http-jsonrpc/{service}/{endpoint url}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL leases kept alive in the background: if the server process
// dies the lease expires and the endpoint is removed without a Deregister.
type Etcd struct {
	client *clientv3.Client
	logger *zap.Logger
}

// NewEtcd connects to the given etcd endpoints.
func NewEtcd(endpoints []string, logger *zap.Logger) (*Etcd, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &Etcd{client: c, logger: logger}, nil
}

func servicePrefix(service string) string {
	return keyPrefix + service + "/"
}

// Register puts the endpoint under a fresh lease and keeps the lease alive until the
// client is closed. The lease id stays local so one Etcd can serve several servers.
func (r *Etcd) Register(ctx context.Context, service string, endpoint Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}
	val, err := json.Marshal(endpoint)
	if err != nil {
		return err
	}
	_, err = r.client.Put(ctx, servicePrefix(service)+endpoint.URL, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// Renewal must outlive the registration request.
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("endpoint lease ended", zap.String("service", service), zap.String("url", endpoint.URL))
	}()
	return nil
}

func (r *Etcd) Deregister(ctx context.Context, service string, url string) error {
	_, err := r.client.Delete(ctx, servicePrefix(service)+url)
	return err
}

func (r *Etcd) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			r.logger.Error("skipping malformed endpoint", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Watch re-reads the full list on every change under the service prefix.
func (r *Etcd) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, servicePrefix(service), clientv3.WithPrefix()) {
			endpoints, err := r.Discover(ctx, service)
			if err != nil {
				r.logger.Error("watch discover failed", zap.String("service", service), zap.Error(err))
				continue
			}
			select {
			case ch <- endpoints:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Close releases the etcd connection; leases stop being renewed.
func (r *Etcd) Close() error {
	return r.client.Close()
}

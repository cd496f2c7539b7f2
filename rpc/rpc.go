// Package rpc is the entry point: Connect for calling, NewServer for answering, and
// Peer for a process that does both.
//
//	c, _ := rpc.Connect("http://localhost:8080/api")
//	var reply string
//	err := c.Call(ctx, "foo", map[string]string{"foo": "bar"}, &reply)
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/iamfat/http-jsonrpc/client"
	"github.com/iamfat/http-jsonrpc/config"
	"github.com/iamfat/http-jsonrpc/idgen"
	"github.com/iamfat/http-jsonrpc/loadbalance"
	"github.com/iamfat/http-jsonrpc/message"
	"github.com/iamfat/http-jsonrpc/metrics"
	"github.com/iamfat/http-jsonrpc/middleware"
	"github.com/iamfat/http-jsonrpc/registry"
	"github.com/iamfat/http-jsonrpc/server"
)

// Connect creates a client posting to url.
func Connect(url string, opts ...client.Option) (*client.Client, error) {
	return client.New(url, opts...)
}

// NewServer creates a server with no methods.
func NewServer(opts ...server.Option) *server.Server {
	return server.New(opts...)
}

// NewError is the error handlers return to fail a call deliberately.
func NewError(code int, msg string) *message.Error {
	return message.NewError(code, msg)
}

// Peer is a client and a server sharing one configuration.
type Peer struct {
	Client *client.Client
	Server *server.Server

	cfg      *config.Config
	logger   *zap.Logger
	registry registry.Registry
	closer   func() error
}

// NewPeerFromConfig builds a peer from cfg. A nil logger is built from cfg.LogLevel;
// with a non-nil reg the peer's metrics are registered there.
func NewPeerFromConfig(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Peer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		var err error
		if logger, err = config.NewLogger(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	p := &Peer{cfg: cfg, logger: logger}

	ids, _ := idgen.ByName(cfg.IDGenerator)
	clientOpts := []client.Option{
		client.WithTimeout(cfg.Timeout),
		client.WithMaxConcurrency(cfg.MaxConcurrency),
		client.WithIDGenerator(ids),
		client.WithLogger(logger.Named("client")),
		client.WithQuery(cfg.Query),
	}
	serverOpts := []server.Option{
		server.WithLogger(logger.Named("server")),
		server.WithMaxContentLength(cfg.MaxContentLength),
	}
	mws := []middleware.Middleware{middleware.Logging(logger.Named("server"))}

	if reg != nil {
		cc := metrics.NewClientCollector()
		sc := metrics.NewServerCollector()
		for _, c := range []prometheus.Collector{cc, sc} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register metrics: %w", err)
			}
		}
		clientOpts = append(clientOpts, client.WithObserver(cc))
		mws = append(mws, sc.Middleware())
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.HandlerTimeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.HandlerTimeout))
	}
	serverOpts = append(serverOpts, server.WithMiddleware(mws...))

	endpoint := cfg.Endpoint
	if len(cfg.EtcdEndpoints) > 0 {
		etcd, err := registry.NewEtcd(cfg.EtcdEndpoints, logger.Named("registry"))
		if err != nil {
			return nil, err
		}
		p.registry, p.closer = etcd, etcd.Close
		balancer, _ := loadbalance.ByName(cfg.Balancer)
		clientOpts = append(clientOpts, client.WithResolver(&client.DiscoveryResolver{
			Registry: etcd,
			Balancer: balancer,
			Service:  cfg.Service,
			Query:    cfg.Query,
		}))
		endpoint = ""
	}

	c, err := client.New(endpoint, clientOpts...)
	if err != nil {
		p.close()
		return nil, err
	}
	if reg != nil {
		if err := reg.Register(metrics.NewStateCollector(c, cfg.Service)); err != nil {
			p.close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	p.Client = c
	p.Server = server.New(serverOpts...)
	return p, nil
}

// UseRegistry makes the peer announce itself in reg instead of the configured etcd.
func (p *Peer) UseRegistry(reg registry.Registry) {
	p.registry = reg
}

// ListenAndServe serves on the configured listen address until Shutdown.
func (p *Peer) ListenAndServe(ctx context.Context) error {
	if p.cfg.Listen == "" {
		return errors.New("no listen address configured")
	}
	l, err := net.Listen("tcp", p.cfg.Listen)
	if err != nil {
		return err
	}
	return p.Serve(ctx, l)
}

// Serve announces the peer when a registry, a service and an advertise URL are
// configured, then serves on l until Shutdown.
func (p *Peer) Serve(ctx context.Context, l net.Listener) error {
	if p.registry != nil && p.cfg.Service != "" && p.cfg.AdvertiseURL != "" {
		ep := registry.Endpoint{URL: p.cfg.AdvertiseURL, Weight: 1}
		if err := p.Server.Announce(ctx, p.registry, p.cfg.Service, ep, p.cfg.RegistryTTL); err != nil {
			l.Close()
			return err
		}
	}
	return p.Server.Serve(l)
}

// Shutdown stops the server, withdrawing its announcement first, and releases the
// registry connection.
func (p *Peer) Shutdown(ctx context.Context) error {
	err := p.Server.Shutdown(ctx)
	if cerr := p.close(); err == nil {
		err = cerr
	}
	return err
}

func (p *Peer) close() error {
	if p.closer == nil {
		return nil
	}
	closer := p.closer
	p.closer = nil
	return closer()
}

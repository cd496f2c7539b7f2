package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iamfat/http-jsonrpc/message"
	"github.com/iamfat/http-jsonrpc/middleware"
)

// ServerCollector counts served requests. Install Middleware on the server and
// register the collector with a prometheus.Registerer.
type ServerCollector struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	active   prometheus.Gauge
}

// NewServerCollector returns a new ServerCollector.
func NewServerCollector() *ServerCollector {
	return &ServerCollector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "requests_total",
				Help:      "The number of dispatched requests by method and error code (0 for success).",
			}, []string{"method", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "request_duration_seconds",
				Help:      "The time spent in handlers, deferred completions included.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			}, []string{"method"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "active_requests",
				Help:      "The number of requests being handled.",
			},
		),
	}
}

// Middleware records every request passing through it. Fatal handler failures are
// counted with code "fatal".
func (c *ServerCollector) Middleware() middleware.Middleware {
	return func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
			c.active.Inc()
			start := time.Now()
			resp, err := next(ctx, req)
			c.active.Dec()

			code := "0"
			switch {
			case err != nil:
				code = "fatal"
			case resp != nil && resp.Error != nil:
				code = strconv.Itoa(resp.Error.Code)
			}
			c.requests.WithLabelValues(req.Method, code).Inc()
			c.duration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
			return resp, err
		}
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *ServerCollector) Describe(ch chan<- *prometheus.Desc) {
	c.requests.Describe(ch)
	c.duration.Describe(ch)
	c.active.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *ServerCollector) Collect(ch chan<- prometheus.Metric) {
	c.requests.Collect(ch)
	c.duration.Collect(ch)
	c.active.Collect(ch)
}

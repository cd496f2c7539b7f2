// Package metrics exposes Prometheus collectors for both sides of a peer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iamfat/http-jsonrpc/client"
)

const namespace = "httprpc"

// Call outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeTransport = "transport"
)

// ClientCollector counts calls by method and outcome. It is a client.Observer;
// register it with client.WithObserver and with a prometheus.Registerer.
type ClientCollector struct {
	sent     *prometheus.CounterVec
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ client.Observer = (*ClientCollector)(nil)

// NewClientCollector returns a new ClientCollector.
func NewClientCollector() *ClientCollector {
	return &ClientCollector{
		sent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "requests_sent_total",
				Help:      "The number of requests posted, notifications included.",
			}, []string{"method"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "calls_total",
				Help:      "The number of settled calls by outcome.",
			}, []string{"method", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "call_duration_seconds",
				Help:      "The time from admission to settlement of a call.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			}, []string{"method"},
		),
	}
}

func (c *ClientCollector) BeforeRequest(e client.Event) {
	c.sent.WithLabelValues(e.Method).Inc()
}

func (c *ClientCollector) OnResponse(e client.Event) {
	outcome := OutcomeOK
	if e.Err != nil {
		outcome = OutcomeError
	}
	c.settled(e, outcome)
}

func (c *ClientCollector) OnTimeout(e client.Event) {
	c.settled(e, OutcomeTimeout)
}

func (c *ClientCollector) OnError(e client.Event) {
	c.settled(e, OutcomeTransport)
}

func (c *ClientCollector) settled(e client.Event, outcome string) {
	c.calls.WithLabelValues(e.Method, outcome).Inc()
	c.duration.WithLabelValues(e.Method).Observe(e.Elapsed.Seconds())
}

// Describe is part of the prometheus.Collector interface.
func (c *ClientCollector) Describe(ch chan<- *prometheus.Desc) {
	c.sent.Describe(ch)
	c.calls.Describe(ch)
	c.duration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *ClientCollector) Collect(ch chan<- prometheus.Metric) {
	c.sent.Collect(ch)
	c.calls.Collect(ch)
	c.duration.Collect(ch)
}

// ClientState is the engine state a client exposes; *client.Client implements it.
type ClientState interface {
	Pending() int
	InFlight() int
	Queued() int
}

// StateCollector samples a client's pending, in-flight and queued counts on every
// scrape.
type StateCollector struct {
	pending  prometheus.GaugeFunc
	inFlight prometheus.GaugeFunc
	queued   prometheus.GaugeFunc
}

// NewStateCollector returns a StateCollector for state. label names the client in
// the "client" const label.
func NewStateCollector(state ClientState, label string) *StateCollector {
	gauge := func(name, help string, fn func() int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "client",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"client": label},
		}, func() float64 { return float64(fn()) })
	}
	return &StateCollector{
		pending:  gauge("pending_calls", "Calls waiting for their response.", state.Pending),
		inFlight: gauge("in_flight_calls", "Calls admitted by the throttle.", state.InFlight),
		queued:   gauge("queued_calls", "Calls waiting for a throttle slot.", state.Queued),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	c.pending.Describe(ch)
	c.inFlight.Describe(ch)
	c.queued.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	c.pending.Collect(ch)
	c.inFlight.Collect(ch)
	c.queued.Collect(ch)
}

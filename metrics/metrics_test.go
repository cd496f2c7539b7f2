package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iamfat/http-jsonrpc/client"
	"github.com/iamfat/http-jsonrpc/message"
	"github.com/iamfat/http-jsonrpc/server"
)

func TestClientCollector(t *testing.T) {
	s := server.New()
	s.RegisterFunc("ok", func(context.Context, server.Params) (any, error) { return 1, nil })
	s.RegisterFunc("bad", func(context.Context, server.Params) (any, error) {
		return nil, message.NewError(3, "bad")
	})
	srv := httptest.NewServer(s)
	defer srv.Close()

	collector := NewClientCollector()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(collector); err != nil {
		t.Fatal(err)
	}

	c, err := client.New(srv.URL, client.WithObserver(collector))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = c.Call(ctx, "ok", nil, nil)
	_ = c.Call(ctx, "ok", nil, nil)
	_ = c.Call(ctx, "bad", nil, nil)

	if got := testutil.ToFloat64(collector.sent.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expect 2 sent, got %v", got)
	}
	if got := testutil.ToFloat64(collector.calls.WithLabelValues("ok", OutcomeOK)); got != 2 {
		t.Fatalf("expect 2 ok calls, got %v", got)
	}
	if got := testutil.ToFloat64(collector.calls.WithLabelValues("bad", OutcomeError)); got != 1 {
		t.Fatalf("expect 1 failed call, got %v", got)
	}
	if n := testutil.CollectAndCount(collector, "httprpc_client_call_duration_seconds"); n != 2 {
		t.Fatalf("expect 2 duration series, got %d", n)
	}
}

func TestClientCollectorTransport(t *testing.T) {
	collector := NewClientCollector()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c, err := client.New(srv.URL, client.WithObserver(collector))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Call(context.Background(), "gone", nil, nil); err == nil {
		t.Fatal("expect transport error")
	}
	if got := testutil.ToFloat64(collector.calls.WithLabelValues("gone", OutcomeTransport)); got != 1 {
		t.Fatalf("expect 1 transport failure, got %v", got)
	}
}

func TestClientCollectorTimeout(t *testing.T) {
	collector := NewClientCollector()
	collector.OnTimeout(client.Event{Method: "slow", Elapsed: time.Second})
	if got := testutil.ToFloat64(collector.calls.WithLabelValues("slow", OutcomeTimeout)); got != 1 {
		t.Fatalf("expect 1 timeout, got %v", got)
	}
}

type fakeState struct{ pending, inFlight, queued int }

func (s fakeState) Pending() int  { return s.pending }
func (s fakeState) InFlight() int { return s.inFlight }
func (s fakeState) Queued() int   { return s.queued }

func TestStateCollector(t *testing.T) {
	collector := NewStateCollector(fakeState{pending: 2, inFlight: 3, queued: 4}, "test")

	expected := `
# HELP httprpc_client_queued_calls Calls waiting for a throttle slot.
# TYPE httprpc_client_queued_calls gauge
httprpc_client_queued_calls{client="test"} 4
`
	if err := testutil.CollectAndCompare(collector, strings.NewReader(expected), "httprpc_client_queued_calls"); err != nil {
		t.Fatal(err)
	}
	if n := testutil.CollectAndCount(collector); n != 3 {
		t.Fatalf("expect 3 gauges, got %d", n)
	}
}

func TestServerCollector(t *testing.T) {
	collector := NewServerCollector()
	s := server.New(server.WithMiddleware(collector.Middleware()))
	s.RegisterFunc("ok", func(context.Context, server.Params) (any, error) { return 1, nil })
	s.RegisterFunc("explode", func(context.Context, server.Params) (any, error) { return nil, errors.New("boom") })

	ctx := context.Background()
	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"ok","id":"1"}`,
		`{"jsonrpc":"2.0","method":"ok"}`,
		`{"jsonrpc":"2.0","method":"missing","id":"2"}`,
		`{"jsonrpc":"2.0","method":"explode","id":"3"}`,
	} {
		_, _ = s.Handle(ctx, []byte(body))
	}

	if got := testutil.ToFloat64(collector.requests.WithLabelValues("ok", "0")); got != 2 {
		t.Fatalf("expect 2 ok requests, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requests.WithLabelValues("missing", "-32601")); got != 1 {
		t.Fatalf("expect 1 method not found, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requests.WithLabelValues("explode", "fatal")); got != 1 {
		t.Fatalf("expect 1 fatal, got %v", got)
	}
	if got := testutil.ToFloat64(collector.active); got != 0 {
		t.Fatalf("expect no active requests, got %v", got)
	}
}

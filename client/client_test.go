package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iamfat/http-jsonrpc/loadbalance"
	"github.com/iamfat/http-jsonrpc/message"
	"github.com/iamfat/http-jsonrpc/registry"
)

// rpcServer answers every request with whatever reply returns. A nil reply
// answers 204 with no body.
func rpcServer(t *testing.T, reply func(r *http.Request, req *message.Envelope) *message.Envelope) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req message.Envelope
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := reply(r, &req)
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		resp.Version = message.Version
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func result(req *message.Envelope, v any) *message.Envelope {
	resp, _ := message.NewResult(req.ID, v)
	return resp
}

func wait(t *testing.T, call *Call) (json.RawMessage, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := call.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("call %s never settled", call.Method)
	}
	return raw, err
}

func TestClientCall(t *testing.T) {
	srv := rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
		if req.Method != "foo" {
			return message.NewErrorResponse(req.ID, message.ErrMethodNotFound)
		}
		return result(req, "bar")
	})

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	var reply string
	if err := c.Call(context.Background(), "foo", nil, &reply); err != nil {
		t.Fatal(err)
	}
	if reply != "bar" {
		t.Fatalf("expect bar, got %v", reply)
	}
	if c.Pending() != 0 {
		t.Fatalf("expect no pending calls, got %d", c.Pending())
	}
	if c.InFlight() != 0 {
		t.Fatalf("expect nothing in flight, got %d", c.InFlight())
	}
}

func TestClientCallParams(t *testing.T) {
	type args struct{ A, B int }
	srv := rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
		var a args
		if err := json.Unmarshal(req.Params, &a); err != nil {
			return message.NewErrorResponse(req.ID, message.NewError(message.CodeInvalidParams, "Invalid params"))
		}
		return result(req, a.A+a.B)
	})

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	var sum int
	if err := c.Call(context.Background(), "add", args{A: 10, B: 20}, &sum); err != nil {
		t.Fatal(err)
	}
	if sum != 30 {
		t.Fatalf("expect 30, got %v", sum)
	}
}

func TestClientPeerError(t *testing.T) {
	srv := rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
		return message.NewErrorResponse(req.ID, message.NewError(9628, "mocha"))
	})

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	_, err = wait(t, c.Go("latte", nil))
	rpcErr, ok := message.AsError(err)
	if !ok {
		t.Fatalf("expect *message.Error, got %T", err)
	}
	if rpcErr.Code != 9628 || rpcErr.Message != "mocha" {
		t.Fatalf("expect 9628 mocha, got %d %s", rpcErr.Code, rpcErr.Message)
	}
}

func TestClientVoidResult(t *testing.T) {
	srv := rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
		return result(req, nil)
	})

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	call := c.Go("ping", nil)
	raw, err := wait(t, call)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "null" {
		t.Fatalf("expect null, got %s", raw)
	}
	if call.State() != StateResolved {
		t.Fatalf("expect resolved, got %v", call.State())
	}
}

func TestClientResponseWithoutResultOrError(t *testing.T) {
	srv := rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
		return &message.Envelope{ID: req.ID}
	})

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	_, err = wait(t, c.Go("odd", nil))
	if !errors.Is(err, message.ErrUnknown) {
		t.Fatalf("expect %v, got %v", message.ErrUnknown, err)
	}
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	srv := rpcServer(t, func(r *http.Request, req *message.Envelope) *message.Envelope {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		return result(req, "late")
	})

	clk := testclock.NewClock(time.Now())
	c, err := New(srv.URL, WithClock(clk), WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}

	call := c.Go("slow", nil)
	if c.Pending() != 1 {
		t.Fatalf("expect 1 pending call, got %d", c.Pending())
	}
	if err := clk.WaitAdvance(time.Second, 5*time.Second, 1); err != nil {
		t.Fatal(err)
	}

	_, err = wait(t, call)
	if !errors.Is(err, message.ErrCallTimeout) {
		t.Fatalf("expect call timeout, got %v", err)
	}
	if err.Error() != "jsonrpc error -32603: Call Timeout" {
		t.Fatalf("unexpected error text %q", err.Error())
	}
	if c.Pending() != 0 {
		t.Fatalf("expect pending table empty, got %d", c.Pending())
	}
	if c.InFlight() != 0 {
		t.Fatalf("expect slot released, got %d in flight", c.InFlight())
	}
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	_, err = wait(t, c.Go("foo", nil))
	if !errors.Is(err, message.ErrTransport) {
		t.Fatalf("expect transport error, got %v", err)
	}
	if c.Pending() != 0 {
		t.Fatalf("expect no pending calls, got %d", c.Pending())
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	if err != nil {
		t.Fatal(err)
	}
	_, err = wait(t, c.Go("foo", nil))
	if !errors.Is(err, message.ErrTransport) {
		t.Fatalf("expect transport error, got %v", err)
	}
}

func TestClientConnectLater(t *testing.T) {
	srv := rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
		return result(req, "bar")
	})

	c, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	_, err = wait(t, c.Go("foo", nil))
	if !errors.Is(err, message.ErrTransport) {
		t.Fatalf("expect transport error without target, got %v", err)
	}

	if err := c.Connect(srv.URL); err != nil {
		t.Fatal(err)
	}
	raw, err := wait(t, c.Go("foo", nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `"bar"` {
		t.Fatalf("expect \"bar\", got %s", raw)
	}
}

func TestClientConnectLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c, err := New("", WithLogger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect("https://rpc.example.com/api"); err != nil {
		t.Fatal(err)
	}
	entries := logs.FilterMessage("HTTP-RPC connected").All()
	if len(entries) != 1 {
		t.Fatalf("expect 1 connect entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["hostname"] != "rpc.example.com" || fields["port"] != int64(443) || fields["path"] != "/api" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestClientBadTarget(t *testing.T) {
	if _, err := New("ftp://example.com"); err == nil {
		t.Fatal("expect error for non-http scheme")
	}
}

func TestClientDropsUndecodableResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "definitely not json")
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.ErrorLevel)
	clk := testclock.NewClock(time.Now())
	c, err := New(srv.URL, WithClock(clk), WithTimeout(time.Second), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}

	call := c.Go("foo", nil)
	deadline := time.Now().Add(5 * time.Second)
	for logs.FilterMessageSnippet("undecodable").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expect undecodable response to be logged")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if call.Settled() {
		t.Fatal("expect call still pending after bad response")
	}

	if err := clk.WaitAdvance(time.Second, 5*time.Second, 1); err != nil {
		t.Fatal(err)
	}
	_, err = wait(t, call)
	if !errors.Is(err, message.ErrCallTimeout) {
		t.Fatalf("expect call timeout, got %v", err)
	}
}

func TestClientInvalidParams(t *testing.T) {
	c, err := New("http://localhost:1")
	if err != nil {
		t.Fatal(err)
	}
	_, err = wait(t, c.Go("foo", func() {}))
	rpcErr, ok := message.AsError(err)
	if !ok || rpcErr.Code != message.CodeInvalidParams {
		t.Fatalf("expect invalid params, got %v", err)
	}
	if c.InFlight() != 0 {
		t.Fatalf("expect nothing admitted, got %d", c.InFlight())
	}
}

func TestClientNotify(t *testing.T) {
	got := make(chan *message.Envelope, 1)
	srv := rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
		got <- req
		return nil
	})

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	call := c.Notify("log", []string{"hello"})
	if _, err := wait(t, call); err != nil {
		t.Fatal(err)
	}

	req := <-got
	if req.Method != "log" {
		t.Fatalf("expect log, got %s", req.Method)
	}
	if req.HasID() {
		t.Fatalf("expect no id on notification, got %s", req.ID)
	}
	if c.Pending() != 0 {
		t.Fatalf("notification must not be pending, got %d", c.Pending())
	}
}

func TestClientNotifyTimeout(t *testing.T) {
	aborted := make(chan struct{})
	srv := rpcServer(t, func(r *http.Request, req *message.Envelope) *message.Envelope {
		<-r.Context().Done()
		close(aborted)
		return nil
	})

	c, err := New(srv.URL, WithTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	call := c.Notify("log", "hello")
	if _, err := wait(t, call); !errors.Is(err, message.ErrTransport) {
		t.Fatalf("expect transport error, got %v", err)
	}
	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("expect request aborted")
	}
	if c.InFlight() != 0 {
		t.Fatalf("expect slot released, got %d in flight", c.InFlight())
	}
}

func TestClientMaxConcurrency(t *testing.T) {
	var cur, peak atomic.Int32
	srv := rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		cur.Add(-1)
		return result(req, req.Method)
	})

	c, err := New(srv.URL, WithMaxConcurrency(2))
	if err != nil {
		t.Fatal(err)
	}

	calls := make([]*Call, 6)
	for i := range calls {
		calls[i] = c.Go("work", nil)
	}
	if c.Queued() != 4 {
		t.Fatalf("expect 4 queued calls, got %d", c.Queued())
	}
	for _, call := range calls {
		if _, err := wait(t, call); err != nil {
			t.Fatal(err)
		}
	}
	if peak.Load() > 2 {
		t.Fatalf("expect at most 2 concurrent requests, got %d", peak.Load())
	}
	if c.InFlight() != 0 || c.Queued() != 0 {
		t.Fatalf("expect idle client, got %d in flight %d queued", c.InFlight(), c.Queued())
	}
}

func TestClientSetMaxConcurrency(t *testing.T) {
	release := make(chan struct{})
	srv := rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
		<-release
		return result(req, true)
	})

	c, err := New(srv.URL, WithMaxConcurrency(1))
	if err != nil {
		t.Fatal(err)
	}
	a := c.Go("a", nil)
	b := c.Go("b", nil)
	if b.State() != StateQueued {
		t.Fatalf("expect b queued, got %v", b.State())
	}

	c.SetMaxConcurrency(0)
	if c.Queued() != 0 {
		t.Fatalf("expect queue drained, got %d", c.Queued())
	}
	if c.MaxConcurrency() != 0 {
		t.Fatalf("expect unbounded, got %d", c.MaxConcurrency())
	}
	close(release)
	for _, call := range []*Call{a, b} {
		if _, err := wait(t, call); err != nil {
			t.Fatal(err)
		}
	}
}

func TestClientObserver(t *testing.T) {
	srv := rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
		if req.Method == "bad" {
			return message.NewErrorResponse(req.ID, message.NewError(1, "nope"))
		}
		return result(req, 1)
	})

	var mu sync.Mutex
	var events []string
	record := func(kind string) func(Event) {
		return func(e Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, kind+":"+e.Method)
		}
	}
	obs := ObserverFuncs{
		Before:   record("before"),
		Response: record("response"),
		Timeout:  record("timeout"),
		Error:    record("error"),
	}

	c, err := New(srv.URL, WithObserver(obs))
	if err != nil {
		t.Fatal(err)
	}
	_, _ = wait(t, c.Go("good", nil))
	_, _ = wait(t, c.Go("bad", nil))

	mu.Lock()
	defer mu.Unlock()
	expect := []string{"before:good", "response:good", "before:bad", "response:bad"}
	if len(events) != len(expect) {
		t.Fatalf("expect %v, got %v", expect, events)
	}
	for i := range expect {
		if events[i] != expect[i] {
			t.Fatalf("expect %v, got %v", expect, events)
		}
	}
}

func TestClientDiscoveryResolver(t *testing.T) {
	var hits [2]atomic.Int32
	servers := make([]*httptest.Server, 2)
	for i := range servers {
		i := i
		servers[i] = rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
			hits[i].Add(1)
			return result(req, i)
		})
	}

	reg := registry.NewMemory()
	for _, srv := range servers {
		if err := reg.Register(context.Background(), "calc", registry.Endpoint{URL: srv.URL}, 10); err != nil {
			t.Fatal(err)
		}
	}

	c, err := New("", WithResolver(&DiscoveryResolver{
		Registry: reg,
		Balancer: &loadbalance.RoundRobin{},
		Service:  "calc",
	}))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := wait(t, c.Go("sum", nil)); err != nil {
			t.Fatal(err)
		}
	}
	if hits[0].Load() != 2 || hits[1].Load() != 2 {
		t.Fatalf("expect 2 hits each, got %d and %d", hits[0].Load(), hits[1].Load())
	}
}

func TestClientTargetWithResolver(t *testing.T) {
	_, err := New("http://localhost:8080/api", WithResolver(&DiscoveryResolver{
		Registry: registry.NewMemory(),
		Balancer: &loadbalance.RoundRobin{},
		Service:  "calc",
	}))
	if err == nil {
		t.Fatal("expect error for target and resolver together")
	}
}

func TestClientDiscoveryNoEndpoints(t *testing.T) {
	c, err := New("", WithResolver(&DiscoveryResolver{
		Registry: registry.NewMemory(),
		Balancer: &loadbalance.RoundRobin{},
		Service:  "ghost",
	}))
	if err != nil {
		t.Fatal(err)
	}
	_, err = wait(t, c.Go("sum", nil))
	if !errors.Is(err, message.ErrTransport) {
		t.Fatalf("expect transport error, got %v", err)
	}
}

func TestClientWaitGivesUp(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	srv := rpcServer(t, func(_ *http.Request, req *message.Envelope) *message.Envelope {
		<-release
		return result(req, 1)
	})
	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Call(ctx, "slow", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect context canceled, got %v", err)
	}
}

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenFieldOps/open-job-api/internal/broker"
)

var errStubClosed = errors.New("stub connection closed")

// recordingBroker counts publishes so tests can assert the local fast
// path never touched the broker.
type recordingBroker struct {
	mu        sync.Mutex
	published []publishCall
}

type publishCall struct {
	channel string
	payload []byte
}

func (b *recordingBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishCall{channel, payload})
	return nil
}

func (b *recordingBroker) Subscribe(context.Context, broker.Handler, ...string) (broker.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (b *recordingBroker) Close() error { return nil }

func (b *recordingBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func TestRouteToUserLocalFastPath(t *testing.T) {
	registry := NewRegistry()
	rec := &recordingBroker{}
	router := NewRouter(registry, rec, zerolog.Nop())

	conn := &stubConn{}
	registry.Register(7, conn)

	if err := router.RouteToUser(context.Background(), 7, "system_message", map[string]string{"title": "hi"}); err != nil {
		t.Fatal(err)
	}

	if len(conn.sent) != 1 {
		t.Fatalf("expected 1 local delivery, got %d", len(conn.sent))
	}
	if rec.count() != 0 {
		t.Fatal("local delivery must not publish to the broker")
	}

	var evt broker.Event
	if err := json.Unmarshal(conn.sent[0], &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != "system_message" {
		t.Fatalf("expected type system_message, got %q", evt.Type)
	}
}

func TestRouteToUserFallsBackToBroker(t *testing.T) {
	registry := NewRegistry()
	rec := &recordingBroker{}
	router := NewRouter(registry, rec, zerolog.Nop())

	// No local connection for the target user.
	if err := router.RouteToUser(context.Background(), 9, "job_updated", map[string]int{"id": 3}); err != nil {
		t.Fatal(err)
	}

	if rec.count() != 1 {
		t.Fatalf("expected 1 broker publish, got %d", rec.count())
	}
	if rec.published[0].channel != broker.UserEventsChannel {
		t.Fatalf("published to %q", rec.published[0].channel)
	}

	evt, err := broker.DecodeUserEvent(rec.published[0].payload)
	if err != nil {
		t.Fatal(err)
	}
	if evt.UserID != 9 || evt.Type != "job_updated" {
		t.Fatalf("unexpected envelope: %+v", evt)
	}
}

func TestRouteToUserSendFailureFallsThrough(t *testing.T) {
	registry := NewRegistry()
	rec := &recordingBroker{}
	router := NewRouter(registry, rec, zerolog.Nop())

	registry.Register(7, &stubConn{fail: true})

	if err := router.RouteToUser(context.Background(), 7, "system_message", nil); err != nil {
		t.Fatal(err)
	}
	if rec.count() != 1 {
		t.Fatal("expected fall-through publish after local send failure")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestRouterDeliversBrokerEnvelopes(t *testing.T) {
	registry := NewRegistry()
	mem := broker.NewMemory()
	router := NewRouter(registry, mem, zerolog.Nop())

	sub, err := router.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	var mu sync.Mutex
	conn := &stubConn{}
	lockedConn := &lockedStubConn{conn: conn, mu: &mu}
	registry.Register(7, lockedConn)

	env, err := broker.EncodeUserEvent(7, "system_message", map[string]string{"title": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if err := mem.Publish(context.Background(), broker.UserEventsChannel, env); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conn.sent) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	var evt broker.Event
	if err := json.Unmarshal(conn.sent[0], &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != "system_message" {
		t.Fatalf("expected type system_message, got %q", evt.Type)
	}
}

func TestRouterDropsMalformedEnvelopes(t *testing.T) {
	registry := NewRegistry()
	mem := broker.NewMemory()
	router := NewRouter(registry, mem, zerolog.Nop())

	sub, err := router.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	var mu sync.Mutex
	conn := &stubConn{}
	lockedConn := &lockedStubConn{conn: conn, mu: &mu}
	registry.Register(7, lockedConn)

	// A malformed envelope must not disturb the delivery after it.
	if err := mem.Publish(context.Background(), broker.UserEventsChannel, []byte("{broken")); err != nil {
		t.Fatal(err)
	}
	env, _ := broker.EncodeUserEvent(7, "system_message", nil)
	if err := mem.Publish(context.Background(), broker.UserEventsChannel, env); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conn.sent) == 1
	})
}

func TestRouteToUserCrossProcess(t *testing.T) {
	// Two routers over one broker stand in for two server processes.
	mem := broker.NewMemory()

	sender := NewRouter(NewRegistry(), mem, zerolog.Nop())

	receiverRegistry := NewRegistry()
	receiver := NewRouter(receiverRegistry, mem, zerolog.Nop())
	sub, err := receiver.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	var mu sync.Mutex
	conn := &stubConn{}
	receiverRegistry.Register(7, &lockedStubConn{conn: conn, mu: &mu})

	if err := sender.RouteToUser(context.Background(), 7, "job_updated", map[string]int{"id": 3}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conn.sent) == 1
	})
}

// lockedStubConn guards a stubConn against the pump goroutine racing the
// test's assertions.
type lockedStubConn struct {
	conn *stubConn
	mu   *sync.Mutex
}

func (c *lockedStubConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Send(payload)
}

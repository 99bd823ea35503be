package realtime

import (
	"sync"
	"testing"
)

type stubConn struct {
	sent [][]byte
	fail bool
}

func (c *stubConn) Send(payload []byte) error {
	if c.fail {
		return errStubClosed
	}
	c.sent = append(c.sent, payload)
	return nil
}

func TestRegistryRegisterLookup(t *testing.T) {
	r := NewRegistry()
	conn := &stubConn{}

	if prev := r.Register(7, conn); prev != nil {
		t.Fatalf("expected no displaced connection, got %v", prev)
	}

	got, ok := r.Lookup(7)
	if !ok {
		t.Fatal("expected connection for user 7")
	}
	if got != conn {
		t.Fatal("lookup returned a different connection")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 connection, got %d", r.Len())
	}

	if _, ok := r.Lookup(8); ok {
		t.Fatal("unexpected connection for user 8")
	}
}

func TestRegistryLastConnectionWins(t *testing.T) {
	r := NewRegistry()
	first := &stubConn{}
	second := &stubConn{}

	r.Register(7, first)
	prev := r.Register(7, second)
	if prev != first {
		t.Fatal("expected the first connection to be displaced")
	}

	got, _ := r.Lookup(7)
	if got != second {
		t.Fatal("expected the second connection to own the entry")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 connection, got %d", r.Len())
	}
}

func TestRegistryUnregisterIsConditional(t *testing.T) {
	r := NewRegistry()
	first := &stubConn{}
	second := &stubConn{}

	r.Register(7, first)
	r.Register(7, second)

	// The displaced connection tearing down late must not evict its
	// successor.
	r.Unregister(7, first)
	if got, ok := r.Lookup(7); !ok || got != second {
		t.Fatal("stale unregister evicted the live connection")
	}

	r.Unregister(7, second)
	if _, ok := r.Lookup(7); ok {
		t.Fatal("expected entry removed")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		userID := int64(i % 4)
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := &stubConn{}
			r.Register(userID, conn)
			r.Lookup(userID)
			r.Unregister(userID, conn)
		}()
	}
	wg.Wait()

	if r.Len() > 4 {
		t.Fatalf("registry holds %d entries for 4 users", r.Len())
	}
}

package realtime

import "sync"

// Registry is the process-local index of user id to live connection. At
// most one entry per user per process; it is never persisted or shared and
// is rebuilt from zero on restart.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]Conn)}
}

// Register stores the user's connection, replacing any prior entry
// (last-connection-wins: a second tab supersedes delivery to the first).
// The displaced connection, if any, is returned so the caller can close it.
func (r *Registry) Register(userID int64, conn Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[userID]
	r.conns[userID] = conn
	return prev
}

// Unregister removes the user's entry, but only while it still points at
// the given connection. A replaced connection tearing down later must not
// evict its successor.
func (r *Registry) Unregister(userID int64, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[userID] == conn {
		delete(r.conns, userID)
	}
}

// Lookup returns the user's live connection, if this process holds one.
func (r *Registry) Lookup(userID int64) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// Package presence tracks which users are reachable right now.
package presence

import (
	"sync"
)

// Event is a server push to a live connection.
type Event struct {
	Type    string
	Payload any
}

// Conn is a live transport handle. Deliver must not block on the network:
// implementations queue the event and report an error when the connection
// is closed or its queue is full.
type Conn interface {
	ID() string
	Deliver(evt Event) error
}

// Registry maps a user identity to at most one live connection. It is the
// only shared mutable state between connections and is safe for concurrent
// use. Contents live for the lifetime of the process.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register binds identity to conn, replacing any previous binding.
func (r *Registry) Register(identity string, conn Conn) {
	r.mu.Lock()
	r.conns[identity] = conn
	r.mu.Unlock()
}

// Lookup returns the live connection for identity, if any.
func (r *Registry) Lookup(identity string) (Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[identity]
	r.mu.RUnlock()
	return c, ok
}

// Remove drops the binding for identity. No-op when absent.
func (r *Registry) Remove(identity string) {
	r.mu.Lock()
	delete(r.conns, identity)
	r.mu.Unlock()
}

// RemoveByHandle drops the entry whose value is conn and reports which
// identity it was bound to. Disconnects only know the handle, hence the scan.
func (r *Registry) RemoveByHandle(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for identity, c := range r.conns {
		if c == conn {
			delete(r.conns, identity)
			return identity, true
		}
	}
	return "", false
}

// Count returns the number of online identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

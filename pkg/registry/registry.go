// Package registry is the process-wide table of live peer connections,
// keyed by peer address. Grounded on the teacher's
// pkg/transport.TCPEndpoint.conns map: same mutex-protected map-of-peer
// shape, same "delete only if the entry is still the one we're removing"
// idiom (tcp.go's getOrDial/handleConn cleanup), generalized from an
// endpoint's private dial cache into a registry other packages (the
// reconnect watchdog, an admin/status surface) can query directly.
package registry

import (
	"sync"

	"github.com/raskfs/rask/pkg/conn"
	"github.com/raskfs/rask/pkg/queue"
)

// Registry holds at most one *conn.Conn per peer address.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*conn.Conn
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{conns: make(map[string]*conn.Conn)}
}

// Put installs c as the current connection for addr. If a different
// connection already occupied that slot it is closed, since a peer
// address can only usefully have one live connection at a time (spec
// §4.4's reconnect watchdog replaces, rather than adds to, a slot).
func (r *Registry) Put(addr string, c *conn.Conn) {
	r.mu.Lock()
	prev := r.conns[addr]
	r.conns[addr] = c
	r.mu.Unlock()
	if prev != nil && prev != c {
		_ = prev.Close()
	}
}

// Get returns the current connection for addr, if any.
func (r *Registry) Get(addr string) (*conn.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[addr]
	return c, ok
}

// Remove deletes addr's slot, but only if it still holds c: a slot that
// has since been reused by a fresher connection (e.g. the reconnect
// watchdog winning a race against a dying reader goroutine) must survive
// the dying connection's own cleanup.
func (r *Registry) Remove(addr string, c *conn.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[addr]; ok && cur == c {
		delete(r.conns, addr)
	}
}

// Len reports the number of live slots.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast enqueues build on every currently registered connection.
// Enqueue errors (a connection that closed between the snapshot and the
// call) are tolerated and skipped; Broadcast does not remove stale
// entries itself, leaving that to each connection's own Run cleanup.
func (r *Registry) Broadcast(build queue.Builder) {
	r.mu.RLock()
	targets := make([]*conn.Conn, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		_, _ = c.Enqueue(build)
	}
}

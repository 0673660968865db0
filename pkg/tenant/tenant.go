// Package tenant models the set of tenants a node hosts: a name, the
// local filesystem root it materializes into, and its hash tree. It also
// carries the supplemented subscribe/unsubscribe toggle: an operator can
// take a tenant out of active reconciliation (e.g. while running a bulk
// local restore) without tearing down its tree or its connections.
package tenant

import (
	"fmt"
	"sort"
	"sync"

	"github.com/raskfs/rask/pkg/hashtree"
)

// Tenant is one hosted tenant.
type Tenant struct {
	Name      string
	LocalRoot string

	mu         sync.RWMutex
	subscribed bool
	tree       *hashtree.Tree
}

// New returns a Tenant rooted at localRoot, subscribed by default.
func New(name, localRoot string) *Tenant {
	return &Tenant{
		Name:       name,
		LocalRoot:  localRoot,
		subscribed: true,
		tree:       hashtree.New(),
	}
}

// Tree returns the tenant's hash tree.
func (t *Tenant) Tree() *hashtree.Tree { return t.tree }

// Subscribed reports whether this tenant currently participates in
// top-down reconciliation. No peer-advertised hash is stored for an
// unsubscribed tenant: TENANT and TENANT-HASH addressed to it are the
// handler-unimplemented branch and raise proto.ErrNotImplemented rather
// than walk a tree this node has opted out of maintaining (spec §4.6/§7).
// Leaf packets (FILE-EXISTS, CREATE-DIRECTORY, MOVE-OUT, FILE-HASH)
// are unaffected by this toggle; they apply to any known tenant
// regardless of subscription.
func (t *Tenant) Subscribed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.subscribed
}

// SetSubscribed toggles reconciliation participation.
func (t *Tenant) SetSubscribed(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribed = v
}

// Store is the process-wide table of hosted tenants, keyed by name.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{tenants: make(map[string]*Tenant)}
}

// Add registers t, replacing any existing tenant of the same name.
func (s *Store) Add(t *Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.Name] = t
}

// Get returns the named tenant, if hosted.
func (s *Store) Get(name string) (*Tenant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[name]
	return t, ok
}

// Remove drops a hosted tenant.
func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tenants, name)
}

// Names returns hosted tenant names in sorted order, for deterministic
// iteration (e.g. when initiating one TENANT walk per tenant in turn).
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tenants))
	for n := range s.tenants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Subscribed returns the sorted names of hosted tenants currently
// participating in reconciliation.
func (s *Store) Subscribed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tenants))
	for n, t := range s.tenants {
		if t.Subscribed() {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Store) String() string {
	return fmt.Sprintf("tenant.Store{%d hosted}", len(s.tenants))
}

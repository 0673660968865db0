package reconcile

import (
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/raskfs/rask/internal/store"
	"github.com/raskfs/rask/pkg/digest"
	"github.com/raskfs/rask/pkg/hashtree"
)

// tenantsDocMu serializes read-modify-write updates to store.TenantsKey,
// the one document every tenant's persisted hash shares (spec §6: "a
// top-level tenants document maps tenant name to its current top-level
// hash"). store.Store has no atomic Mutate, so callers on the
// high-latency pool for different tenants would otherwise race on it.
var tenantsDocMu sync.Mutex

// PersistLeaf writes the JSON node document for whichever leaf currently
// holds name and refreshes tenantName's entry in the top-level tenants
// document. Both inbound reconciliation (Walker.apply) and the local
// filesystem watcher (cmd/raskd's applyLocalChange) go through this same
// path, so a node's persisted state reflects locally-originated changes
// as well as ones applied from a peer. s may be nil, in which case this
// is a no-op: persistence is an optional acceleration of tree rebuild on
// restart, not a correctness requirement (the tree is still rebuildable
// from a live filesystem walk).
func PersistLeaf(s store.Store, tr *hashtree.Tree, tenantName, name string) error {
	if s == nil {
		return nil
	}
	digits, entries, ok := tr.LeafDigits(name)
	if !ok {
		return nil
	}
	doc, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := s.Put(store.NodeKey(tenantName, DigitsToPrefix(digits)), doc); err != nil {
		return err
	}
	return updateTenantsDocument(s, tenantName, tr.RootHash())
}

func updateTenantsDocument(s store.Store, tenantName string, hash digest.Hash) error {
	tenantsDocMu.Lock()
	defer tenantsDocMu.Unlock()

	hashes := map[string]string{}
	current, err := s.Get(store.TenantsKey)
	switch err {
	case nil:
		if err := json.Unmarshal(current, &hashes); err != nil {
			return err
		}
	case store.ErrKeyNotFound:
	default:
		return err
	}

	hashes[tenantName] = hex.EncodeToString(hash[:])
	next, err := json.Marshal(hashes)
	if err != nil {
		return err
	}
	return s.Put(store.TenantsKey, next)
}

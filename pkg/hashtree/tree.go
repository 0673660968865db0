package hashtree

import (
	"sync"

	"github.com/raskfs/rask/pkg/digest"
	"github.com/raskfs/rask/pkg/inode"
)

// Tree is a concurrency-safe tenant hash tree. The zero value is not
// usable; construct with New.
type Tree struct {
	mu   sync.RWMutex
	root node // *leafNode or *partitionNode
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{root: newLeaf()}
}

// Upsert applies rec at rec.Name, folding it into any existing record at
// that path via inode.Apply, and returns whether the stored record
// changed. Callers holding a FILE-EXISTS/CREATE-DIRECTORY/MOVE-OUT packet
// pass its priority tick and fields through an inode.Record before
// calling Upsert.
func (t *Tree) Upsert(rec inode.Record) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = upsert(t.root, digest.Sum([]byte(rec.Name)), 0, rec, &changed)
	return changed
}

// Lookup returns the current record at path, if any.
func (t *Tree) Lookup(path string) (inode.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lookup(t.root, path)
}

// RootHash returns the rollup hash of the whole tree, corresponding to
// the tenant's advertised hash in a TENANT packet.
func (t *Tree) RootHash() digest.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.rollup()
}

// Children returns the rollup hash of each present child at depth
// len(digits)+1, keyed by digit. It is used to answer a TENANT-HASH
// request descending into the subtree named by digits (empty digits
// means "children of the root").
func (t *Tree) Children(digits []uint8) ([]ChildSummary, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := descend(t.root, digits)
	p, ok := n.(*partitionNode)
	if !ok {
		return nil, false
	}
	var out []ChildSummary
	for d, c := range p.children {
		if c == nil {
			continue
		}
		out = append(out, ChildSummary{Digit: uint8(d), Hash: c.rollup()})
	}
	return out, true
}

// UpdateContentHash sets the content hash of an existing record at path,
// without going through the priority-tick comparison Upsert applies: a
// FILE-HASH packet (spec §4.7) is an out-of-band content acknowledgement
// for a record whose FILE-EXISTS has already been applied, not a
// competing write. It is a no-op if path is not currently known.
func (t *Tree) UpdateContentHash(path string, hash digest.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := findLeaf(t.root, digest.Sum([]byte(path)), 0)
	if !ok {
		return false
	}
	rec, ok := l.entries[path]
	if !ok {
		return false
	}
	rec.ContentHash = hash
	l.entries[path] = rec
	return true
}

// LeafDigits returns the digit path to the leaf currently holding name,
// together with a snapshot of every record that leaf holds. It is used
// by callers that persist the tree one node-document at a time (spec
// §6: JSON node documents indexed by (layer, prefix)), so they can write
// exactly the document that changed rather than the whole tree.
func (t *Tree) LeafDigits(name string) (digits []uint8, entries []inode.Record, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key := digest.Sum([]byte(name))
	n := t.root
	depth := 0
	for {
		switch cur := n.(type) {
		case *leafNode:
			out := make([]inode.Record, 0, len(cur.entries))
			for _, r := range cur.entries {
				out = append(out, r)
			}
			return digits, out, true
		case *partitionNode:
			d := digitAt(key, depth)
			child := cur.children[d]
			if child == nil {
				return nil, nil, false
			}
			digits = append(digits, d)
			n = child
			depth++
		default:
			return nil, nil, false
		}
	}
}

func findLeaf(n node, key digest.Hash, depth int) (*leafNode, bool) {
	switch cur := n.(type) {
	case *leafNode:
		return cur, true
	case *partitionNode:
		child := cur.children[digitAt(key, depth)]
		if child == nil {
			return nil, false
		}
		return findLeaf(child, key, depth+1)
	default:
		return nil, false
	}
}

// LeafEntries returns every record held by the leaf node reached by
// descending digits, or false if that path does not currently resolve to
// a leaf (either because it is a partitioned node or absent).
func (t *Tree) LeafEntries(digits []uint8) ([]inode.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := descend(t.root, digits)
	l, ok := n.(*leafNode)
	if !ok {
		return nil, false
	}
	out := make([]inode.Record, 0, len(l.entries))
	for _, r := range l.entries {
		out = append(out, r)
	}
	return out, true
}

func descend(n node, digits []uint8) node {
	for _, d := range digits {
		p, ok := n.(*partitionNode)
		if !ok {
			return nil
		}
		n = p.children[d]
		if n == nil {
			return nil
		}
	}
	return n
}

func lookup(n node, path string) (inode.Record, bool) {
	key := digest.Sum([]byte(path))
	depth := 0
	for {
		switch cur := n.(type) {
		case *leafNode:
			rec, ok := cur.entries[path]
			return rec, ok
		case *partitionNode:
			d := digitAt(key, depth)
			child := cur.children[d]
			if child == nil {
				return inode.Record{}, false
			}
			n = child
			depth++
		default:
			return inode.Record{}, false
		}
	}
}

// upsert inserts or updates rec within n (rooted at the given depth) and
// returns the possibly-replaced node. changed is set if the stored
// record's content actually moved.
func upsert(n node, key digest.Hash, depth int, rec inode.Record, changed *bool) node {
	switch cur := n.(type) {
	case *leafNode:
		if existing, ok := cur.entries[rec.Name]; ok {
			merged, did := inode.Apply(existing, rec)
			cur.entries[rec.Name] = merged
			*changed = did
			return cur
		}
		if len(cur.entries) < MaxLeafEntries {
			cur.entries[rec.Name] = rec
			*changed = true
			return cur
		}
		// Split: redistribute this leaf's entries one level deeper, then
		// retry the insert against the new partitioned node.
		p := newPartition()
		for name, existingRec := range cur.entries {
			k := digest.Sum([]byte(name))
			d := digitAt(k, depth)
			p.children[d] = upsert(orEmptyLeaf(p.children[d]), k, depth+1, existingRec, new(bool))
		}
		return upsert(p, key, depth, rec, changed)
	case *partitionNode:
		d := digitAt(key, depth)
		cur.children[d] = upsert(orEmptyLeaf(cur.children[d]), key, depth+1, rec, changed)
		return cur
	default:
		l := newLeaf()
		return upsert(l, key, depth, rec, changed)
	}
}

func orEmptyLeaf(n node) node {
	if n == nil {
		return newLeaf()
	}
	return n
}

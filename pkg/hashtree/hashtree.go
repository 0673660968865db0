// Package hashtree implements the tenant hash tree: a Merkle-style index
// over one tenant's inode records, keyed by a base32 digit path so that
// two peers can walk it top-down and only descend into subtrees whose
// rollup hash disagrees (spec §4.5/§4.6).
//
// Grounded on the teacher's pkg/merkle (types.go's Summary/Prefix shape,
// radix.go's digit-extraction arithmetic, merkle.go's sort-then-hash
// rollup), generalized from merkle's fixed base-16/64-level tree keyed by
// opaque hashes to a base-32 tree keyed by tenant-relative path strings,
// with leaves holding full inode records rather than op-log entries.
package hashtree

import (
	"bytes"
	"sort"

	"github.com/raskfs/rask/pkg/digest"
	"github.com/raskfs/rask/pkg/inode"
)

// Fanout is the number of children a partitioned node may have (spec
// §4.5: "up to 32 base32-digit children").
const Fanout = 32

// MaxLeafEntries bounds how many inode records a leaf holds before it
// splits into a partitioned node on the next insert.
const MaxLeafEntries = 32

// digitAt returns the i-th base32 digit (5-bit window, MSB-first) of h.
// Adapted from the teacher's NibbleAt16, generalized from 4-bit to 5-bit
// windows and from a fixed byte-pair lookup to bit-offset arithmetic
// since 5 does not divide 8 evenly.
func digitAt(h digest.Hash, i int) uint8 {
	bitOff := i * 5
	byteIdx := bitOff / 8
	bitIdx := bitOff % 8

	var v uint16
	v = uint16(h[byteIdx]) << 8
	if byteIdx+1 < len(h) {
		v |= uint16(h[byteIdx+1])
	}
	shift := 16 - bitIdx - 5
	return uint8((v >> uint(shift)) & 0x1F)
}

// node is either a leafNode or a partitionNode.
type node interface {
	rollup() digest.Hash
}

type leafNode struct {
	// entries maps a full tenant-relative path to its record.
	entries map[string]inode.Record
}

func newLeaf() *leafNode { return &leafNode{entries: make(map[string]inode.Record)} }

func (l *leafNode) rollup() digest.Hash {
	if len(l.entries) == 0 {
		return digest.Hash{}
	}
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	// Ascending name-hash, not ascending path string (spec §4.5): two
	// leaves holding the same entries must roll up identically
	// regardless of the lexical order their names happen to sort in.
	nameHash := make(map[string]digest.Hash, len(keys))
	for _, k := range keys {
		nameHash[k] = digest.Sum([]byte(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		hi, hj := nameHash[keys[i]], nameHash[keys[j]]
		return bytes.Compare(hi[:], hj[:]) < 0
	})

	b := digest.NewBuilder()
	for _, k := range keys {
		rec := l.entries[k]
		b.Write([]byte(k))
		h := rec.Hash()
		b.Write(h[:])
	}
	return b.Sum()
}

type partitionNode struct {
	children [Fanout]node
}

func newPartition() *partitionNode { return &partitionNode{} }

func (p *partitionNode) rollup() digest.Hash {
	b := digest.NewBuilder()
	for _, c := range p.children {
		if c == nil {
			b.Write(make([]byte, digest.Size))
			continue
		}
		h := c.rollup()
		b.Write(h[:])
	}
	return b.Sum()
}

// ChildSummary is one entry of a TENANT-HASH response: a child digit and
// that child's current rollup hash.
type ChildSummary struct {
	Digit uint8
	Hash  digest.Hash
}

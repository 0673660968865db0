// Package inode holds the record type synchronized by the hash tree
// (spec §4.5/§4.7) and its last-writer-wins apply rule. Grounded on the
// teacher's pkg/model.Op/ReduceLWW: where the teacher reduces an
// append-only op log down to a present/value/last-writer tuple keyed by
// HLC-then-actor-then-hash ordering, a Rask peer never keeps the log —
// each side holds exactly one current Record per path and a newly
// received one is folded in directly by comparing priority ticks.
package inode

import (
	"github.com/raskfs/rask/pkg/digest"
	"github.com/raskfs/rask/pkg/tick"
)

// Type distinguishes what a path names.
type Type uint8

const (
	TypeFile Type = iota
	TypeDirectory
	TypeMoved // tombstone left behind by a MOVE-OUT (spec §4.7)
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// Record is the local view of one path within a tenant: what it is, when
// it was last touched (its priority tick), and, for files, its content
// hash and size/modified stat.
type Record struct {
	Name        string
	Type        Type
	Priority    tick.Tick
	ContentHash digest.Hash
	SizeBytes   uint64
	Modified    tick.Tick
}

// Hash returns the digest folded into the enclosing hash tree leaf's
// rollup. It covers every field an incoming packet could change, so that
// two peers with divergent Records for the same path always disagree at
// the leaf.
func (r Record) Hash() digest.Hash {
	b := digest.NewBuilder()
	b.Write([]byte(r.Name))
	b.Write([]byte{byte(r.Type)})
	pb := r.Priority.Bytes()
	b.Write(pb[:])
	b.Write(r.ContentHash[:])
	var sz [8]byte
	putUint64(sz[:], r.SizeBytes)
	b.Write(sz[:])
	mb := r.Modified.Bytes()
	b.Write(mb[:])
	return b.Sum()
}

func putUint64(dst []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

// Apply folds incoming into local using the protocol's last-writer-wins
// rule (spec §4.7): the record with the strictly greater priority tick
// wins outright; on an exact tie the local record is left unchanged,
// since two writers producing the same tick can only mean the update was
// already seen.
func Apply(local Record, incoming Record) (result Record, changed bool) {
	if incoming.Priority.Less(local.Priority) {
		return local, false
	}
	if local.Priority.Less(incoming.Priority) {
		return incoming, true
	}
	return local, false
}

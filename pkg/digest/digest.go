// Package digest implements the "hash digest" collaborator named in
// spec §6: a fixed 32-byte digest over a byte stream, used by the tenant
// hash tree to roll up child and inode hashes.
package digest

import (
	"crypto/sha256"
	"hash"
)

// Size is the fixed digest width in bytes.
const Size = sha256.Size

// Hash is a 32-byte content digest.
type Hash [Size]byte

// IsZero reports whether h is the all-zero digest (an empty subtree).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Sum computes the digest of a single byte slice.
func Sum(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// Builder accumulates bytes and produces their digest, mirroring the
// merkle rollup rule in spec §4.5: concatenate children in deterministic
// order, then digest once.
type Builder struct {
	h hash.Hash
}

// NewBuilder returns a fresh digest accumulator.
func NewBuilder() *Builder {
	return &Builder{h: sha256.New()}
}

// Write appends bytes to the running digest. Never returns an error.
func (b *Builder) Write(p []byte) {
	_, _ = b.h.Write(p)
}

// Sum finalizes and returns the accumulated digest.
func (b *Builder) Sum() Hash {
	var out Hash
	copy(out[:], b.h.Sum(nil))
	return out
}

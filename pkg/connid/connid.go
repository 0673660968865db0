// Package connid mints opaque identifiers for connection-registry slots
// and reconciliation sessions. It is not the peer identity spec §3 names
// (that is a locally-stamped u32 recorded on conn.Conn once a VERSION
// packet arrives — see conn.Conn.RecordPeerVersion, since VERSION's wire
// body carries only a version byte, not an identity) — connid is an
// internal handle used for logging and slot bookkeeping instead.
package connid

import "github.com/google/uuid"

// ID is an opaque, process-local connection or session handle.
type ID [16]byte

// New mints a fresh random ID.
func New() ID {
	u := uuid.New()
	var id ID
	copy(id[:], u[:])
	return id
}

// String renders the ID in canonical UUID form for logging.
func (id ID) String() string {
	u, _ := uuid.FromBytes(id[:])
	return u.String()
}

// Package tick implements the fleet's logical timestamp: a microsecond wall
// clock paired with the originating server id, total-ordered so every node
// can agree on last-writer-wins without coordination.
package tick

import (
	"encoding/binary"
	"sync"
	"time"
)

// Tick is (time, server): microseconds since epoch plus the id of the
// server that minted it. Ticks are compared lexicographically by (Time,
// Server), so equal wall-clock times still total-order on server id.
type Tick struct {
	Time   int64
	Server uint32
}

// Zero is the tick that compares less than or equal to any tick ever
// minted; a fresh inode's "no prior priority" state.
var Zero = Tick{}

// Less reports whether t sorts strictly before o.
func (t Tick) Less(o Tick) bool {
	if t.Time != o.Time {
		return t.Time < o.Time
	}
	return t.Server < o.Server
}

// Max returns the later of a and b. On an exact tie the first argument wins,
// matching the tie-break rule in spec §4.6: equal ticks leave local state
// unchanged.
func Max(a, b Tick) Tick {
	if a.Less(b) {
		return b
	}
	return a
}

// Bytes encodes the tick as the 12-byte wire representation used by
// pkg/wire: 8-byte big-endian Time followed by 4-byte big-endian Server.
func (t Tick) Bytes() [12]byte {
	var b [12]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(t.Time))
	binary.BigEndian.PutUint32(b[8:12], t.Server)
	return b
}

// FromBytes decodes the wire representation produced by Bytes.
func FromBytes(b [12]byte) Tick {
	return Tick{
		Time:   int64(binary.BigEndian.Uint64(b[0:8])),
		Server: binary.BigEndian.Uint32(b[8:12]),
	}
}

// Clock mints Ticks for one server. Local minting never regresses behind
// a tick this clock has already observed on the wire: Overheard raises a
// monotonic floor so a subsequent Now always sorts after everything the
// clock has seen, local or remote.
type Clock struct {
	mu    sync.Mutex
	floor int64 // microseconds; Now never returns a Time below this
	self  uint32
}

// New returns a Clock that mints ticks carrying the given server id.
func New(server uint32) *Clock {
	return &Clock{self: server}
}

// Now mints a fresh local tick. Its Time is max(wall-clock-now, floor+1)
// so repeated calls within the same microsecond, or calls following an
// Overheard of a later tick, still strictly advance.
func (c *Clock) Now() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixMicro()
	if now <= c.floor {
		now = c.floor + 1
	}
	c.floor = now
	return Tick{Time: now, Server: c.self}
}

// Overheard folds a tick received from the wire into the clock's floor so
// that future local ticks never reorder behind an observed remote one.
// It does not itself return a usable tick — call Now for that.
func (c *Clock) Overheard(remote Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote.Time > c.floor {
		c.floor = remote.Time
	}
}

// Server returns the server id this clock mints ticks for.
func (c *Clock) Server() uint32 {
	return c.self
}

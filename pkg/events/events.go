// Package events defines the protocol-level events a node publishes as it
// runs, and a small synchronous bus for delivering them. Adapted from the
// teacher's pkg/eventbus.Bus, trimmed to the delivery model the daemon
// actually needs: a handful of observability/coordination subscribers
// (logging, metrics, a possible admin socket) rather than an open-ended
// fanout with per-subscriber channels and buffering options.
package events

// Type identifies the kind of Event.
type Type string

const (
	// TypeVersionReceived fires when a peer's VERSION packet is decoded.
	TypeVersionReceived Type = "version_received"
	// TypeHeartbeatSent fires each time the 5-second heartbeat timer
	// fires and a heartbeat is queued (spec §4.4).
	TypeHeartbeatSent Type = "heartbeat_sent"
	// TypeReconnectFired fires each time an outbound dial loop brings up
	// a fresh connection, the first successful dial included.
	TypeReconnectFired Type = "reconnect_fired"
	// TypeSpilled fires when the outbound queue was full and a
	// packet-builder was dropped (spec §4.3/§7).
	TypeSpilled Type = "spilled"
	// TypeLeafApplied fires when a leaf packet (FILE-EXISTS,
	// CREATE-DIRECTORY, MOVE-OUT) was applied to local state.
	TypeLeafApplied Type = "leaf_applied"
	// TypeApplyFailed fires when a leaf packet's filesystem effect
	// (directory creation, file allocation, data-block write) failed on
	// the high-latency pool, after the in-memory tree was already
	// updated. Detail carries the underlying error text.
	TypeApplyFailed Type = "apply_failed"
)

// Event is a single occurrence published to a Bus. Fields other than
// Type and Tenant are event-specific and may be zero.
type Event struct {
	Type     Type
	Tenant   string
	Path     string
	PeerAddr string
	Detail   string
}

func (e Event) GetType() string { return string(e.Type) }

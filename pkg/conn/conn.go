// Package conn runs the reader/writer/heartbeat goroutines for one TCP
// connection to a peer and owns that connection's outbound queue. It is
// deliberately transport-agnostic below net.Conn: it does not dial or
// accept, callers hand it an established net.Conn (spec §4.4).
//
// Grounded on the teacher's pkg/transport/tcp.go (tcpPeer's bufio.Reader
// plus write-mutex shape, the "close, then delete only if still current"
// eviction idiom) and pkg/node/heartbeat.go (ticker-driven heartbeat
// loop). The teacher's TCPEndpoint multiplexes many peers behind one
// struct with a shared inbound channel; here each Conn is one peer and
// the registry (pkg/registry) is what holds many of them, since spec
// §4.4's per-connection heartbeat/backoff state does not generalize well
// behind a single shared endpoint.
package conn

import (
	"bufio"
	"context"
	"errors"
	"hash/fnv"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raskfs/rask/pkg/connid"
	"github.com/raskfs/rask/pkg/events"
	"github.com/raskfs/rask/pkg/metrics"
	"github.com/raskfs/rask/pkg/proto"
	"github.com/raskfs/rask/pkg/queue"
	"golang.org/x/sync/errgroup"
)

// HeartbeatInterval is the fixed cadence of the keep-alive VERSION packet
// (spec §4.4).
const HeartbeatInterval = 5 * time.Second

// writeTimeout bounds a single frame write so a stalled peer cannot wedge
// the writer goroutine forever.
const writeTimeout = 10 * time.Second

// ErrClosed is returned by Enqueue and Run once the Conn has been closed.
var ErrClosed = errors.New("conn: closed")

// Handler processes one decoded inbound frame. It runs on the Conn's
// reader goroutine, so a slow Handler backpressures reads from this peer
// only, not the whole process.
type Handler func(c *Conn, f proto.Frame) error

// Conn wraps one established TCP connection to a peer with the outbound
// queue, heartbeat timer, and event/metrics wiring a Rask connection
// needs.
type Conn struct {
	ID     connid.ID
	Remote string

	nc  net.Conn
	r   *bufio.Reader
	out *queue.Queue

	bus     *events.Bus
	metrics *metrics.Counters

	lastSentUnixNano     atomic.Int64
	lastReceivedUnixNano atomic.Int64

	// peerIdentity and peerVersion are the connection state spec §3
	// names verbatim: peerIdentity is 0 until a VERSION packet is
	// received (RecordPeerVersion), at which point it is stamped once
	// and never changes for the life of the connection.
	peerIdentity atomic.Uint32
	peerVersion  atomic.Uint32

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps nc for reading and writing. bus and m may be nil.
func New(nc net.Conn, bus *events.Bus, m *metrics.Counters) *Conn {
	if m == nil {
		m = &metrics.Counters{}
	}
	c := &Conn{
		ID:      connid.New(),
		Remote:  nc.RemoteAddr().String(),
		nc:      nc,
		r:       bufio.NewReader(nc),
		bus:     bus,
		metrics: m,
		closed:  make(chan struct{}),
	}
	c.out = queue.New(func() {
		c.metrics.IncSpill()
		c.publish(events.Event{Type: events.TypeSpilled, PeerAddr: c.Remote})
	})
	return c
}

// Enqueue schedules b to be sent by the writer goroutine. It never
// blocks. The bool result is spec §4.3's enqueue(builder) -> bool: true
// if b was accepted, false if the ring was full and b was spilled. err is
// non-nil only once the connection has been closed.
func (c *Conn) Enqueue(b queue.Builder) (bool, error) {
	select {
	case <-c.closed:
		return false, ErrClosed
	default:
	}
	return c.out.Push(b), nil
}

// PeerVersion returns the peer's last-advertised protocol version, or 0
// if no VERSION packet has been received yet.
func (c *Conn) PeerVersion() uint8 { return uint8(c.peerVersion.Load()) }

// PeerIdentity returns this connection's peer identity, or 0 until the
// first VERSION packet arrives (spec §3).
func (c *Conn) PeerIdentity() uint32 { return c.peerIdentity.Load() }

// RecordPeerVersion stores a received VERSION packet's protocol version
// and, the first time this is called, stamps a peer identity (spec
// §4.7: "Record peer version; set peer identity if first seen"). A
// VERSION body is a single version byte (spec §4.1) — no identity
// travels on the wire with it — so the identity stamped here is a local
// label derived from the remote address, not something read off the
// packet.
func (c *Conn) RecordPeerVersion(v byte) {
	c.peerVersion.Store(uint32(v))
	c.peerIdentity.CompareAndSwap(0, identityFromAddr(c.Remote))
}

func identityFromAddr(addr string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(addr))
	return h.Sum32()
}

// Run starts the reader, writer, and heartbeat goroutines and blocks
// until one of them exits (peer disconnect, ctx cancellation, or a
// Handler error), at which point it closes the connection and returns
// the causing error.
func (c *Conn) Run(ctx context.Context, handle Handler) error {
	g, ctx := errgroup.WithContext(ctx)

	// Enqueue VERSION unconditionally at start, independent of the
	// heartbeat ticker: the handshake must not wait out the first
	// heartbeat interval before either side ever sees a VERSION (spec
	// §4.4, §5's "both sides enqueue VERSION unconditionally at start").
	if _, err := c.sendVersion(); err != nil {
		c.Close()
		return err
	}

	// A reader parked in ReadFrame and a writer parked in Pop only wake up
	// once the socket and queue are closed, so close them as soon as the
	// group's context ends (first goroutine error or caller cancellation).
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	g.Go(func() error { return c.readLoop(ctx, handle) })
	g.Go(func() error { return c.writeLoop(ctx) })
	g.Go(func() error { return c.heartbeatLoop(ctx) })

	err := g.Wait()
	c.Close()
	return err
}

// sendVersion enqueues a VERSION packet and reports whether it was
// accepted (queue.Builder semantics: false means spilled, not an error).
func (c *Conn) sendVersion() (bool, error) {
	body := proto.Version{Version: proto.SupportedVersion}.Encode()
	return c.Enqueue(func() ([]byte, error) {
		return proto.Encode(proto.OpVersion, body)
	})
}

func (c *Conn) readLoop(ctx context.Context, handle Handler) error {
	for {
		f, err := proto.ReadFrame(c.r)
		if err != nil {
			return err
		}
		if f.Opcode == proto.OpVersion {
			c.publish(events.Event{Type: events.TypeVersionReceived, PeerAddr: c.Remote})
		} else {
			// reset_heartbeat(received_opcode != VERSION): any non-VERSION
			// packet from the peer proves the connection is not idle, so it
			// defers our own next automatic heartbeat send too (spec §4.4).
			c.lastReceivedUnixNano.Store(time.Now().UnixNano())
		}
		if handle != nil {
			if err := handle(c, f); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		b, ok := c.out.Pop()
		if !ok {
			return net.ErrClosed
		}
		payload, err := b()
		if err != nil {
			continue // a stale builder (e.g. path deleted since queued) is dropped, not fatal
		}
		if err := c.writeRaw(payload); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (c *Conn) writeRaw(payload []byte) error {
	_ = c.nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := c.nc.Write(payload)
	_ = c.nc.SetWriteDeadline(time.Time{})
	if err != nil {
		return err
	}
	c.lastSentUnixNano.Store(time.Now().UnixNano())
	c.metrics.AddBytesOnWire(int64(len(payload)))
	return nil
}

// heartbeatLoop enqueues a VERSION packet every HeartbeatInterval, unless
// some other packet has already gone out or come in within the interval
// — traffic itself proves liveness, so a heartbeat VERSION is suppressed
// on a connection that is not idle in either direction. A received
// VERSION does not count towards this: reset_heartbeat(received_opcode
// != VERSION) means only non-VERSION traffic defers our own send, or
// both peers would forever re-arm off each other's heartbeat and let
// the interval drift (spec §4.4, §9's documented open question).
func (c *Conn) heartbeatLoop(ctx context.Context) error {
	t := time.NewTicker(HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return ErrClosed
		case <-t.C:
			last := c.lastSentUnixNano.Load()
			if r := c.lastReceivedUnixNano.Load(); r > last {
				last = r
			}
			if last != 0 && time.Since(time.Unix(0, last)) < HeartbeatInterval {
				continue
			}
			queued, err := c.sendVersion()
			if err != nil {
				return err
			}
			if queued {
				c.publish(events.Event{Type: events.TypeHeartbeatSent, PeerAddr: c.Remote})
			}
		}
	}
}

func (c *Conn) publish(ev events.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

// Close shuts down the connection and its outbound queue. Safe to call
// more than once and from any goroutine.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.out.Close()
	})
	return c.nc.Close()
}

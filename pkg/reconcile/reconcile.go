// Package reconcile implements the top-down TENANT/TENANT-HASH
// walk-and-descend protocol (spec §4.6) and the apply side of the leaf
// packets it bottoms out into (spec §4.7).
//
// Grounded on the teacher's pkg/syncproto/descent.go and
// descent_engine.go: DiffDescent's "compare each child hash, collect the
// prefixes that disagree" loop is the same shape as HandleTenantHash's
// response branch below, adapted from maep's flat sorted-leaf-slice
// comparison (built fresh from a snapshot on every call) to walking the
// already-materialized hashtree.Tree directly, and from maep's
// leaf-hash-carrying DescentResp to this protocol's leaf packets, which
// carry full inode state rather than just a hash (a peer that finds a
// leaf mismatch needs the record to apply, not a hash to fetch by).
package reconcile

import (
	"context"
	"os"

	"github.com/raskfs/rask/internal/store"
	"github.com/raskfs/rask/pkg/conn"
	"github.com/raskfs/rask/pkg/digest"
	"github.com/raskfs/rask/pkg/events"
	"github.com/raskfs/rask/pkg/inode"
	"github.com/raskfs/rask/pkg/metrics"
	"github.com/raskfs/rask/pkg/proto"
	"github.com/raskfs/rask/pkg/tenant"
	"github.com/raskfs/rask/pkg/workers"
)

// fileDataBlockSize is the chunk size a FILE-DATA-BLOCK packet carries.
// Chosen to keep a single block comfortably under typical socket buffer
// sizes without fragmenting small files into many packets.
const fileDataBlockSize = 64 * 1024

// Walker dispatches inbound reconciliation packets against a set of
// hosted tenants.
type Walker struct {
	tenants *tenant.Store
	bus     *events.Bus
	metrics *metrics.Counters
	pools   *workers.Pools
	store   store.Store
}

// New returns a Walker over tenants. bus and m may be nil. pools is the
// pair of shared worker pools every filesystem effect is dispatched
// through (spec §5); if nil, a single-slot pair is used. st persists
// hash-tree node documents (spec §6) and may be nil, in which case the
// tree is never anything but in-memory.
func New(tenants *tenant.Store, bus *events.Bus, m *metrics.Counters, pools *workers.Pools, st store.Store) *Walker {
	if m == nil {
		m = &metrics.Counters{}
	}
	if pools == nil {
		pools = workers.NewPools(1, 1)
	}
	return &Walker{tenants: tenants, bus: bus, metrics: m, pools: pools, store: st}
}

// Dispatch is a conn.Handler that routes a decoded frame to the matching
// Walker method. Opcodes this build does not implement a handler for are
// tolerated as a no-op (proto.ErrDispatchUnknown semantics, spec §7).
func (w *Walker) Dispatch(c *conn.Conn, f proto.Frame) error {
	switch f.Opcode {
	case proto.OpVersion:
		msg, err := proto.DecodeVersion(f.Body)
		if err != nil {
			return err
		}
		return w.HandleVersion(c, msg)
	case proto.OpTenant:
		msg, err := proto.DecodeTenant(f.Body)
		if err != nil {
			return err
		}
		return w.HandleTenant(c, msg)
	case proto.OpTenantHash:
		msg, err := proto.DecodeTenantHash(f.Body)
		if err != nil {
			return err
		}
		return w.HandleTenantHash(c, msg)
	case proto.OpFileExists:
		msg, err := proto.DecodeFileExists(f.Body)
		if err != nil {
			return err
		}
		return w.HandleFileExists(msg)
	case proto.OpCreateDirectory:
		msg, err := proto.DecodeCreateDirectory(f.Body)
		if err != nil {
			return err
		}
		return w.HandleCreateDirectory(msg)
	case proto.OpMoveOut:
		msg, err := proto.DecodeMoveOut(f.Body)
		if err != nil {
			return err
		}
		return w.HandleMoveOut(msg)
	case proto.OpFileHash:
		msg, err := proto.DecodeFileHash(f.Body)
		if err != nil {
			return err
		}
		return w.HandleFileHash(msg)
	case proto.OpFileDataBlock:
		msg, err := proto.DecodeFileDataBlock(f.Body)
		if err != nil {
			return err
		}
		return w.HandleFileDataBlock(msg)
	default:
		return nil
	}
}

// HandleVersion records a peer's advertised protocol version and, the
// first time this connection sees a VERSION, stamps its peer identity
// (spec §4.7). See conn.Conn.RecordPeerVersion for why identity is a
// locally-derived label rather than something decoded off the packet.
func (w *Walker) HandleVersion(c *conn.Conn, msg proto.Version) error {
	c.RecordPeerVersion(msg.Version)
	return nil
}

// HandleTenant compares an advertised tenant hash against the local
// tree's root hash and, on mismatch, kicks off a TENANT-HASH walk from
// the root (empty prefix). A TENANT for a tenant this node does not host,
// or has not subscribed to, is the "store the advertised hash for
// server-identity computation" branch spec §4.7 names and this build
// does not implement: it raises ErrNotImplemented rather than silently
// dropping the packet (spec §4.6/§7/§9).
func (w *Walker) HandleTenant(c *conn.Conn, msg proto.Tenant) error {
	t, ok := w.tenants.Get(msg.Name)
	if !ok || !t.Subscribed() {
		return proto.ErrNotImplemented
	}
	if t.Tree().RootHash() == msg.Hash {
		return nil
	}
	req := proto.TenantHash{Name: msg.Name, Prefix: ""}
	_, err := c.Enqueue(func() ([]byte, error) { return proto.Encode(proto.OpTenantHash, req.Encode()) })
	return err
}

// HandleTenantHash serves both directions of one descent step. An
// Entries-less message is a request: describe this node's children (or,
// if this prefix is a leaf, emit that leaf's records directly). An
// Entries-bearing message is a response: compare each child hash against
// the local tree and descend further into every mismatch. TENANT-HASH
// addressed to a tenant we do not host or are not subscribed to is the
// same unimplemented branch as HandleTenant's: raise ErrNotImplemented
// (spec §4.6/§7).
func (w *Walker) HandleTenantHash(c *conn.Conn, msg proto.TenantHash) error {
	t, ok := w.tenants.Get(msg.Name)
	if !ok || !t.Subscribed() {
		return proto.ErrNotImplemented
	}
	digits, err := PrefixToDigits(msg.Prefix)
	if err != nil {
		return err
	}
	w.metrics.AddNodesVisited(1)

	if len(msg.Entries) == 0 {
		return w.respondToDescent(c, t, msg.Name, msg.Prefix, digits)
	}
	return w.diffAndDescend(c, t, msg.Name, msg.Prefix, digits, msg.Entries)
}

func (w *Walker) respondToDescent(c *conn.Conn, t *tenant.Tenant, tenantName, prefix string, digits []uint8) error {
	children, ok := t.Tree().Children(digits)
	if !ok {
		return w.emitLeafPackets(c, t, tenantName, digits)
	}
	entries := make([]proto.TenantHashEntry, 0, len(children))
	for _, ch := range children {
		entries = append(entries, proto.TenantHashEntry{SuffixAndFlags: ch.Digit, Hash: ch.Hash})
	}
	resp := proto.TenantHash{Name: tenantName, Prefix: prefix, Entries: entries}
	_, err := c.Enqueue(func() ([]byte, error) { return proto.Encode(proto.OpTenantHash, resp.Encode()) })
	return err
}

func (w *Walker) diffAndDescend(c *conn.Conn, t *tenant.Tenant, tenantName, prefix string, digits []uint8, remote []proto.TenantHashEntry) error {
	local, _ := t.Tree().Children(digits)
	localByDigit := make(map[uint8]digest.Hash, len(local))
	for _, lc := range local {
		localByDigit[lc.Digit] = lc.Hash
	}

	for _, e := range remote {
		w.metrics.AddHashComparisons(1)
		suffix := e.Suffix()
		if localByDigit[suffix] == e.Hash {
			continue
		}
		nextDigits := append(append([]uint8{}, digits...), suffix)
		req := proto.TenantHash{Name: tenantName, Prefix: DigitsToPrefix(nextDigits)}
		if _, err := c.Enqueue(func() ([]byte, error) { return proto.Encode(proto.OpTenantHash, req.Encode()) }); err != nil {
			return err
		}
	}
	return nil
}

// emitLeafPackets sends one leaf packet per record held at this prefix's
// leaf, so the peer that asked can apply them directly.
func (w *Walker) emitLeafPackets(c *conn.Conn, t *tenant.Tenant, tenantName string, digits []uint8) error {
	entries, ok := t.Tree().LeafEntries(digits)
	if !ok {
		return nil
	}
	w.metrics.AddLeavesTouched(int64(len(entries)))
	for _, rec := range entries {
		if err := w.emitLeafPacket(c, t, tenantName, rec); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) emitLeafPacket(c *conn.Conn, t *tenant.Tenant, tenantName string, rec inode.Record) error {
	var err error
	switch rec.Type {
	case inode.TypeDirectory:
		msg := proto.CreateDirectory{Priority: rec.Priority, Tenant: tenantName, Name: rec.Name}
		_, err = c.Enqueue(func() ([]byte, error) { return proto.Encode(proto.OpCreateDirectory, msg.Encode()) })
	case inode.TypeMoved:
		msg := proto.MoveOut{Priority: rec.Priority, Tenant: tenantName, Name: rec.Name}
		_, err = c.Enqueue(func() ([]byte, error) { return proto.Encode(proto.OpMoveOut, msg.Encode()) })
	default:
		msg := proto.FileExists{
			Priority: rec.Priority,
			Tenant:   tenantName,
			Name:     rec.Name,
			Stat:     proto.Stat{SizeBytes: rec.SizeBytes, Modified: rec.Modified},
		}
		if _, err = c.Enqueue(func() ([]byte, error) { return proto.Encode(proto.OpFileExists, msg.Encode()) }); err != nil {
			return err
		}
		err = w.emitFileContent(c, t, tenantName, rec)
	}
	return err
}

// emitFileContent reads a file's current bytes off the high-latency pool
// and follows FILE-EXISTS with one or more FILE-DATA-BLOCK packets and a
// trailing FILE-HASH, since nothing else on the wire ever transmits file
// content (spec §4.7's FILE-DATA-BLOCK row). A tenant with no local root,
// or a record whose name would resolve outside it, is left as a
// stat-only FILE-EXISTS: there is nothing local to read.
func (w *Walker) emitFileContent(c *conn.Conn, t *tenant.Tenant, tenantName string, rec inode.Record) error {
	if t == nil || t.LocalRoot == "" {
		return nil
	}
	full, err := safeJoin(t.LocalRoot, rec.Name)
	if err != nil {
		return nil
	}
	return w.pools.HighLatency.Submit(context.Background(), func() {
		data, err := os.ReadFile(full)
		if err != nil {
			w.publishApplyFailed(tenantName, rec.Name, err)
			return
		}
		if err := w.sendFileBlocks(c, tenantName, rec.Name, data); err != nil {
			return
		}
		fh := proto.FileHash{Tenant: tenantName, Name: rec.Name, Hash: digest.Sum(data)}
		_, _ = c.Enqueue(func() ([]byte, error) { return proto.Encode(proto.OpFileHash, fh.Encode()) })
	})
}

func (w *Walker) sendFileBlocks(c *conn.Conn, tenantName, name string, data []byte) error {
	if len(data) == 0 {
		block := proto.FileDataBlock{Tenant: tenantName, Name: name}
		_, err := c.Enqueue(func() ([]byte, error) { return proto.Encode(proto.OpFileDataBlock, block.Encode()) })
		return err
	}
	for off := 0; off < len(data); off += fileDataBlockSize {
		end := off + fileDataBlockSize
		if end > len(data) {
			end = len(data)
		}
		block := proto.FileDataBlock{Tenant: tenantName, Name: name, Offset: uint64(off), Data: data[off:end]}
		if _, err := c.Enqueue(func() ([]byte, error) { return proto.Encode(proto.OpFileDataBlock, block.Encode()) }); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) publishApplyFailed(tenantName, name string, err error) {
	if w.bus != nil {
		w.bus.Publish(events.Event{Type: events.TypeApplyFailed, Tenant: tenantName, Path: name, Detail: err.Error()})
	}
}

// HandleFileExists applies an incoming file record using the tenant
// tree's last-writer-wins rule (spec §4.7). Its content hash is left
// zero: FILE-EXISTS carries only size/modified stat, and the content
// hash arrives separately via FILE-HASH once the peer has actually
// hashed the bytes.
func (w *Walker) HandleFileExists(msg proto.FileExists) error {
	return w.apply(msg.Tenant, inode.Record{
		Name:      msg.Name,
		Type:      inode.TypeFile,
		Priority:  msg.Priority,
		SizeBytes: msg.Stat.SizeBytes,
		Modified:  msg.Stat.Modified,
	})
}

// HandleFileHash records a peer's content hash for an already-known
// file. Unlike the leaf packets, it carries no priority tick: it is an
// acknowledgement about content that was already accepted, not a
// competing write, so it bypasses the tick comparison entirely.
func (w *Walker) HandleFileHash(msg proto.FileHash) error {
	t, ok := w.tenants.Get(msg.Tenant)
	if !ok {
		return nil
	}
	t.Tree().UpdateContentHash(msg.Name, msg.Hash)
	return nil
}

// HandleCreateDirectory applies an incoming directory record.
func (w *Walker) HandleCreateDirectory(msg proto.CreateDirectory) error {
	return w.apply(msg.Tenant, inode.Record{
		Name:     msg.Name,
		Type:     inode.TypeDirectory,
		Priority: msg.Priority,
	})
}

// HandleMoveOut applies an incoming tombstone.
func (w *Walker) HandleMoveOut(msg proto.MoveOut) error {
	return w.apply(msg.Tenant, inode.Record{
		Name:     msg.Name,
		Type:     inode.TypeMoved,
		Priority: msg.Priority,
	})
}

// apply folds rec into the tenant's tree synchronously (so the very next
// packet on this connection sees up-to-date tree state) and, if that
// changed anything, hands the actual filesystem effect and persistence
// to the high-latency pool: the reader goroutine must never block on
// disk (spec §4.6 point 4, §5).
func (w *Walker) apply(tenantName string, rec inode.Record) error {
	t, ok := w.tenants.Get(tenantName)
	if !ok {
		return nil
	}
	if changed := t.Tree().Upsert(rec); changed {
		if w.bus != nil {
			w.bus.Publish(events.Event{Type: events.TypeLeafApplied, Tenant: tenantName, Path: rec.Name})
		}
		w.scheduleApply(t, tenantName, rec)
	}
	return nil
}

func (w *Walker) scheduleApply(t *tenant.Tenant, tenantName string, rec inode.Record) {
	err := w.pools.HighLatency.Submit(context.Background(), func() {
		if t.LocalRoot != "" {
			if err := applyFilesystemEffect(t.LocalRoot, rec); err != nil {
				w.publishApplyFailed(tenantName, rec.Name, err)
			}
		}
		if err := PersistLeaf(w.store, t.Tree(), tenantName, rec.Name); err != nil {
			w.publishApplyFailed(tenantName, rec.Name, err)
		}
	})
	if err != nil {
		w.publishApplyFailed(tenantName, rec.Name, err)
	}
}

// HandleFileDataBlock writes a byte range into the corresponding local
// file (spec §4.7's FILE-DATA-BLOCK row). The write itself runs on the
// high-latency pool; only the tenant lookup and path check happen on the
// reader goroutine.
func (w *Walker) HandleFileDataBlock(msg proto.FileDataBlock) error {
	t, ok := w.tenants.Get(msg.Tenant)
	if !ok || t.LocalRoot == "" {
		return nil
	}
	full, err := safeJoin(t.LocalRoot, msg.Name)
	if err != nil {
		return err
	}
	offset := int64(msg.Offset)
	data := msg.Data
	return w.pools.HighLatency.Submit(context.Background(), func() {
		if err := writeFileBlock(full, offset, data); err != nil {
			w.publishApplyFailed(msg.Tenant, msg.Name, err)
		}
	})
}

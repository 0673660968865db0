package reconcile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raskfs/rask/internal/store"
	"github.com/raskfs/rask/pkg/conn"
	"github.com/raskfs/rask/pkg/digest"
	"github.com/raskfs/rask/pkg/hashtree"
	"github.com/raskfs/rask/pkg/inode"
	"github.com/raskfs/rask/pkg/proto"
	"github.com/raskfs/rask/pkg/tenant"
	"github.com/raskfs/rask/pkg/tick"
	"github.com/raskfs/rask/pkg/workers"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func hashtreeSplitThreshold() int { return hashtree.MaxLeafEntries + 10 }

func nthName(i int) string { return fmt.Sprintf("file-%03d", i) }

func newHarness(t *testing.T) (*Walker, *tenant.Tenant, *conn.Conn, net.Conn) {
	t.Helper()
	tenants := tenant.NewStore()
	tn := tenant.New("docs", t.TempDir())
	tenants.Add(tn)
	w := New(tenants, nil, nil, workers.NewPools(2, 2), nil)

	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	c := conn.New(a, nil, nil)
	return w, tn, c, b
}

// readFrame returns the next frame other than VERSION: conn.Run enqueues
// its own VERSION at start, and where that lands among the packets under
// test depends on goroutine scheduling.
func readFrame(t *testing.T, r *bufio.Reader) proto.Frame {
	t.Helper()
	for {
		f, err := proto.ReadFrame(r)
		require.NoError(t, err)
		if f.Opcode != proto.OpVersion {
			return f
		}
	}
}

func TestHandleTenantMatchingHashIsNoop(t *testing.T) {
	w, tn, c, peer := newHarness(t)
	msg := proto.Tenant{Name: "docs", Hash: tn.Tree().RootHash()}
	require.NoError(t, w.HandleTenant(c, msg))

	// nothing should have been written; prove it by racing a timeout.
	done := make(chan struct{})
	go func() {
		br := bufio.NewReader(peer)
		_, _ = proto.ReadFrame(br)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("expected no TENANT-HASH request on matching hash")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleTenantUnknownTenantIsNotImplemented(t *testing.T) {
	w, _, c, _ := newHarness(t)
	msg := proto.Tenant{Name: "no-such-tenant", Hash: digest.Sum([]byte("x"))}
	require.ErrorIs(t, w.HandleTenant(c, msg), proto.ErrNotImplemented)
}

func TestHandleTenantUnsubscribedTenantIsNotImplemented(t *testing.T) {
	w, tn, c, _ := newHarness(t)
	tn.SetSubscribed(false)
	msg := proto.Tenant{Name: "docs", Hash: digest.Sum([]byte("x"))}
	require.ErrorIs(t, w.HandleTenant(c, msg), proto.ErrNotImplemented)
}

func TestHandleTenantHashUnsubscribedTenantIsNotImplemented(t *testing.T) {
	w, tn, c, _ := newHarness(t)
	tn.SetSubscribed(false)
	req := proto.TenantHash{Name: "docs", Prefix: ""}
	require.ErrorIs(t, w.HandleTenantHash(c, req), proto.ErrNotImplemented)
}

func TestHandleVersionRecordsVersionAndStampsIdentityOnce(t *testing.T) {
	w, _, c, _ := newHarness(t)
	require.Zero(t, c.PeerIdentity())

	require.NoError(t, w.HandleVersion(c, proto.Version{Version: 1}))
	require.EqualValues(t, 1, c.PeerVersion())
	first := c.PeerIdentity()
	require.NotZero(t, first)

	require.NoError(t, w.HandleVersion(c, proto.Version{Version: 1}))
	require.Equal(t, first, c.PeerIdentity(), "identity is stamped once, not re-derived per VERSION")
}

func TestHandleTenantMismatchTriggersRootDescent(t *testing.T) {
	w, _, c, peer := newHarness(t)
	msg := proto.Tenant{Name: "docs", Hash: digest.Sum([]byte("different"))}

	go func() { _ = w.HandleTenant(c, msg) }()
	go func() { _ = c.Run(testContext(t), nil) }()

	br := bufio.NewReader(peer)
	f := readFrame(t, br)
	require.Equal(t, proto.OpTenantHash, f.Opcode)
	got, err := proto.DecodeTenantHash(f.Body)
	require.NoError(t, err)
	require.Equal(t, "", got.Prefix)
	require.Empty(t, got.Entries)
}

func TestRespondToDescentOnLeafEmitsLeafPackets(t *testing.T) {
	w, tn, c, peer := newHarness(t)
	tn.Tree().Upsert(inode.Record{
		Name:     "a.txt",
		Type:     inode.TypeFile,
		Priority: tick.Tick{Time: 1, Server: 1},
	})

	req := proto.TenantHash{Name: "docs", Prefix: ""}
	go func() { _ = w.HandleTenantHash(c, req) }()
	go func() { _ = c.Run(testContext(t), nil) }()

	br := bufio.NewReader(peer)
	f := readFrame(t, br)
	require.Equal(t, proto.OpFileExists, f.Opcode)
	got, err := proto.DecodeFileExists(f.Body)
	require.NoError(t, err)
	require.Equal(t, "a.txt", got.Name)
}

func TestDiffAndDescendRequestsOnlyMismatchedChildren(t *testing.T) {
	w, tn, c, peer := newHarness(t)
	for i := 0; i < hashtreeSplitThreshold(); i++ {
		tn.Tree().Upsert(inode.Record{Name: nthName(i), Type: inode.TypeFile, Priority: tick.Tick{Time: int64(i + 1), Server: 1}})
	}
	children, ok := tn.Tree().Children(nil)
	require.True(t, ok)
	require.NotEmpty(t, children)

	// Corrupt one child's hash so it looks mismatched, leave the rest matching.
	entries := make([]proto.TenantHashEntry, 0, len(children))
	mismatchDigit := children[0].Digit
	for _, c2 := range children {
		h := c2.Hash
		if c2.Digit == mismatchDigit {
			h = digest.Sum([]byte("corrupt"))
		}
		entries = append(entries, proto.TenantHashEntry{SuffixAndFlags: c2.Digit, Hash: h})
	}
	resp := proto.TenantHash{Name: "docs", Prefix: "", Entries: entries}

	go func() { _ = w.HandleTenantHash(c, resp) }()
	go func() { _ = c.Run(testContext(t), nil) }()

	br := bufio.NewReader(peer)
	f := readFrame(t, br)
	require.Equal(t, proto.OpTenantHash, f.Opcode)
	got, err := proto.DecodeTenantHash(f.Body)
	require.NoError(t, err)
	require.Equal(t, DigitsToPrefix([]uint8{mismatchDigit}), got.Prefix)
}

func TestApplyFileExistsThenFileHashUpdatesContentHash(t *testing.T) {
	w, tn, _, _ := newHarness(t)
	require.NoError(t, w.HandleFileExists(proto.FileExists{
		Priority: tick.Tick{Time: 1, Server: 1},
		Tenant:   "docs",
		Name:     "a.txt",
	}))
	h := digest.Sum([]byte("content"))
	require.NoError(t, w.HandleFileHash(proto.FileHash{Tenant: "docs", Name: "a.txt", Hash: h}))

	rec, ok := tn.Tree().Lookup("a.txt")
	require.True(t, ok)
	require.Equal(t, h, rec.ContentHash)
}

func TestApplyMoveOutMarksTombstone(t *testing.T) {
	w, tn, _, _ := newHarness(t)
	require.NoError(t, w.HandleMoveOut(proto.MoveOut{
		Priority: tick.Tick{Time: 1, Server: 1},
		Tenant:   "docs",
		Name:     "old.txt",
	}))
	rec, ok := tn.Tree().Lookup("old.txt")
	require.True(t, ok)
	require.Equal(t, inode.TypeMoved, rec.Type)
}

func TestHandleCreateDirectoryMaterializesUnderLocalRoot(t *testing.T) {
	w, tn, _, _ := newHarness(t)
	require.NoError(t, w.HandleCreateDirectory(proto.CreateDirectory{
		Priority: tick.Tick{Time: 1, Server: 1},
		Tenant:   "docs",
		Name:     "sub/nested",
	}))

	want := filepath.Join(tn.LocalRoot, "sub", "nested")
	require.Eventually(t, func() bool {
		info, err := os.Stat(want)
		return err == nil && info.IsDir()
	}, time.Second, 5*time.Millisecond, "CREATE-DIRECTORY must create the directory on disk")
}

func TestHandleFileExistsAllocatesFileToAdvertisedSize(t *testing.T) {
	w, tn, _, _ := newHarness(t)
	require.NoError(t, w.HandleFileExists(proto.FileExists{
		Priority: tick.Tick{Time: 1, Server: 1},
		Tenant:   "docs",
		Name:     "big.bin",
		Stat:     proto.Stat{SizeBytes: 4096},
	}))

	want := filepath.Join(tn.LocalRoot, "big.bin")
	require.Eventually(t, func() bool {
		info, err := os.Stat(want)
		return err == nil && info.Size() == 4096
	}, time.Second, 5*time.Millisecond, "FILE-EXISTS must allocate the file to its advertised size")
}

func TestHandleMoveOutRemovesLocalPath(t *testing.T) {
	w, tn, _, _ := newHarness(t)
	target := filepath.Join(tn.LocalRoot, "gone.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	require.NoError(t, w.HandleMoveOut(proto.MoveOut{
		Priority: tick.Tick{Time: 1, Server: 1},
		Tenant:   "docs",
		Name:     "gone.txt",
	}))

	require.Eventually(t, func() bool {
		_, err := os.Stat(target)
		return os.IsNotExist(err)
	}, time.Second, 5*time.Millisecond, "MOVE-OUT must remove the local path")
}

func TestHandleFileDataBlockWritesOffsetIntoFile(t *testing.T) {
	w, tn, _, _ := newHarness(t)
	target := filepath.Join(tn.LocalRoot, "block.bin")
	require.NoError(t, os.WriteFile(target, make([]byte, 8), 0o644))

	require.NoError(t, w.HandleFileDataBlock(proto.FileDataBlock{
		Tenant: "docs",
		Name:   "block.bin",
		Offset: 4,
		Data:   []byte{1, 2, 3, 4},
	}))

	require.Eventually(t, func() bool {
		got, err := os.ReadFile(target)
		return err == nil && bytes.Equal(got, []byte{0, 0, 0, 0, 1, 2, 3, 4})
	}, time.Second, 5*time.Millisecond)
}

func TestEmitLeafPacketSendsFileDataBlockThenFileHash(t *testing.T) {
	w, tn, c, peer := newHarness(t)
	content := []byte("hello, rask")
	require.NoError(t, os.WriteFile(filepath.Join(tn.LocalRoot, "a.txt"), content, 0o644))
	tn.Tree().Upsert(inode.Record{Name: "a.txt", Type: inode.TypeFile, Priority: tick.Tick{Time: 1, Server: 1}})

	req := proto.TenantHash{Name: "docs", Prefix: ""}
	go func() { _ = w.HandleTenantHash(c, req) }()
	go func() { _ = c.Run(testContext(t), nil) }()

	br := bufio.NewReader(peer)
	f := readFrame(t, br)
	require.Equal(t, proto.OpFileExists, f.Opcode)

	f = readFrame(t, br)
	require.Equal(t, proto.OpFileDataBlock, f.Opcode)
	block, err := proto.DecodeFileDataBlock(f.Body)
	require.NoError(t, err)
	require.Equal(t, content, block.Data)

	f = readFrame(t, br)
	require.Equal(t, proto.OpFileHash, f.Opcode)
	fh, err := proto.DecodeFileHash(f.Body)
	require.NoError(t, err)
	require.Equal(t, digest.Sum(content), fh.Hash)
}

func TestPersistLeafRoundTripsThroughFileStore(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	tr := hashtree.New()
	tr.Upsert(inode.Record{Name: "a.txt", Type: inode.TypeFile, Priority: tick.Tick{Time: 1, Server: 1}, SizeBytes: 3})

	require.NoError(t, PersistLeaf(fs, tr, "docs", "a.txt"))

	digits, _, ok := tr.LeafDigits("a.txt")
	require.True(t, ok)
	raw, err := fs.Get(store.NodeKey("docs", DigitsToPrefix(digits)))
	require.NoError(t, err)
	require.Contains(t, string(raw), "a.txt")

	tenantsRaw, err := fs.Get(store.TenantsKey)
	require.NoError(t, err)
	require.Contains(t, string(tenantsRaw), "docs")
}

func TestPersistLeafIsNoopWithNilStore(t *testing.T) {
	tr := hashtree.New()
	tr.Upsert(inode.Record{Name: "a.txt", Type: inode.TypeFile, Priority: tick.Tick{Time: 1, Server: 1}})
	require.NoError(t, PersistLeaf(nil, tr, "docs", "a.txt"))
}

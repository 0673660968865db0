package hashtree

import (
	"fmt"
	"testing"

	"github.com/raskfs/rask/pkg/digest"
	"github.com/raskfs/rask/pkg/inode"
	"github.com/raskfs/rask/pkg/tick"
	"github.com/stretchr/testify/require"
)

func rec(name string, t int64) inode.Record {
	return inode.Record{
		Name:        name,
		Type:        inode.TypeFile,
		Priority:    tick.Tick{Time: t, Server: 1},
		ContentHash: digest.Sum([]byte(name)),
	}
}

func TestUpsertLookupRoundTrip(t *testing.T) {
	tr := New()
	require.True(t, tr.Upsert(rec("a/b.txt", 1)))

	got, ok := tr.Lookup("a/b.txt")
	require.True(t, ok)
	require.Equal(t, inode.TypeFile, got.Type)
}

func TestUpsertOlderTickIsNoop(t *testing.T) {
	tr := New()
	tr.Upsert(rec("f", 10))
	changed := tr.Upsert(rec("f", 3))
	require.False(t, changed)

	got, _ := tr.Lookup("f")
	require.Equal(t, int64(10), got.Priority.Time)
}

func TestRootHashChangesOnInsert(t *testing.T) {
	tr := New()
	h1 := tr.RootHash()
	tr.Upsert(rec("f", 1))
	h2 := tr.RootHash()
	require.NotEqual(t, h1, h2)
}

func TestRootHashDeterministicRegardlessOfInsertOrder(t *testing.T) {
	a := New()
	b := New()
	names := []string{"x", "y", "z", "w"}
	for _, n := range names {
		a.Upsert(rec(n, 1))
	}
	for i := len(names) - 1; i >= 0; i-- {
		b.Upsert(rec(names[i], 1))
	}
	require.Equal(t, a.RootHash(), b.RootHash())
}

func TestSplitOnOverflowPreservesAllEntries(t *testing.T) {
	tr := New()
	for i := 0; i < MaxLeafEntries+50; i++ {
		name := fmt.Sprintf("file-%03d", i)
		require.True(t, tr.Upsert(rec(name, int64(i+1))))
	}
	for i := 0; i < MaxLeafEntries+50; i++ {
		name := fmt.Sprintf("file-%03d", i)
		got, ok := tr.Lookup(name)
		require.True(t, ok, name)
		require.Equal(t, int64(i+1), got.Priority.Time)
	}
}

func TestChildrenOfRootAfterSplit(t *testing.T) {
	tr := New()
	for i := 0; i < MaxLeafEntries+10; i++ {
		tr.Upsert(rec(fmt.Sprintf("f%d", i), int64(i+1)))
	}
	children, ok := tr.Children(nil)
	require.True(t, ok)
	require.NotEmpty(t, children)
}

func TestChildrenOfLeafReturnsNotOK(t *testing.T) {
	tr := New()
	tr.Upsert(rec("solo", 1))
	_, ok := tr.Children(nil)
	require.False(t, ok)
}

func TestDigitAtWithinRange(t *testing.T) {
	h := digest.Sum([]byte("hello"))
	for i := 0; i < 51; i++ {
		d := digitAt(h, i)
		require.Less(t, d, uint8(32))
	}
}

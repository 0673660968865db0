package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put("a", []byte("1")))
	got, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get("missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStoreStats(t *testing.T) {
	s := NewMemoryStore()
	s.Put("a", []byte("12"))
	s.Put("b", []byte("345"))
	stats := s.Stats()
	require.Equal(t, 2, stats.Keys)
	require.Equal(t, 5, stats.Bytes)
}

func TestNodeKeyIncludesTenantAndPrefix(t *testing.T) {
	require.Equal(t, "node/docs/ab", NodeKey("docs", "ab"))
}

package inode

import (
	"testing"

	"github.com/raskfs/rask/pkg/digest"
	"github.com/raskfs/rask/pkg/tick"
	"github.com/stretchr/testify/require"
)

func TestApplyNewerWins(t *testing.T) {
	local := Record{Name: "a", Priority: tick.Tick{Time: 1, Server: 1}}
	incoming := Record{Name: "a", Priority: tick.Tick{Time: 2, Server: 1}, SizeBytes: 5}

	got, changed := Apply(local, incoming)
	require.True(t, changed)
	require.Equal(t, incoming, got)
}

func TestApplyOlderLoses(t *testing.T) {
	local := Record{Name: "a", Priority: tick.Tick{Time: 5, Server: 1}}
	incoming := Record{Name: "a", Priority: tick.Tick{Time: 2, Server: 1}}

	got, changed := Apply(local, incoming)
	require.False(t, changed)
	require.Equal(t, local, got)
}

func TestApplyTieLeavesLocalUnchanged(t *testing.T) {
	pri := tick.Tick{Time: 5, Server: 1}
	local := Record{Name: "a", Priority: pri, SizeBytes: 100}
	incoming := Record{Name: "a", Priority: pri, SizeBytes: 999}

	got, changed := Apply(local, incoming)
	require.False(t, changed)
	require.Equal(t, uint64(100), got.SizeBytes)
}

func TestHashChangesWithContent(t *testing.T) {
	r1 := Record{Name: "a", ContentHash: digest.Sum([]byte("x"))}
	r2 := Record{Name: "a", ContentHash: digest.Sum([]byte("y"))}
	require.NotEqual(t, r1.Hash(), r2.Hash())
}

func TestTypeString(t *testing.T) {
	require.Equal(t, "file", TypeFile.String())
	require.Equal(t, "directory", TypeDirectory.String())
	require.Equal(t, "moved", TypeMoved.String())
}

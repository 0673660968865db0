package rlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeJSON(t *testing.T) {
	require.NoError(t, Initialize(true, false))
	require.NotNil(t, L)
}

func TestInitializeConsole(t *testing.T) {
	require.NoError(t, Initialize(false, true))
	require.NotNil(t, L)
}

func TestWithReturnsChildLogger(t *testing.T) {
	require.NoError(t, Initialize(false, false))
	child := With("tenant", "docs")
	require.NotNil(t, child)
}

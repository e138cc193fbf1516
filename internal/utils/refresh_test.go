package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewRefreshTokenValue(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		v, err := NewRefreshTokenValue()
		require.NoError(t, err)
		id, err := uuid.Parse(v)
		require.NoError(t, err)
		require.Equal(t, uuid.Version(4), id.Version())
		require.False(t, seen[v])
		seen[v] = true
	}
}

func TestHashRefreshRaw(t *testing.T) {
	h := HashRefreshRaw("abc")
	require.Len(t, h, 64)
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h)
	require.NotEqual(t, h, HashRefreshRaw("abd"))
}

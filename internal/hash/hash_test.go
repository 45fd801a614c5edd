package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash_Deterministic(t *testing.T) {
	h := New()
	id1, hi1, lo1 := h.Hash(KeyBytes("topic"))
	id2, hi2, lo2 := h.Hash(KeyBytes("topic"))

	require.Equal(t, id1, id2)
	require.Equal(t, hi1, hi2)
	require.Equal(t, lo1, lo2)
}

func TestHash_DifferentKeysDiffer(t *testing.T) {
	h := New()
	id1, _, _ := h.Hash(KeyBytes("topic"))
	id2, _, _ := h.Hash(KeyBytes("disk"))

	require.NotEqual(t, id1, id2)
}

func TestKeyBytes_IntTypes(t *testing.T) {
	require.Equal(t, []byte("42"), KeyBytes(42))
	require.Equal(t, []byte("42"), KeyBytes(uint64(42)))
	require.Equal(t, []byte("topic"), KeyBytes("topic"))
}

package contentstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	b := []byte("Providers need 8GB RAM.")

	h1, err := s.Put(b)
	require.NoError(t, err)
	h2, err := s.Put(b)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)

	got, err := s.Get(h1)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestGetNotFound(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get("deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExists(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	b := []byte("hello")
	assert.False(t, s.Exists(Hash(b)))

	h, err := s.Put(b)
	require.NoError(t, err)
	assert.True(t, s.Exists(h))
}

func TestDistinctContentDistinctHash(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	h1, err := s.Put([]byte("a"))
	require.NoError(t, err)
	h2, err := s.Put([]byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

package badger

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/layerpack/internal/store"
)

func tempStore(t *testing.T, bucket string) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), bucket)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t, "assets")

	_, err := s.Get(ctx, "src")
	require.Error(t, err)
	assert.True(t, store.IsMissing(err))
	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Cause.Chain(), badger.ErrKeyNotFound.Error())

	require.NoError(t, s.Put(ctx, "src", []byte("first")))
	require.NoError(t, s.Put(ctx, "src/layers.zip", []byte("archive")))
	require.NoError(t, s.Put(ctx, "src", []byte("second")))

	data, err := s.Get(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	data, err = s.Get(ctx, "src/layers.zip")
	require.NoError(t, err)
	assert.Equal(t, []byte("archive"), data)
}

func TestStore_EmptyValue(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t, "")

	require.NoError(t, s.Put(ctx, "empty", nil))
	data, err := s.Get(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Empty(t, data)
}

func TestStore_BucketsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s, err := Open("", "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	a := New(s.db, "a")
	b := New(s.db, "b")

	require.NoError(t, a.Put(ctx, "key", []byte("from a")))

	_, err = b.Get(ctx, "key")
	assert.True(t, store.IsMissing(err))

	data, err := a.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("from a"), data)

	// Wrapped stores do not own the database.
	require.NoError(t, a.Close())
	_, err = a.Get(ctx, "key")
	require.NoError(t, err)
}

func TestStore_Errors(t *testing.T) {
	s := tempStore(t, "")

	assert.ErrorIs(t, s.Put(context.Background(), "", []byte("x")), store.ErrInvalidKey)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Get(ctx, "k")
	require.Error(t, err)
	assert.False(t, store.IsMissing(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, "b")
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = Open(dir, "b")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
}

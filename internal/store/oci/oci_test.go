package oci

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/layerpack/internal/store"
)

func newRegistry(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(registry.New(registry.Logger(log.New(io.Discard, "", 0))))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := NewStore(newRegistry(t)+"/layerpack/test", true, opts...)
	require.NoError(t, err)
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Put(ctx, "src", []byte("first")))
	require.NoError(t, s.Put(ctx, "src/layers.zip", []byte(strings.Repeat("archive", 100))))
	require.NoError(t, s.Put(ctx, "src", []byte("second")))

	data, err := s.Get(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	data, err = s.Get(ctx, "src/layers.zip")
	require.NoError(t, err)
	assert.Equal(t, []byte(strings.Repeat("archive", 100)), data)
}

func TestStore_MissingKey(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Put(ctx, "other", []byte("x")))

	for range 2 {
		_, err := s.Get(ctx, "missing-key")
		require.Error(t, err)
		assert.True(t, store.IsMissing(err))
	}
}

func TestStore_MissingRepositoryIsOther(t *testing.T) {
	s := newStore(t)

	_, err := s.Get(context.Background(), "src")
	require.Error(t, err)
	assert.False(t, store.IsMissing(err))
}

func TestStore_EmptyObject(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Put(ctx, "empty", nil))
	data, err := s.Get(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Empty(t, data)
}

func TestStore_EmptyKey(t *testing.T) {
	s := newStore(t)
	_, err := s.Get(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrInvalidKey)
}

func TestStore_TimeoutIsOther(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	s, err := NewStore(strings.TrimPrefix(srv.URL, "http://")+"/slow", true)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = s.Get(ctx, "src")
	require.Error(t, err)
	assert.False(t, store.IsMissing(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		missing bool
	}{
		{
			name: "manifest unknown",
			err: &transport.Error{
				StatusCode: http.StatusNotFound,
				Errors:     []transport.Diagnostic{{Code: transport.ManifestUnknownErrorCode}},
			},
			missing: true,
		},
		{
			name:    "bare 404",
			err:     &transport.Error{StatusCode: http.StatusNotFound},
			missing: true,
		},
		{
			name: "name unknown",
			err: &transport.Error{
				StatusCode: http.StatusNotFound,
				Errors:     []transport.Diagnostic{{Code: transport.NameUnknownErrorCode}},
			},
		},
		{
			name: "unauthorized",
			err: &transport.Error{
				StatusCode: http.StatusUnauthorized,
				Errors:     []transport.Diagnostic{{Code: transport.UnauthorizedErrorCode}},
			},
		},
		{
			name: "throttled",
			err: &transport.Error{
				StatusCode: http.StatusTooManyRequests,
				Errors:     []transport.Diagnostic{{Code: transport.TooManyRequestsErrorCode}},
			},
		},
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
		},
		{
			name: "network",
			err:  errors.New("dial tcp: connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if tt.missing {
				assert.Equal(t, store.KindObjectMissing, got.Kind)
			} else {
				assert.Equal(t, store.KindOther, got.Kind)
			}
		})
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("SucceedsAfterTemporaryFailure", func(t *testing.T) {
		calls := 0
		got, err := retry(ctx, 2, func() (int, error) {
			calls++
			if calls == 1 {
				return 0, &transport.Error{StatusCode: http.StatusServiceUnavailable}
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 2, calls)
	})

	t.Run("StopsOnPermanentFailure", func(t *testing.T) {
		calls := 0
		_, err := retry(ctx, 3, func() (int, error) {
			calls++
			return 0, &transport.Error{
				StatusCode: http.StatusNotFound,
				Errors:     []transport.Diagnostic{{Code: transport.ManifestUnknownErrorCode}},
			}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("SingleAttemptByDefault", func(t *testing.T) {
		calls := 0
		_, err := retry(ctx, 0, func() (int, error) {
			calls++
			return 0, errors.New("connection reset")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestTagFor(t *testing.T) {
	tag := TagFor("src/layers.zip")
	assert.True(t, strings.HasPrefix(tag, "k-"))
	assert.Len(t, tag, 66)
	assert.NotEqual(t, tag, TagFor("src"))
}

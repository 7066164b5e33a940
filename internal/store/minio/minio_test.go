package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/layerpack/internal/store"
)

func TestClassify(t *testing.T) {
	missing := classify(minio.ErrorResponse{
		Code:       "NoSuchKey",
		Message:    "The specified key does not exist.",
		StatusCode: http.StatusNotFound,
	})
	assert.Equal(t, store.KindObjectMissing, missing.Kind)

	noBucket := classify(minio.ErrorResponse{
		Code:       "NoSuchBucket",
		StatusCode: http.StatusNotFound,
	})
	assert.Equal(t, store.KindOther, noBucket.Kind)

	timeout := classify(fmt.Errorf("read: %w", context.DeadlineExceeded))
	assert.Equal(t, store.KindOther, timeout.Kind)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)

	assert.Equal(t, store.KindOther, classify(errors.New("connection refused")).Kind)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/zip", contentType("src/layers.zip"))
	assert.Equal(t, "application/octet-stream", contentType("src"))
}

// TestStore_Integration requires a running MinIO instance.
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping MinIO integration test: MINIO_ENDPOINT not set")
	}

	client, err := NewClient(endpoint, os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), false)
	require.NoError(t, err)

	ctx := context.Background()
	bucket := "test-layerpack"
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	st := NewStore(client, bucket, fmt.Sprintf("test-%d/", time.Now().UnixNano()))

	_, err = st.Get(ctx, "missing-key")
	assert.True(t, store.IsMissing(err))

	require.NoError(t, st.Put(ctx, "key", []byte("first")))
	require.NoError(t, st.Put(ctx, "key", []byte("second")))

	data, err := st.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

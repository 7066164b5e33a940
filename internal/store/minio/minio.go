// Package minio provides a store.ObjectStore for MinIO and other
// S3-compatible services (Ceph, Garage, SeaweedFS) using the MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	st := miniostore.NewStore(client, "my-bucket", "layers/")
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aweris/layerpack/internal/store"
)

// Store implements store.ObjectStore on a MinIO bucket.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a MinIO object store.
// rootPrefix is prepended to all keys (e.g. "layers/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

// NewClient creates a MinIO client with static credentials.
func NewClient(endpoint, accessKey, secretKey string, secure bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Get downloads the object at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := store.CheckKey(key); err != nil {
		return nil, err
	}

	// GetObject is lazy; a missing key surfaces on the first read.
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

// Put uploads data at key, replacing any existing object.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := store.CheckKey(key); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, s.bucket, s.key(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return store.Other(err)
	}
	return nil
}

// classify maps a MinIO failure onto the storage taxonomy. Only NoSuchKey is
// a definitive miss; NoSuchBucket is Other.
func classify(err error) *store.Error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return store.Missing(err)
	}
	return store.Other(err)
}

func contentType(key string) string {
	if path.Ext(key) == ".zip" {
		return "application/zip"
	}
	return "application/octet-stream"
}

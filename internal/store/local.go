package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aweris/layerpack/internal/compression"
)

// LocalStore implements ObjectStore on the local filesystem.
//
// Storage layout:
//
//	root/
//	  <key>.obj      (tagged payload, see package compression)
//	  .tmp-*         (in-flight writes, renamed into place)
//
// Keys map onto paths below root; keys that would escape it are rejected.
// The suffix lets "src" and "src/layers.zip" exist side by side.
type LocalStore struct {
	root  string
	codec *compression.Codec
	owned bool
}

// NewLocalStore creates a store rooted at root, writing objects with the
// given codec. Directories are created by the first Put.
func NewLocalStore(root string, tag compression.Tag) (*LocalStore, error) {
	codec, err := compression.NewCodec(tag)
	if err != nil {
		return nil, fmt.Errorf("failed to create codec: %w", err)
	}

	s := NewLocalStoreWithCodec(root, codec)
	s.owned = true
	return s, nil
}

// NewLocalStoreWithCodec creates a store sharing codec with other stores.
// The caller keeps ownership of codec.
func NewLocalStoreWithCodec(root string, codec *compression.Codec) *LocalStore {
	return &LocalStore{
		root:  root,
		codec: codec,
	}
}

// Get reads the object at key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := CheckRelativeKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Other(err)
	}

	raw, err := os.ReadFile(s.objectPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Missing(err)
		}
		return nil, Other(fmt.Errorf("failed to read object: %w", err))
	}

	data, err := s.codec.Decode(raw)
	if err != nil {
		return nil, Other(fmt.Errorf("failed to decode object %s: %w", key, err))
	}
	return data, nil
}

// Put writes data at key. The write is atomic: a concurrent reader sees
// either the previous object or the new one.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	if err := CheckRelativeKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return Other(err)
	}

	path := s.objectPath(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Other(fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return Other(fmt.Errorf("failed to create temp file: %w", err))
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(s.codec.Encode(data)); err != nil {
		_ = tmp.Close()
		return Other(fmt.Errorf("failed to write object: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return Other(fmt.Errorf("failed to write object: %w", err))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Other(fmt.Errorf("failed to commit object: %w", err))
	}
	return nil
}

// Root returns the directory the store writes to.
func (s *LocalStore) Root() string { return s.root }

// Close releases the codec if the store created it.
func (s *LocalStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.codec.Close()
}

const objectSuffix = ".obj"

// objectPath returns the filesystem path for a key.
func (s *LocalStore) objectPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key)+objectSuffix)
}

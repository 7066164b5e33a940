// Package store implements the object storage layer.
//
// The ObjectStore interface is a narrow key-value abstraction over a
// remote or local byte store:
// - Get/Put only, overwrite semantics on Put
// - every failure is classified as ObjectMissing or Other (see Error)
// - implementations return private copies, so callers may keep results
package store

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// ObjectStore reads and writes whole objects by key.
type ObjectStore interface {
	// Get retrieves the object stored at key.
	// Fails with an ObjectMissing *Error only when the backend definitively
	// reports that no such object exists.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data at key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error
}

// CheckKey validates a storage key. Keys must be non-empty.
func CheckKey(key string) error {
	if key == "" {
		return Other(ErrInvalidKey)
	}
	return nil
}

// CheckRelativeKey validates a key that maps onto a path hierarchy.
// Besides being non-empty, it must stay below the root.
func CheckRelativeKey(key string) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	if path.Clean(key) != key || key == "." || key == ".." ||
		strings.HasPrefix(key, "/") || strings.HasPrefix(key, "../") {
		return Other(fmt.Errorf("%w: %q", ErrInvalidKey, key))
	}
	return nil
}

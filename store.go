package layerpack

import (
	"github.com/aweris/layerpack/internal/compression"
	"github.com/aweris/layerpack/internal/store"
	"github.com/aweris/layerpack/internal/store/oci"
)

// ObjectStore is the storage interface the pipeline reads from and writes
// to. Re-exported from internal/store for convenience.
type ObjectStore = store.ObjectStore

// StorageError is the classified error every ObjectStore returns.
type StorageError = store.Error

// Storage error kinds.
const (
	KindOther         = store.KindOther
	KindObjectMissing = store.KindObjectMissing
)

var (
	ErrObjectMissing = store.ErrObjectMissing
	ErrInvalidKey    = store.ErrInvalidKey
)

// IsMissing reports whether err is a definitive "no such object".
func IsMissing(err error) bool { return store.IsMissing(err) }

// Codec tags for LocalStore.
const (
	CodecNone = compression.None
	CodecLZ4  = compression.LZ4
	CodecZstd = compression.Zstd
)

// NewMemoryStore returns an in-process store.
func NewMemoryStore() *store.MemoryStore { return store.NewMemoryStore() }

// NewLocalStore returns a store rooted at dir, compressing objects at rest
// with codec.
func NewLocalStore(dir string, codec compression.Tag) (*store.LocalStore, error) {
	return store.NewLocalStore(dir, codec)
}

// NewCachingStore wraps inner with a cache of up to maxBytes.
func NewCachingStore(inner ObjectStore, maxBytes int64) (*store.CachingStore, error) {
	return store.NewCachingStore(inner, maxBytes)
}

// NewOCIStore returns a store keeping one tag per key in an OCI registry
// repository such as "ghcr.io/acme/layers". retries is the number of
// attempts per registry call.
func NewOCIStore(repository string, insecure bool, retries int) (*oci.Store, error) {
	return oci.NewStore(repository, insecure, oci.WithRetries(retries))
}

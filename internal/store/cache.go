package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// cachedObject is either a positive entry (data) or a definitive miss.
type cachedObject struct {
	data    []byte
	missing *Error
}

// flight tracks the operations running on one cache key. gen moves on every
// write, so a read that started before a write never fills the cache.
type flight struct {
	gen  uint64
	refs int
}

// ObjectCache is a bounded object cache that can back several CachingStores,
// each in its own namespace.
type ObjectCache struct {
	items *ristretto.Cache[string, cachedObject]

	mu      sync.Mutex
	flights map[string]*flight
}

// NewObjectCache creates a cache holding at most maxBytes of object data.
func NewObjectCache(maxBytes int64) (*ObjectCache, error) {
	if maxBytes <= 0 {
		return nil, errors.New("cache size must be positive")
	}

	items, err := ristretto.NewCache(&ristretto.Config[string, cachedObject]{
		NumCounters:        1e5,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &ObjectCache{
		items:   items,
		flights: make(map[string]*flight),
	}, nil
}

// Wrap returns a CachingStore over inner that keeps its entries under
// namespace. The cache stays owned by the caller.
func (c *ObjectCache) Wrap(inner ObjectStore, namespace string) *CachingStore {
	return &CachingStore{inner: inner, cache: c, ns: namespace}
}

// Close stops the cache's background goroutines.
func (c *ObjectCache) Close() error {
	c.items.Close()
	return nil
}

func (c *ObjectCache) begin(key string, write bool) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.flights[key]
	if !ok {
		f = &flight{}
		c.flights[key] = f
	}
	f.refs++
	if write {
		f.gen++
		c.items.Del(key)
	}
	return f.gen
}

// finish ends an operation started at gen. A read stores obj only when no
// write began in the meantime; a write always stores it.
func (c *ObjectCache) finish(key string, gen uint64, write bool, obj *cachedObject, cost int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := c.flights[key]
	if write {
		f.gen++
	}
	if obj != nil && (write || f.gen == gen) {
		c.items.Set(key, *obj, cost)
	}
	if f.refs--; f.refs == 0 {
		delete(c.flights, key)
	}
}

// CachingStore wraps an ObjectStore and caches Get results.
//
// Successful reads and ObjectMissing results are cached; ObjectMissing is a
// stable fact until the key is written. Other failures are never cached.
// Put writes through and refreshes the cached entry. A Get that overlaps a
// Put on the same key does not cache what it read.
type CachingStore struct {
	inner ObjectStore
	cache *ObjectCache
	ns    string
	owned bool
}

// NewCachingStore creates a CachingStore with its own cache of at most
// maxBytes of object data.
func NewCachingStore(inner ObjectStore, maxBytes int64) (*CachingStore, error) {
	cache, err := NewObjectCache(maxBytes)
	if err != nil {
		return nil, err
	}
	s := cache.Wrap(inner, "")
	s.owned = true
	return s, nil
}

func (s *CachingStore) cacheKey(key string) string {
	if s.ns == "" {
		return key
	}
	return s.ns + "\x00" + key
}

// Get serves key from the cache, falling back to the inner store.
func (s *CachingStore) Get(ctx context.Context, key string) ([]byte, error) {
	ck := s.cacheKey(key)
	if obj, ok := s.cache.items.Get(ck); ok {
		if obj.missing != nil {
			return nil, obj.missing.Clone()
		}
		return clone(obj.data), nil
	}

	gen := s.cache.begin(ck, false)
	data, err := s.inner.Get(ctx, key)
	if err != nil {
		var obj *cachedObject
		var se *Error
		if errors.As(err, &se) && se.Kind == KindObjectMissing {
			obj = &cachedObject{missing: se.Clone()}
		}
		s.cache.finish(ck, gen, false, obj, 1)
		return nil, err
	}

	s.cache.finish(ck, gen, false, &cachedObject{data: clone(data)}, int64(len(data))+1)
	return data, nil
}

// Put writes through to the inner store.
func (s *CachingStore) Put(ctx context.Context, key string, data []byte) error {
	ck := s.cacheKey(key)
	gen := s.cache.begin(ck, true)
	if err := s.inner.Put(ctx, key, data); err != nil {
		s.cache.finish(ck, gen, true, nil, 0)
		return err
	}

	s.cache.finish(ck, gen, true, &cachedObject{data: clone(data)}, int64(len(data))+1)
	s.cache.items.Wait()
	return nil
}

// Close stops the cache if the store created it.
func (s *CachingStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.cache.Close()
}

func clone(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

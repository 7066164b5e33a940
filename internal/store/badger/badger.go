// Package badger provides an embedded store.ObjectStore backed by BadgerDB.
//
// It is meant for single-host deployments where an object service is not
// available. Bucket names become a key prefix so one database can serve
// several logical buckets.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/aweris/layerpack/internal/store"
)

// Store implements store.ObjectStore on a Badger database.
type Store struct {
	db     *badger.DB
	prefix string
	owned  bool
}

// Open opens (or creates) a database at dir. An empty dir opens an
// in-memory database.
func Open(dir, bucket string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory: %w", err)
	}
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := New(db, bucket)
	s.owned = true
	return s, nil
}

// New wraps an already opened database. The caller keeps ownership of db.
func New(db *badger.DB, bucket string) *Store {
	prefix := ""
	if bucket != "" {
		prefix = bucket + "/"
	}
	return &Store{db: db, prefix: prefix}
}

func (s *Store) key(name string) []byte {
	return []byte(s.prefix + name)
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := store.CheckKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, store.Other(err)
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.Missing(fmt.Errorf("no such key %s: %w", key, err))
	}
	if err != nil {
		return nil, store.Other(fmt.Errorf("failed to read %s: %w", key, err))
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Put stores data under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := store.CheckKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return store.Other(err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(key), append([]byte(nil), data...))
	})
	if err != nil {
		return store.Other(fmt.Errorf("failed to write %s: %w", key, err))
	}
	return nil
}

// DB returns the underlying database.
func (s *Store) DB() *badger.DB { return s.db }

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

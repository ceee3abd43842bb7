// Package cache implements the persistent metadata cache of the generator.
//
// The cache is an embedded Badger key-value store. Values are opaque
// serialized documents keyed by package identity under the "data/" and
// "hints/" prefixes. Durability across process restarts is the entire point
// of this cache: entries written by an interrupted run must be visible to
// the next one.
//
// The cache assumes a single coordinating process; it provides no
// cross-process locking beyond Badger's own directory lock.
package cache

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by Get for keys that have no entry.
var ErrNotFound = errors.New("cache: key not found")

// Cache is a handle to an open metadata cache.
type Cache struct {
	db *badger.DB
}

// Open opens (creating if necessary) the cache in the given directory.
// Writes are synchronous so that an entry reported as stored survives a
// crash.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cache at %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// Close releases the cache handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the value stored under key, or ErrNotFound.
func (c *Cache) Get(key string) ([]byte, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache key %s: %w", key, err)
	}
	return value, nil
}

// Has reports whether key exists, without loading its value.
func (c *Cache) Has(key string) (bool, error) {
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probing cache key %s: %w", key, err)
	}
	return true, nil
}

// Put stores value under key, overwriting any previous entry.
func (c *Cache) Put(key string, value []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("writing cache key %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Cache) Delete(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting cache key %s: %w", key, err)
	}
	return nil
}

// ForEachKey calls fn with the suffix of every key starting with prefix,
// in key order. Values are not prefetched, so scanning a large cache is
// cheap. Iteration stops at the first error returned by fn.
func (c *Cache) ForEachKey(prefix string, fn func(suffix string) error) error {
	p := []byte(prefix)
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			key := it.Item().KeyCopy(nil)
			if err := fn(string(key[len(p):])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning cache prefix %s: %w", prefix, err)
	}
	return nil
}

// Compact asks Badger to reclaim value-log space freed by deleted entries.
// It is best-effort and safe to call after a garbage-collection pass.
func (c *Cache) Compact() {
	// ErrNoRewrite signals there was nothing worth rewriting.
	for {
		if err := c.db.RunValueLogGC(0.5); err != nil {
			return
		}
	}
}

/* Copyright 2025 Pagekeep Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cache implements the byte cache behind the intercept proxy.
// Entries are partitioned into named namespaces: one namespace per pinned
// book, so that deleting one book's cache cannot evict another's, plus a
// single shared namespace for everything else. The cache is an
// optimization layer only; it must never be the sole holder of a book's
// reading bytes.
package cache

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"
	"github.com/pagekeep/pagekeep/pkg/agent/consts"
	"github.com/pkg/errors"
)

// ErrMiss is an error for a cache lookup that found nothing
var ErrMiss = errors.New("cache miss")

// keySeparator joins a namespace and a request key. The zero byte cannot
// appear in either, so prefix scans stay inside one namespace.
const keySeparator = "\x00"

// Config holds configuration for the byte cache
type Config struct {
	// Path is the directory for the cache files. Ignored when InMemory is true.
	Path string
	// InMemory enables in-memory mode with no disk persistence. Used in tests.
	InMemory bool
	// SyncWrites enables synchronous writes. Cached bytes are re-derivable
	// from the origin, so tests and latency-sensitive deployments turn it off.
	SyncWrites bool
}

// Cache is a namespaced byte cache
type Cache struct {
	db *badger.DB
}

// BookNamespace returns the cache namespace holding the given book's bytes
func BookNamespace(bookID string) string {
	return consts.BookCacheNamespacePrefix + bookID
}

// IsBookNamespace checks if the given namespace holds a single book's bytes
func IsBookNamespace(namespace string) bool {
	return len(namespace) > len(consts.BookCacheNamespacePrefix) &&
		namespace[:len(consts.BookCacheNamespacePrefix)] == consts.BookCacheNamespacePrefix
}

// Open opens the byte cache with the given configuration
func Open(cfg Config) (*Cache, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening cache database")
	}

	return &Cache{db: db}, nil
}

// Close closes the cache
func (c *Cache) Close() error {
	return c.db.Close()
}

func entryKey(namespace, requestKey string) []byte {
	return []byte(namespace + keySeparator + requestKey)
}

// Put stores the payload under the given namespace and request key.
// Concurrent writers to the same key race and the last write wins, which
// is acceptable because cached bytes are always re-derivable from origin.
func (c *Cache) Put(namespace, requestKey string, payload []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(namespace, requestKey), payload)
	})
	if err != nil {
		return errors.Wrapf(err, "storing cache entry %s in %s", requestKey, namespace)
	}

	return nil
}

// Get finds the payload stored under the given namespace and request key
func (c *Cache) Get(namespace, requestKey string) ([]byte, error) {
	var ret []byte

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(namespace, requestKey))
		if err != nil {
			return err
		}

		ret, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, errors.Wrapf(ErrMiss, "%s in %s", requestKey, namespace)
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading cache entry %s in %s", requestKey, namespace)
	}

	return ret, nil
}

// IsMiss checks if the given error indicates an absent cache entry
func IsMiss(err error) bool {
	return errors.Cause(err) == ErrMiss
}

// DeleteNamespace removes every entry in the given namespace
func (c *Cache) DeleteNamespace(namespace string) error {
	prefix := []byte(namespace + keySeparator)

	keys := [][]byte{}
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}

		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "collecting keys in namespace %s", namespace)
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return errors.Wrapf(err, "deleting cache entry in namespace %s", namespace)
		}
	}

	if err := wb.Flush(); err != nil {
		return errors.Wrapf(err, "flushing deletes for namespace %s", namespace)
	}

	return nil
}

// Namespaces returns the distinct namespaces currently present in the cache
func (c *Cache) Namespaces() ([]string, error) {
	seen := map[string]bool{}
	ret := []string{}

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			idx := bytes.Index(key, []byte(keySeparator))
			if idx < 0 {
				continue
			}

			namespace := string(key[:idx])
			if !seen[namespace] {
				seen[namespace] = true
				ret = append(ret, namespace)
			}
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "iterating cache namespaces")
	}

	return ret, nil
}

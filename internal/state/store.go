// SPDX-License-Identifier: MIT

// Package state owns the embedded key-value store shared by saved
// answers, seen listings, company records, and idempotency keys. Each
// consumer brings its own key prefix; the badger plumbing lives here.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dreambooster/dreambooster/internal/log"
)

// idemPrefix scopes API idempotency records.
const idemPrefix = "idem:"

// Store wraps the shared badger database.
type Store struct {
	db *badger.DB
}

// Open opens or creates the store under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Set stores val under key.
func (s *Store) Set(ctx context.Context, key string, val []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// SetWithTTL stores val under key with an expiry.
func (s *Store) SetWithTTL(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	entry := badger.NewEntry([]byte(key), val).WithTTL(ttl)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
}

// Get returns the value under key. A missing key is not an error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Has reports whether key exists.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Update atomically rewrites the value under key. fn receives the
// current value (found=false when absent) and returns the replacement;
// nil bytes delete the key.
func (s *Store) Update(ctx context.Context, key string, fn func(val []byte, found bool) ([]byte, error)) error {
	k := []byte(key)
	return s.db.Update(func(txn *badger.Txn) error {
		var cur []byte
		found := true
		item, err := txn.Get(k)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			found = false
		case err != nil:
			return err
		default:
			if cur, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		next, err := fn(cur, found)
		if err != nil {
			return err
		}
		if next == nil {
			if !found {
				return nil
			}
			return txn.Delete(k)
		}
		return txn.Set(k, next)
	})
}

// ScanPrefix streams all key/value pairs under prefix in key order.
func (s *Store) ScanPrefix(ctx context.Context, prefix string, fn func(key string, val []byte) error) error {
	p := []byte(prefix)
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountPrefix returns the number of keys under prefix.
func (s *Store) CountPrefix(ctx context.Context, prefix string) (int, error) {
	p := []byte(prefix)
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Idempotent binds value to an idempotency key. The first caller wins;
// later callers within ttl get the stored value back with replayed=true.
func (s *Store) Idempotent(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	k := []byte(idemPrefix + key)
	stored := value
	replayed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err == nil {
			replayed = true
			return item.Value(func(val []byte) error {
				stored = string(val)
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		entry := badger.NewEntry(k, []byte(value)).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return "", false, err
	}
	return stored, replayed, nil
}

// GC runs one value-log garbage collection pass. Nothing to rewrite is
// not an error.
func (s *Store) GC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// StartGC runs value-log garbage collection every interval until ctx
// is canceled. Badger never compacts the value log on its own.
func (s *Store) StartGC(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.GC(); err != nil {
					logger := log.WithComponent("state")
					logger.Warn().Err(err).Msg("value-log gc pass failed")
				}
			}
		}
	}()
}

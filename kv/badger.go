package kv

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"jmtstore/config"
)

type badgerEngine struct {
	db *badger.DB
}

// OpenBadger opens a BadgerDB engine. An empty path opens an in-memory instance.
func OpenBadger(cfg config.EngineConfig) (Engine, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithLogger(nil).
		WithSyncWrites(cfg.SyncWrites).
		WithReadOnly(cfg.ReadOnly)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	if cfg.Badger.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(cfg.Badger.ValueLogFileSize)
	}
	if cfg.Badger.NumMemtables > 0 {
		opts = opts.WithNumMemtables(cfg.Badger.NumMemtables)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", cfg.Path, err)
	}
	return &badgerEngine{db: db}, nil
}

func (e *badgerEngine) Get(key []byte) ([]byte, error) {
	var out []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return nil, ErrClosed
	}
	return out, err
}

func (e *badgerEngine) Iterate(lower, upper []byte, reverse bool, fn func(key, value []byte) error) error {
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		// A reverse Seek lands on the largest key <= target, so an exact hit on the
		// exclusive upper bound has to be skipped.
		switch {
		case reverse && upper != nil:
			it.Seek(upper)
			if it.Valid() && bytes.Equal(it.Item().Key(), upper) {
				it.Next()
			}
		case !reverse && lower != nil:
			it.Seek(lower)
		default:
			it.Rewind()
		}

		for ; it.Valid(); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			if reverse && lower != nil && bytes.Compare(k, lower) < 0 {
				return nil
			}
			if !reverse && upper != nil && bytes.Compare(k, upper) >= 0 {
				return nil
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
	return stopped(err)
}

// Write commits the whole batch in one transaction. A batch larger than Badger's
// transaction limit fails with badger.ErrTxnTooBig and nothing is applied.
func (e *badgerEngine) Write(b *Batch) error {
	return e.db.Update(func(txn *badger.Txn) error {
		return b.Each(func(key, value []byte) error {
			return txn.Set(key, value)
		})
	})
}

func (e *badgerEngine) Close() error {
	return e.db.Close()
}

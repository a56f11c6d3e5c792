package kv

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"jmtstore/config"
)

type pebbleEngine struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
}

// OpenPebble opens a Pebble engine. An empty path opens an in-memory filesystem.
func OpenPebble(cfg config.EngineConfig) (Engine, error) {
	opts := &pebble.Options{
		MaxOpenFiles: cfg.Pebble.MaxOpenFiles,
		ReadOnly:     cfg.ReadOnly,
	}
	if cfg.Path == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %q: %w", cfg.Path, err)
	}
	wo := pebble.NoSync
	if cfg.SyncWrites {
		wo = pebble.Sync
	}
	return &pebbleEngine{db: db, writeOpts: wo}, nil
}

func (e *pebbleEngine) Get(key []byte) ([]byte, error) {
	v, closer, err := e.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (e *pebbleEngine) Iterate(lower, upper []byte, reverse bool, fn func(key, value []byte) error) (err error) {
	iter, err := e.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := iter.Close(); err == nil {
			err = cerr
		}
	}()

	step := iter.Next
	ok := iter.First()
	if reverse {
		step = iter.Prev
		ok = iter.Last()
	}
	for ; ok; ok = step() {
		key := append([]byte(nil), iter.Key()...)
		val := append([]byte(nil), iter.Value()...)
		if err := fn(key, val); err != nil {
			return stopped(err)
		}
	}
	return iter.Error()
}

func (e *pebbleEngine) Write(b *Batch) error {
	batch := e.db.NewBatch()
	defer batch.Close()
	if err := b.Each(func(key, value []byte) error {
		return batch.Set(key, value, nil)
	}); err != nil {
		return err
	}
	return batch.Commit(e.writeOpts)
}

func (e *pebbleEngine) Close() error {
	return e.db.Close()
}

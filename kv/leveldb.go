package kv

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"jmtstore/config"
)

type levelDBEngine struct {
	db        *leveldb.DB
	writeOpts *opt.WriteOptions
}

// OpenLevelDB opens a goleveldb engine. An empty path uses memory storage.
func OpenLevelDB(cfg config.EngineConfig) (Engine, error) {
	o := &opt.Options{
		BlockCacheCapacity: cfg.LevelDB.BlockCacheCapacity,
		WriteBuffer:        cfg.LevelDB.WriteBuffer,
		ReadOnly:           cfg.ReadOnly,
	}
	var (
		db  *leveldb.DB
		err error
	)
	if cfg.Path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), o)
	} else {
		db, err = leveldb.OpenFile(cfg.Path, o)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", cfg.Path, err)
	}
	return &levelDBEngine{db: db, writeOpts: &opt.WriteOptions{Sync: cfg.SyncWrites}}, nil
}

func (e *levelDBEngine) Get(key []byte) ([]byte, error) {
	v, err := e.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(err, leveldb.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return v, nil
}

func (e *levelDBEngine) Iterate(lower, upper []byte, reverse bool, fn func(key, value []byte) error) error {
	it := e.db.NewIterator(&util.Range{Start: lower, Limit: upper}, nil)
	defer it.Release()
	return iterateLevelDB(it, reverse, fn)
}

// iterateLevelDB walks a goleveldb iterator; shared with the memdb engine.
func iterateLevelDB(it iterator.Iterator, reverse bool, fn func(key, value []byte) error) error {
	step := it.Next
	ok := it.First()
	if reverse {
		step = it.Prev
		ok = it.Last()
	}
	for ; ok; ok = step() {
		key := append([]byte(nil), it.Key()...)
		val := append([]byte(nil), it.Value()...)
		if err := fn(key, val); err != nil {
			return stopped(err)
		}
	}
	return it.Error()
}

func (e *levelDBEngine) Write(b *Batch) error {
	batch := new(leveldb.Batch)
	if err := b.Each(func(key, value []byte) error {
		batch.Put(key, value)
		return nil
	}); err != nil {
		return err
	}
	return e.db.Write(batch, e.writeOpts)
}

func (e *levelDBEngine) Close() error {
	return e.db.Close()
}

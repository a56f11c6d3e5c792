package kv

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb/comparer"
	"github.com/syndtr/goleveldb/leveldb/memdb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type memEntry struct {
	key, value []byte
}

// MemoryEngine keeps everything in a goleveldb memdb skiplist. A batch is applied
// under the write lock, so readers never observe half of it.
type MemoryEngine struct {
	mu     sync.RWMutex
	db     *memdb.DB
	closed bool

	copied atomic.Int64 // entries copied out by Iterate
}

func NewMemory() *MemoryEngine {
	return &MemoryEngine{db: memdb.New(comparer.DefaultComparer, 0)}
}

func (e *MemoryEngine) Get(key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	v, err := e.db.Get(key)
	if err != nil {
		if errors.Is(err, memdb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return append([]byte(nil), v...), nil
}

// memIterChunk is how many entries Iterate copies per read lock.
const memIterChunk = 64

// Iterate copies the range out in chunks under the read lock and runs fn without
// holding it, so callbacks may call back into the engine. Stopping early costs at most
// one chunk. Each chunk sees whole batches only; a scan longer than one chunk may also
// see batches committed while it runs.
func (e *MemoryEngine) Iterate(lower, upper []byte, reverse bool, fn func(key, value []byte) error) error {
	for {
		chunk, err := e.readChunk(lower, upper, reverse)
		if err != nil {
			return err
		}
		for _, ent := range chunk {
			if err := fn(ent.key, ent.value); err != nil {
				return stopped(err)
			}
		}
		if len(chunk) < memIterChunk {
			return nil
		}
		last := chunk[len(chunk)-1].key
		if reverse {
			upper = last
		} else {
			// smallest key after last
			lower = append(append(make([]byte, 0, len(last)+1), last...), 0x00)
		}
	}
}

func (e *MemoryEngine) readChunk(lower, upper []byte, reverse bool) ([]memEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	chunk := make([]memEntry, 0, memIterChunk)
	it := e.db.NewIterator(&util.Range{Start: lower, Limit: upper})
	defer it.Release()
	err := iterateLevelDB(it, reverse, func(key, value []byte) error {
		chunk = append(chunk, memEntry{key: key, value: value})
		e.copied.Add(1)
		if len(chunk) == memIterChunk {
			return ErrStop
		}
		return nil
	})
	return chunk, err
}

func (e *MemoryEngine) Write(b *Batch) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	// memdb.Put never fails, so the batch cannot be half applied.
	return b.Each(func(key, value []byte) error {
		return e.db.Put(key, value)
	})
}

// Len returns the number of stored keys.
func (e *MemoryEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.db.Len()
}

func (e *MemoryEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.db.Reset()
	return nil
}

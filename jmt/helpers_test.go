package jmt

import (
	"crypto/sha256"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"jmtstore/config"
	"jmtstore/kv"
)

var errInjected = errors.New("injected engine failure")

// faultyEngine rejects whole batches on demand.
type faultyEngine struct {
	kv.Engine
	failWrites atomic.Bool
	writes     atomic.Int64
}

func (f *faultyEngine) Write(b *kv.Batch) error {
	if f.failWrites.Load() {
		return errInjected
	}
	f.writes.Add(1)
	return f.Engine.Write(b)
}

func newTestStore(t *testing.T) (*Store, *kv.MemoryEngine) {
	t.Helper()
	mem := kv.NewMemory()
	s, err := NewStore(mem, config.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
		_ = mem.Close()
	})
	return s, mem
}

func newFaultyStore(t *testing.T) (*Store, *faultyEngine) {
	t.Helper()
	fe := &faultyEngine{Engine: kv.NewMemory()}
	s, err := NewStore(fe, config.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = fe.Close() })
	return s, fe
}

func hashOf(s string) KeyHash {
	return KeyHash(sha256.Sum256([]byte(s)))
}

func filled(b byte) KeyHash {
	var kh KeyHash
	for i := range kh {
		kh[i] = b
	}
	return kh
}

func leafFor(key string, value []byte) *LeafNode {
	return NewLeafNode(hashOf(key), ValueHash(sha256.Sum256(value)))
}

// naiveGetValue scans the whole engine and keeps the newest matching entry. It is the
// slow oracle the bounded reverse scan is checked against, never a lookup path.
func naiveGetValue(t testing.TB, e kv.Engine, kh KeyHash, maxVersion Version) (ValueEntry, bool) {
	t.Helper()
	var (
		best  ValueEntry
		found bool
	)
	err := e.Iterate(nil, nil, false, func(key, value []byte) error {
		if ClassifyKey(key) != NamespaceValue {
			return nil
		}
		storedKH, version, err := DecodeValueKey(key)
		if err != nil {
			return err
		}
		if storedKH != kh || version > maxVersion {
			return nil
		}
		if found && version <= best.Version {
			return nil
		}
		payload, deleted, err := decodeValue(value)
		if err != nil {
			return err
		}
		best = ValueEntry{KeyHash: kh, Version: version, Payload: payload, Deleted: deleted}
		found = true
		return nil
	})
	require.NoError(t, err)
	return best, found
}

func countEntries(t testing.TB, e kv.Engine) int {
	t.Helper()
	n := 0
	require.NoError(t, e.Iterate(nil, nil, false, func(_, _ []byte) error {
		n++
		return nil
	}))
	return n
}

func putRaw(t testing.TB, e kv.Engine, key, value []byte) {
	t.Helper()
	b := kv.NewBatch()
	b.Put(key, value)
	require.NoError(t, e.Write(b))
}

package jmt

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"jmtstore/kv"
)

// ============================================
// Batches produced by one tree update
// ============================================

// ValueEntry is one versioned value. Deleted marks a tombstone, in which case Payload is nil.
type ValueEntry struct {
	KeyHash KeyHash
	Version Version
	Payload []byte
	Deleted bool
}

type valueMapKey struct {
	version Version
	keyHash KeyHash
}

type nodeWrite struct {
	key  NodeKey
	node Node
}

// NodeBatch collects the node, value and preimage writes of a single tree update.
// It is not safe for concurrent use; the update that builds it owns it until it is written.
type NodeBatch struct {
	nodes     map[nodeMapKey]nodeWrite
	values    map[valueMapKey]ValueEntry
	preimages map[KeyHash][]byte
}

func NewNodeBatch() *NodeBatch {
	return &NodeBatch{
		nodes:     make(map[nodeMapKey]nodeWrite),
		values:    make(map[valueMapKey]ValueEntry),
		preimages: make(map[KeyHash][]byte),
	}
}

// PutNode stages node under key. A later put for the same key replaces it.
func (b *NodeBatch) PutNode(key NodeKey, node Node) {
	b.nodes[key.mapKey()] = nodeWrite{key: NodeKey{Version: key.Version, Path: append(NibblePath(nil), key.Path...)}, node: node}
}

// PutValue stages payload for kh at version.
func (b *NodeBatch) PutValue(version Version, kh KeyHash, payload []byte) {
	b.values[valueMapKey{version, kh}] = ValueEntry{
		KeyHash: kh,
		Version: version,
		Payload: append([]byte{}, payload...),
	}
}

// DeleteValue stages a tombstone for kh at version.
func (b *NodeBatch) DeleteValue(version Version, kh KeyHash) {
	b.values[valueMapKey{version, kh}] = ValueEntry{KeyHash: kh, Version: version, Deleted: true}
}

// PutPreimage stages the original bytes behind kh.
func (b *NodeBatch) PutPreimage(kh KeyHash, raw []byte) {
	b.preimages[kh] = append([]byte{}, raw...)
}

// Extend copies every staged write of other into b; other wins on conflicts.
func (b *NodeBatch) Extend(other *NodeBatch) {
	if other == nil {
		return
	}
	for k, w := range other.nodes {
		b.nodes[k] = w
	}
	for k, v := range other.values {
		b.values[k] = v
	}
	for k, v := range other.preimages {
		b.preimages[k] = v
	}
}

func (b *NodeBatch) NumNodes() int     { return len(b.nodes) }
func (b *NodeBatch) NumValues() int    { return len(b.values) }
func (b *NodeBatch) NumPreimages() int { return len(b.preimages) }

// IsEmpty reports whether nothing is staged.
func (b *NodeBatch) IsEmpty() bool {
	return len(b.nodes) == 0 && len(b.values) == 0 && len(b.preimages) == 0
}

// Values returns the staged value writes ordered by key hash, then version.
func (b *NodeBatch) Values() []ValueEntry {
	out := make([]ValueEntry, 0, len(b.values))
	for _, v := range b.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].KeyHash[:], out[j].KeyHash[:]); c != 0 {
			return c < 0
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// StaleNodeIndex records that NodeKey stopped being reachable from the root at StaleSinceVersion.
type StaleNodeIndex struct {
	StaleSinceVersion Version
	NodeKey           NodeKey
}

// TreeUpdateBatch is everything one tree update hands to the store.
type TreeUpdateBatch struct {
	NodeBatch        *NodeBatch
	StaleNodeIndices []StaleNodeIndex
}

// ============================================
// Batch assembler
// ============================================

type stagedPut struct {
	key, value []byte
}

// batchAssembler encodes staged writes into one kv.Batch. Nothing reaches the engine
// until commit, so an encoding or integrity failure leaves the store untouched.
type batchAssembler struct {
	store *Store
	puts  []stagedPut
	nodes []stagedPut // encoded nodes, for the cache after commit
	seen  map[string]struct{}

	numNodes, numValues, numPreimages, numStale int
}

func (s *Store) newAssembler() *batchAssembler {
	return &batchAssembler{store: s, seen: make(map[string]struct{})}
}

func (a *batchAssembler) add(key, value []byte) error {
	if _, dup := a.seen[string(key)]; dup {
		return fmt.Errorf("%w: key %x staged twice in one batch", ErrInvalidNode, key)
	}
	a.seen[string(key)] = struct{}{}
	a.puts = append(a.puts, stagedPut{key: key, value: value})
	return nil
}

func (a *batchAssembler) addNodes(b *NodeBatch) error {
	for _, w := range b.nodes {
		key, err := EncodeNodeKey(w.key)
		if err != nil {
			return fmt.Errorf("encode node key %s: %w", w.key, err)
		}
		val, err := EncodeNode(w.node)
		if err != nil {
			return fmt.Errorf("encode node %s: %w", w.key, err)
		}
		if err := a.add(key, val); err != nil {
			return err
		}
		a.nodes = append(a.nodes, stagedPut{key: key, value: val})
		a.numNodes++
	}
	return nil
}

func (a *batchAssembler) addValues(entries []ValueEntry) error {
	for _, e := range entries {
		if e.Deleted && len(e.Payload) > 0 {
			return fmt.Errorf("%w: tombstone for %s at %d carries a payload", ErrInvalidNode, e.KeyHash, e.Version)
		}
		if err := a.add(EncodeValueKey(e.KeyHash, e.Version), encodeValue(e.Payload, e.Deleted)); err != nil {
			return err
		}
		a.numValues++
	}
	return nil
}

// addPreimages checks each preimage against what is already stored: equal bytes are
// skipped, different bytes fail the whole batch.
func (a *batchAssembler) addPreimages(preimages map[KeyHash][]byte) error {
	for kh, raw := range preimages {
		existing, err := a.store.GetPreimage(kh)
		switch {
		case err == nil:
			if !bytes.Equal(existing, raw) {
				a.store.log.Warn("preimage conflict for %s: stored %d bytes, batch has %d", kh, len(existing), len(raw))
				return fmt.Errorf("%w: preimage for %s already stored with different bytes", ErrIntegrityViolation, kh)
			}
			continue
		case isNotFound(err, ErrPreimageNotFound):
		default:
			return err
		}
		if err := a.add(EncodePreimageKey(kh), raw); err != nil {
			return err
		}
		a.numPreimages++
	}
	return nil
}

func (a *batchAssembler) addStale(indices []StaleNodeIndex) error {
	for _, idx := range indices {
		key, err := encodeStaleKey(idx)
		if err != nil {
			return fmt.Errorf("encode stale index %s@%d: %w", idx.NodeKey, idx.StaleSinceVersion, err)
		}
		if _, dup := a.seen[string(key)]; dup {
			continue
		}
		if err := a.add(key, nil); err != nil {
			return err
		}
		a.numStale++
	}
	return nil
}

// commit submits everything staged as one atomic engine write.
func (a *batchAssembler) commit() error {
	if len(a.puts) == 0 {
		return nil
	}
	sort.Slice(a.puts, func(i, j int) bool { return bytes.Compare(a.puts[i].key, a.puts[j].key) < 0 })

	batch := kv.NewBatch()
	for _, p := range a.puts {
		batch.Put(p.key, p.value)
	}

	start := time.Now()
	if err := a.store.db.Write(batch); err != nil {
		a.store.metrics.batchCommits.WithLabelValues(resultError).Inc()
		a.store.log.Error("batch commit failed: %d entries, %d bytes: %v", batch.Len(), batch.Size(), err)
		return fmt.Errorf("write batch: %w", err)
	}
	a.store.metrics.batchCommits.WithLabelValues(resultOK).Inc()
	a.store.metrics.batchEntries.Add(float64(batch.Len()))
	a.store.metrics.batchBytes.Add(float64(batch.Size()))

	for _, n := range a.nodes {
		a.store.cacheNode(n.key, n.value)
	}
	a.store.log.Debug("committed batch: nodes=%d values=%d preimages=%d stale=%d bytes=%d in %s",
		a.numNodes, a.numValues, a.numPreimages, a.numStale, batch.Size(), time.Since(start))
	return nil
}

// ============================================
// Store write operations
// ============================================

// WriteNodeBatch persists every node, value and preimage staged in b in one atomic write.
// Any node that fails to encode aborts the batch before the engine is touched.
func (s *Store) WriteNodeBatch(b *NodeBatch) error {
	return s.WriteTreeUpdateBatch(&TreeUpdateBatch{NodeBatch: b})
}

// WriteValueBatch persists value entries (Deleted entries as tombstones) in one atomic write.
func (s *Store) WriteValueBatch(entries []ValueEntry) error {
	a := s.newAssembler()
	if err := a.addValues(entries); err != nil {
		return err
	}
	return a.commit()
}

// WriteTreeUpdateBatch persists nodes, values, preimages and stale node indices of one
// tree update in a single atomic write. Stale indices are only recorded; pruning is
// left to whoever consumes IterateStaleNodeIndices.
func (s *Store) WriteTreeUpdateBatch(u *TreeUpdateBatch) error {
	if u == nil {
		return nil
	}
	a := s.newAssembler()
	if u.NodeBatch != nil {
		if err := a.addNodes(u.NodeBatch); err != nil {
			return err
		}
		if err := a.addValues(u.NodeBatch.Values()); err != nil {
			return err
		}
		if err := a.addPreimages(u.NodeBatch.preimages); err != nil {
			return err
		}
	}
	if err := a.addStale(u.StaleNodeIndices); err != nil {
		return err
	}
	return a.commit()
}

// IterateStaleNodeIndices visits recorded stale indices with StaleSinceVersion <= upTo,
// oldest first. Returning kv.ErrStop from fn ends the scan.
func (s *Store) IterateStaleNodeIndices(upTo Version, fn func(StaleNodeIndex) error) error {
	lower := []byte{byte(NamespaceStale)}
	return s.db.Iterate(lower, staleUpperBound(upTo), false, func(key, _ []byte) error {
		idx, err := decodeStaleKey(key)
		if err != nil {
			s.reportCorruption("stale index", key, err)
			return err
		}
		return fn(idx)
	})
}

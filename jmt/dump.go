package jmt

import (
	"fmt"
)

// Record is one decoded engine entry, as seen by Walk.
type Record struct {
	Namespace Namespace
	Key       []byte
	Value     []byte

	NodeKey   NodeKey        // NamespaceNode
	Node      Node           // NamespaceNode
	Entry     ValueEntry     // NamespaceValue
	KeyHash   KeyHash        // NamespacePreimage
	Stale     StaleNodeIndex // NamespaceStale
	DecodeErr error          // set when the entry belongs to no namespace or its value is corrupt
}

func (r Record) String() string {
	if r.DecodeErr != nil {
		return fmt.Sprintf("%s %x -> %d bytes (%v)", r.Namespace, r.Key, len(r.Value), r.DecodeErr)
	}
	switch r.Namespace {
	case NamespaceNode:
		switch n := r.Node.(type) {
		case *LeafNode:
			return fmt.Sprintf("node %s -> leaf key=%s value=%s", r.NodeKey, n.KeyHash, n.ValueHash)
		case *InternalNode:
			return fmt.Sprintf("node %s -> internal children=%d bitmap=%016b", r.NodeKey, n.ChildCount(), n.ChildBitmap)
		}
	case NamespaceValue:
		if r.Entry.Deleted {
			return fmt.Sprintf("value %s@%d -> tombstone", r.Entry.KeyHash, r.Entry.Version)
		}
		return fmt.Sprintf("value %s@%d -> %x", r.Entry.KeyHash, r.Entry.Version, r.Entry.Payload)
	case NamespacePreimage:
		return fmt.Sprintf("preimage %s -> %d bytes", r.KeyHash, len(r.Value))
	case NamespaceStale:
		return fmt.Sprintf("stale %s since %d", r.Stale.NodeKey, r.Stale.StaleSinceVersion)
	}
	return fmt.Sprintf("unknown %x -> %d bytes", r.Key, len(r.Value))
}

// Walk decodes every entry in the engine in key order. Undecodable entries are passed
// to fn with DecodeErr set rather than aborting the walk.
func (s *Store) Walk(fn func(Record) error) error {
	return s.db.Iterate(nil, nil, false, func(key, value []byte) error {
		return fn(decodeRecord(key, value))
	})
}

func decodeRecord(key, value []byte) Record {
	r := Record{Namespace: ClassifyKey(key), Key: key, Value: value}
	var err error
	switch r.Namespace {
	case NamespaceNode:
		r.NodeKey, _ = DecodeNodeKey(key)
		r.Node, err = DecodeNode(value)
	case NamespaceValue:
		r.Entry.KeyHash, r.Entry.Version, _ = DecodeValueKey(key)
		r.Entry.Payload, r.Entry.Deleted, err = decodeValue(value)
	case NamespacePreimage:
		r.KeyHash, _ = DecodePreimageKey(key)
	case NamespaceStale:
		r.Stale, _ = decodeStaleKey(key)
	default:
		err = fmt.Errorf("%w: key %x belongs to no namespace", ErrCorruption, key)
	}
	r.DecodeErr = err
	return r
}

// NamespaceStats counts entries and bytes of one namespace.
type NamespaceStats struct {
	Entries    int
	KeyBytes   int
	ValueBytes int
	Corrupted  int
}

// Stats walks the engine and aggregates per namespace.
func (s *Store) Stats() (map[Namespace]*NamespaceStats, error) {
	out := make(map[Namespace]*NamespaceStats)
	err := s.Walk(func(r Record) error {
		st, ok := out[r.Namespace]
		if !ok {
			st = &NamespaceStats{}
			out[r.Namespace] = st
		}
		st.Entries++
		st.KeyBytes += len(r.Key)
		st.ValueBytes += len(r.Value)
		if r.DecodeErr != nil {
			st.Corrupted++
		}
		return nil
	})
	return out, err
}

package jmt

import (
	"errors"
	"fmt"
)

// GetNode returns the node stored under key, or ErrNodeNotFound.
// Bytes that do not decode are reported as ErrCorruption, never as absence.
func (s *Store) GetNode(key NodeKey) (Node, error) {
	ek, err := EncodeNodeKey(key)
	if err != nil {
		return nil, err
	}
	raw, cached, err := s.getNodeBytes(ek)
	if err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, key)
		}
		return nil, fmt.Errorf("get node %s: %w", key, err)
	}
	node, err := DecodeNode(raw)
	if err != nil {
		s.reportCorruption("node "+key.String(), ek, err)
		return nil, fmt.Errorf("node %s: %w", key, err)
	}
	// only bytes that decoded are cached, so a corrupted record is reported on every read
	if !cached {
		s.cacheNode(ek, raw)
	}
	return node, nil
}

// HasNode reports whether a node is stored under key.
func (s *Store) HasNode(key NodeKey) (bool, error) {
	ek, err := EncodeNodeKey(key)
	if err != nil {
		return false, err
	}
	_, _, err = s.getNodeBytes(ek)
	if errors.Is(err, ErrNodeNotFound) {
		return false, nil
	}
	return err == nil, err
}

// getNodeBytes returns the encoded node and whether it came from the cache.
func (s *Store) getNodeBytes(ek []byte) ([]byte, bool, error) {
	if raw, ok := s.cachedNode(ek); ok {
		s.metrics.nodeReads.WithLabelValues(sourceCache).Inc()
		return raw, true, nil
	}
	raw, err := s.db.Get(ek)
	if err != nil {
		if isNotFound(err, ErrNodeNotFound) {
			s.metrics.nodeMisses.Inc()
			return nil, false, ErrNodeNotFound
		}
		return nil, false, err
	}
	s.metrics.nodeReads.WithLabelValues(sourceEngine).Inc()
	return raw, false, nil
}

// GetRightmostLeaf walks from the root written at version, always into the child with
// the highest nibble, and returns the leaf it ends at.
//
// ErrNodeNotFound means no root is stored at version. That is "no information", not
// "the tree is empty": an empty tree has no stored root either. A missing node below an
// existing root is a dangling reference and is reported as ErrCorruption.
func (s *Store) GetRightmostLeaf(version Version) (NodeKey, *LeafNode, error) {
	key := RootKey(version)
	node, err := s.GetNode(key)
	if err != nil {
		return NodeKey{}, nil, err
	}
	for {
		switch n := node.(type) {
		case *LeafNode:
			return key, n, nil
		case *InternalNode:
			nibble, child, ok := n.HighestChild()
			if !ok {
				return NodeKey{}, nil, fmt.Errorf("%w: internal node %s without children", ErrCorruption, key)
			}
			if child.Version > key.Version {
				return NodeKey{}, nil, fmt.Errorf("%w: node %s references child at newer version %d", ErrCorruption, key, child.Version)
			}
			if len(key.Path) >= MaxNibbles {
				return NodeKey{}, nil, fmt.Errorf("%w: internal node %s at maximum depth", ErrCorruption, key)
			}
			childKey := key.Child(nibble, child.Version)
			next, err := s.GetNode(childKey)
			if errors.Is(err, ErrNodeNotFound) {
				return NodeKey{}, nil, fmt.Errorf("%w: node %s references missing child %s", ErrCorruption, key, childKey)
			}
			if err != nil {
				return NodeKey{}, nil, err
			}
			if _, isLeaf := next.(*LeafNode); isLeaf != child.Leaf {
				return NodeKey{}, nil, fmt.Errorf("%w: child %s kind does not match its parent's reference", ErrCorruption, childKey)
			}
			key, node = childKey, next
		default:
			return NodeKey{}, nil, fmt.Errorf("%w: unexpected node %T at %s", ErrCorruption, node, key)
		}
	}
}

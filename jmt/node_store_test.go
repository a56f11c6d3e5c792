package jmt

import (
	"crypto/sha256"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// buildTree writes a small two-level tree at version 1 and returns the leaves by nibble.
//
//	root(1, "")
//	 ├─ 0x2 -> leaf(1, "2")
//	 └─ 0xa -> internal(1, "a")
//	           ├─ 0x3 -> leaf(1, "a3")
//	           └─ 0xc -> leaf(1, "ac")
func buildTree(t *testing.T, s *Store) map[string]*LeafNode {
	t.Helper()
	leaves := map[string]*LeafNode{
		"2":  leafFor("two", []byte("2")),
		"a3": leafFor("a-three", []byte("a3")),
		"ac": leafFor("a-c", []byte("ac")),
	}
	sub := NewInternalNode()
	sub.SetChild(0x3, Child{Version: 1, Leaf: true})
	sub.SetChild(0xc, Child{Version: 1, Leaf: true})

	root := NewInternalNode()
	root.SetChild(0x2, Child{Version: 1, Leaf: true})
	root.SetChild(0xa, Child{Version: 1})

	b := NewNodeBatch()
	b.PutNode(RootKey(1), root)
	b.PutNode(NodeKey{Version: 1, Path: NibblePath{0x2}}, leaves["2"])
	b.PutNode(NodeKey{Version: 1, Path: NibblePath{0xa}}, sub)
	b.PutNode(NodeKey{Version: 1, Path: NibblePath{0xa, 0x3}}, leaves["a3"])
	b.PutNode(NodeKey{Version: 1, Path: NibblePath{0xa, 0xc}}, leaves["ac"])
	require.NoError(t, s.WriteNodeBatch(b))
	return leaves
}

func TestGetNode(t *testing.T) {
	s, _ := newTestStore(t)
	leaves := buildTree(t, s)

	got, err := s.GetNode(NodeKey{Version: 1, Path: NibblePath{0xa, 0x3}})
	require.NoError(t, err)
	require.Equal(t, leaves["a3"], got)

	got, err = s.GetNode(RootKey(1))
	require.NoError(t, err)
	require.Equal(t, NodeTypeInternal, got.Type())
	require.Equal(t, 2, got.(*InternalNode).ChildCount())

	// same path, other version
	_, err = s.GetNode(NodeKey{Version: 2, Path: NibblePath{0xa, 0x3}})
	require.ErrorIs(t, err, ErrNodeNotFound)

	ok, err := s.HasNode(NodeKey{Version: 1, Path: NibblePath{0x2}})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.HasNode(NodeKey{Version: 1, Path: NibblePath{0x3}})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetNodeIsStableAcrossReads(t *testing.T) {
	s, mem := newTestStore(t)
	buildTree(t, s)

	key := NodeKey{Version: 1, Path: NibblePath{0xa}}
	first, err := s.GetNode(key)
	require.NoError(t, err)

	// a store without a cache reads the engine directly and must agree
	uncached, err := NewStore(mem, nil)
	require.NoError(t, err)
	uncached.nodeCache = nil
	second, err := uncached.GetNode(key)
	require.NoError(t, err)
	require.Equal(t, first, second)

	// mutating a returned node does not leak into later reads
	first.(*InternalNode).RemoveChild(0x3)
	third, err := s.GetNode(key)
	require.NoError(t, err)
	require.Equal(t, second, third)
}

func TestGetNodeReportsCorruption(t *testing.T) {
	s, mem := newTestStore(t)
	key := NodeKey{Version: 5, Path: NibblePath{0x1}}
	ek, err := EncodeNodeKey(key)
	require.NoError(t, err)
	putRaw(t, mem, ek, []byte{byte(NodeTypeLeaf), 0x01, 0x02})

	_, err = s.GetNode(key)
	require.ErrorIs(t, err, ErrCorruption)
	require.NotErrorIs(t, err, ErrNodeNotFound)

	// still corrupt on the second read: bad bytes are never cached
	_, err = s.GetNode(key)
	require.ErrorIs(t, err, ErrCorruption)
}

func TestWriteNodeBatchFailsFast(t *testing.T) {
	s, fe := newFaultyStore(t)

	b := NewNodeBatch()
	b.PutNode(NodeKey{Version: 1, Path: NibblePath{0x1}}, leafFor("ok", []byte("ok")))
	b.PutNode(NodeKey{Version: 1, Path: NibblePath{0x2}}, NewInternalNode()) // no children
	b.PutValue(1, hashOf("ok"), []byte("ok"))

	err := s.WriteNodeBatch(b)
	require.ErrorIs(t, err, ErrInvalidNode)
	require.Zero(t, fe.writes.Load(), "engine must not be touched")
	require.Zero(t, countEntries(t, fe))

	b = NewNodeBatch()
	b.PutNode(NodeKey{Version: 1, Path: NibblePath{0x1F}}, leafFor("bad path", nil))
	require.ErrorIs(t, s.WriteNodeBatch(b), ErrInvalidNode)
	require.Zero(t, fe.writes.Load())
}

func TestGetRightmostLeaf(t *testing.T) {
	s, _ := newTestStore(t)
	leaves := buildTree(t, s)

	key, leaf, err := s.GetRightmostLeaf(1)
	require.NoError(t, err)
	require.Equal(t, leaves["ac"], leaf)
	require.True(t, key.Equal(NodeKey{Version: 1, Path: NibblePath{0xa, 0xc}}), key.String())

	// version 2 replaces the 0xa subtree with a single leaf at 0xf and keeps 0x2 from version 1
	newLeaf := leafFor("f", []byte("f"))
	root := NewInternalNode()
	root.SetChild(0x2, Child{Version: 1, Leaf: true})
	root.SetChild(0xf, Child{Version: 2, Leaf: true})
	b := NewNodeBatch()
	b.PutNode(RootKey(2), root)
	b.PutNode(NodeKey{Version: 2, Path: NibblePath{0xf}}, newLeaf)
	require.NoError(t, s.WriteNodeBatch(b))

	key, leaf, err = s.GetRightmostLeaf(2)
	require.NoError(t, err)
	require.Equal(t, newLeaf, leaf)
	require.True(t, key.Equal(NodeKey{Version: 2, Path: NibblePath{0xf}}))

	// version 1 is still answered from its own root
	_, leaf, err = s.GetRightmostLeaf(1)
	require.NoError(t, err)
	require.Equal(t, leaves["ac"], leaf)
}

func TestGetRightmostLeafSingleLeafRoot(t *testing.T) {
	s, _ := newTestStore(t)
	only := leafFor("only", []byte("v"))
	b := NewNodeBatch()
	b.PutNode(RootKey(3), only)
	require.NoError(t, s.WriteNodeBatch(b))

	key, leaf, err := s.GetRightmostLeaf(3)
	require.NoError(t, err)
	require.Equal(t, only, leaf)
	require.True(t, key.Equal(RootKey(3)))
}

func TestGetRightmostLeafWithoutRoot(t *testing.T) {
	s, _ := newTestStore(t)
	buildTree(t, s)

	// no root at version 9: no information, not an empty tree
	_, leaf, err := s.GetRightmostLeaf(9)
	require.ErrorIs(t, err, ErrNodeNotFound)
	require.Nil(t, leaf)
}

func TestGetRightmostLeafDanglingChild(t *testing.T) {
	s, _ := newTestStore(t)
	root := NewInternalNode()
	root.SetChild(0x1, Child{Version: 4, Leaf: true})
	root.SetChild(0xe, Child{Version: 4, Leaf: true}) // never written
	b := NewNodeBatch()
	b.PutNode(RootKey(4), root)
	b.PutNode(NodeKey{Version: 4, Path: NibblePath{0x1}}, leafFor("one", nil))
	require.NoError(t, s.WriteNodeBatch(b))

	_, _, err := s.GetRightmostLeaf(4)
	require.ErrorIs(t, err, ErrCorruption)
}

func TestGetRightmostLeafChildFromFuture(t *testing.T) {
	s, _ := newTestStore(t)
	root := NewInternalNode()
	root.SetChild(0x1, Child{Version: 8, Leaf: true})
	b := NewNodeBatch()
	b.PutNode(RootKey(4), root)
	b.PutNode(NodeKey{Version: 8, Path: NibblePath{0x1}}, leafFor("x", nil))
	require.NoError(t, s.WriteNodeBatch(b))

	_, _, err := s.GetRightmostLeaf(4)
	require.ErrorIs(t, err, ErrCorruption)
}

func TestNodeCacheServesCommittedNodes(t *testing.T) {
	s, _ := newTestStore(t)
	key := NodeKey{Version: 1, Path: NibblePath{0x7}}
	leaf := NewLeafNode(hashOf("cached"), ValueHash(sha256.Sum256([]byte("v"))))
	b := NewNodeBatch()
	b.PutNode(key, leaf)
	require.NoError(t, s.WriteNodeBatch(b))

	ek, err := EncodeNodeKey(key)
	require.NoError(t, err)
	_, ok := s.cachedNode(ek)
	require.True(t, ok, "committed nodes are cached")

	got, err := s.GetNode(key)
	require.NoError(t, err)
	require.Equal(t, leaf, got)
}

func TestGetNodeCachesEngineReadsAfterDecode(t *testing.T) {
	s, mem := newTestStore(t)
	key := NodeKey{Version: 3, Path: NibblePath{0x2, 0xa}}
	ek, err := EncodeNodeKey(key)
	require.NoError(t, err)
	raw, err := EncodeNode(leafFor("warm", []byte("v")))
	require.NoError(t, err)
	putRaw(t, mem, ek, raw)

	ok, err := s.HasNode(key)
	require.NoError(t, err)
	require.True(t, ok)
	_, cached := s.cachedNode(ek)
	require.False(t, cached, "HasNode does not decode, so it does not cache")

	first, err := s.GetNode(key)
	require.NoError(t, err)
	_, cached = s.cachedNode(ek)
	require.True(t, cached)

	second, err := s.GetNode(key)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.NotSame(t, first, second, "every read decodes its own copy")

	m := s.metrics
	require.Equal(t, 2.0, testutil.ToFloat64(m.nodeReads.WithLabelValues(sourceEngine)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.nodeReads.WithLabelValues(sourceCache)))
}

func TestCorruptNodeReadFromEngineEveryTime(t *testing.T) {
	s, mem := newTestStore(t)
	key := RootKey(8)
	ek, err := EncodeNodeKey(key)
	require.NoError(t, err)
	putRaw(t, mem, ek, []byte{byte(NodeTypeInternal), 0x00, 0x00})

	for i := 0; i < 3; i++ {
		_, err := s.GetNode(key)
		require.ErrorIs(t, err, ErrCorruption)
	}
	_, cached := s.cachedNode(ek)
	require.False(t, cached)
	require.Equal(t, 3.0, testutil.ToFloat64(s.metrics.nodeReads.WithLabelValues(sourceEngine)))
	require.Equal(t, 3.0, testutil.ToFloat64(s.metrics.corruptions))
}

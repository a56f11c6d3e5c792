package jmt

import (
	"encoding/binary"
	"fmt"
)

// ============================================
// Storage layout
// ============================================
//
// n | be64(version) | nibbleCount | packed nibbles   -> node
// v | keyHash(32)   | be64(version)                  -> 0x00 (tombstone) | 0x01 payload
// p | keyHash(32)                                    -> preimage bytes
// s | be64(staleSince) | node key                    -> (empty)
//
// Every namespace has its own first byte and a fully checked shape, so a key from
// one namespace never decodes as another.

// Namespace is the first byte of every stored key.
type Namespace byte

const (
	NamespaceUnknown  Namespace = 0
	NamespaceNode     Namespace = 'n'
	NamespaceValue    Namespace = 'v'
	NamespacePreimage Namespace = 'p'
	NamespaceStale    Namespace = 's'
)

func (ns Namespace) String() string {
	switch ns {
	case NamespaceNode:
		return "node"
	case NamespaceValue:
		return "value"
	case NamespacePreimage:
		return "preimage"
	case NamespaceStale:
		return "stale"
	}
	return "unknown"
}

const (
	versionSize      = 8
	nodeKeyHeader    = 1 + versionSize + 1
	valueKeySize     = 1 + HashSize + versionSize
	preimageKeySize  = 1 + HashSize
	staleKeyHeader   = 1 + versionSize
	childEncodedSize = versionSize + HashSize + 1
	leafEncodedSize  = 1 + 2*HashSize
	internalHeader   = 1 + 2

	childKindInternal byte = 0x00
	childKindLeaf     byte = 0x01

	valueTagTombstone byte = 0x00
	valueTagPresent   byte = 0x01
)

// ClassifyKey returns the namespace key belongs to, or NamespaceUnknown when it
// does not decode in any of them.
func ClassifyKey(key []byte) Namespace {
	if len(key) == 0 {
		return NamespaceUnknown
	}
	var err error
	switch Namespace(key[0]) {
	case NamespaceNode:
		_, err = DecodeNodeKey(key)
	case NamespaceValue:
		_, _, err = DecodeValueKey(key)
	case NamespacePreimage:
		_, err = DecodePreimageKey(key)
	case NamespaceStale:
		_, err = decodeStaleKey(key)
	default:
		return NamespaceUnknown
	}
	if err != nil {
		return NamespaceUnknown
	}
	return Namespace(key[0])
}

// ============================================
// Node keys
// ============================================

// EncodeNodeKey serializes k. Keys sort by version, then by path.
func EncodeNodeKey(k NodeKey) ([]byte, error) {
	if err := k.Path.Validate(); err != nil {
		return nil, err
	}
	packed := nibblesToBytes(k.Path)
	buf := make([]byte, nodeKeyHeader+len(packed))
	buf[0] = byte(NamespaceNode)
	binary.BigEndian.PutUint64(buf[1:1+versionSize], uint64(k.Version))
	buf[1+versionSize] = byte(len(k.Path))
	copy(buf[nodeKeyHeader:], packed)
	return buf, nil
}

// DecodeNodeKey parses the output of EncodeNodeKey.
func DecodeNodeKey(data []byte) (NodeKey, error) {
	if len(data) < nodeKeyHeader {
		return NodeKey{}, fmt.Errorf("%w: node key too short: %d bytes", ErrCorruption, len(data))
	}
	if Namespace(data[0]) != NamespaceNode {
		return NodeKey{}, fmt.Errorf("%w: node key prefix %#x", ErrCorruption, data[0])
	}
	count := int(data[1+versionSize])
	if count > MaxNibbles {
		return NodeKey{}, fmt.Errorf("%w: node key has %d nibbles", ErrCorruption, count)
	}
	packed := data[nodeKeyHeader:]
	if len(packed) != (count+1)/2 {
		return NodeKey{}, fmt.Errorf("%w: node key with %d nibbles has %d path bytes", ErrCorruption, count, len(packed))
	}
	if count%2 == 1 && packed[len(packed)-1]&0x0F != 0 {
		return NodeKey{}, fmt.Errorf("%w: node key pad nibble is not zero", ErrCorruption)
	}
	return NodeKey{
		Version: Version(binary.BigEndian.Uint64(data[1 : 1+versionSize])),
		Path:    NibblePath(nibbleSlice(packed, 0, count)),
	}, nil
}

// ============================================
// Versioned value keys
// ============================================

// EncodeValueKey returns v | keyHash | be64(version). All versions of one key are
// contiguous and sort by version.
func EncodeValueKey(kh KeyHash, version Version) []byte {
	buf := make([]byte, valueKeySize)
	buf[0] = byte(NamespaceValue)
	copy(buf[1:1+HashSize], kh[:])
	binary.BigEndian.PutUint64(buf[1+HashSize:], uint64(version))
	return buf
}

// DecodeValueKey parses the output of EncodeValueKey.
func DecodeValueKey(data []byte) (KeyHash, Version, error) {
	var kh KeyHash
	if len(data) != valueKeySize {
		return kh, 0, fmt.Errorf("%w: value key is %d bytes, want %d", ErrCorruption, len(data), valueKeySize)
	}
	if Namespace(data[0]) != NamespaceValue {
		return kh, 0, fmt.Errorf("%w: value key prefix %#x", ErrCorruption, data[0])
	}
	copy(kh[:], data[1:1+HashSize])
	return kh, Version(binary.BigEndian.Uint64(data[1+HashSize:])), nil
}

// valuePrefix is the key prefix shared by every version of kh.
func valuePrefix(kh KeyHash) []byte {
	buf := make([]byte, 1+HashSize)
	buf[0] = byte(NamespaceValue)
	copy(buf[1:], kh[:])
	return buf
}

// valueUpperBound is the smallest key above every entry of kh with version <= maxVersion.
// Value keys are fixed width, so appending one zero byte is enough.
func valueUpperBound(kh KeyHash, maxVersion Version) []byte {
	return append(EncodeValueKey(kh, maxVersion), 0x00)
}

func encodeValue(payload []byte, deleted bool) []byte {
	if deleted {
		return []byte{valueTagTombstone}
	}
	buf := make([]byte, 1+len(payload))
	buf[0] = valueTagPresent
	copy(buf[1:], payload)
	return buf
}

func decodeValue(data []byte) (payload []byte, deleted bool, err error) {
	if len(data) == 0 {
		return nil, false, fmt.Errorf("%w: empty value record", ErrCorruption)
	}
	switch data[0] {
	case valueTagTombstone:
		if len(data) != 1 {
			return nil, false, fmt.Errorf("%w: tombstone carries %d payload bytes", ErrCorruption, len(data)-1)
		}
		return nil, true, nil
	case valueTagPresent:
		return append([]byte{}, data[1:]...), false, nil
	}
	return nil, false, fmt.Errorf("%w: unknown value tag %#x", ErrCorruption, data[0])
}

// ============================================
// Preimage keys
// ============================================

func EncodePreimageKey(kh KeyHash) []byte {
	buf := make([]byte, preimageKeySize)
	buf[0] = byte(NamespacePreimage)
	copy(buf[1:], kh[:])
	return buf
}

func DecodePreimageKey(data []byte) (KeyHash, error) {
	var kh KeyHash
	if len(data) != preimageKeySize {
		return kh, fmt.Errorf("%w: preimage key is %d bytes, want %d", ErrCorruption, len(data), preimageKeySize)
	}
	if Namespace(data[0]) != NamespacePreimage {
		return kh, fmt.Errorf("%w: preimage key prefix %#x", ErrCorruption, data[0])
	}
	copy(kh[:], data[1:])
	return kh, nil
}

// ============================================
// Stale node index keys
// ============================================

func encodeStaleKey(idx StaleNodeIndex) ([]byte, error) {
	nk, err := EncodeNodeKey(idx.NodeKey)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, staleKeyHeader+len(nk))
	buf[0] = byte(NamespaceStale)
	binary.BigEndian.PutUint64(buf[1:staleKeyHeader], uint64(idx.StaleSinceVersion))
	copy(buf[staleKeyHeader:], nk)
	return buf, nil
}

func decodeStaleKey(data []byte) (StaleNodeIndex, error) {
	if len(data) < staleKeyHeader || Namespace(data[0]) != NamespaceStale {
		return StaleNodeIndex{}, fmt.Errorf("%w: malformed stale index key", ErrCorruption)
	}
	nk, err := DecodeNodeKey(data[staleKeyHeader:])
	if err != nil {
		return StaleNodeIndex{}, err
	}
	return StaleNodeIndex{
		StaleSinceVersion: Version(binary.BigEndian.Uint64(data[1:staleKeyHeader])),
		NodeKey:           nk,
	}, nil
}

// staleUpperBound bounds every stale index with StaleSinceVersion <= upTo.
func staleUpperBound(upTo Version) []byte {
	buf := make([]byte, staleKeyHeader)
	buf[0] = byte(NamespaceStale)
	binary.BigEndian.PutUint64(buf[1:], uint64(upTo))
	// every stale key with this version is longer than the header and starts with 'n' (< 0xff)
	return append(buf, 0xff)
}

// ============================================
// Nodes
// ============================================
//
// InternalNode: [1][bitmap be16] then per child [be64 version][hash 32][kind]
// LeafNode:     [2][keyHash 32][valueHash 32]

// EncodeNode serializes a node. Internal nodes must have at least one child and a
// bitmap that matches Children.
func EncodeNode(node Node) ([]byte, error) {
	switch n := node.(type) {
	case *LeafNode:
		if n == nil {
			return nil, fmt.Errorf("%w: nil leaf", ErrInvalidNode)
		}
		buf := make([]byte, leafEncodedSize)
		buf[0] = byte(NodeTypeLeaf)
		copy(buf[1:1+HashSize], n.KeyHash[:])
		copy(buf[1+HashSize:], n.ValueHash[:])
		return buf, nil
	case *InternalNode:
		if n == nil {
			return nil, fmt.Errorf("%w: nil internal node", ErrInvalidNode)
		}
		if err := n.validate(); err != nil {
			return nil, err
		}
		buf := make([]byte, internalHeader+len(n.Children)*childEncodedSize)
		buf[0] = byte(NodeTypeInternal)
		binary.BigEndian.PutUint16(buf[1:3], n.ChildBitmap)
		offset := internalHeader
		for _, c := range n.Children {
			binary.BigEndian.PutUint64(buf[offset:offset+versionSize], uint64(c.Version))
			copy(buf[offset+versionSize:offset+versionSize+HashSize], c.Hash[:])
			kind := childKindInternal
			if c.Leaf {
				kind = childKindLeaf
			}
			buf[offset+versionSize+HashSize] = kind
			offset += childEncodedSize
		}
		return buf, nil
	case nil:
		return nil, fmt.Errorf("%w: nil node", ErrInvalidNode)
	}
	return nil, fmt.Errorf("%w: unsupported node type %T", ErrInvalidNode, node)
}

// DecodeNode parses the output of EncodeNode.
func DecodeNode(data []byte) (Node, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty node record", ErrCorruption)
	}
	switch NodeType(data[0]) {
	case NodeTypeLeaf:
		if len(data) != leafEncodedSize {
			return nil, fmt.Errorf("%w: leaf node is %d bytes, want %d", ErrCorruption, len(data), leafEncodedSize)
		}
		leaf := &LeafNode{}
		copy(leaf.KeyHash[:], data[1:1+HashSize])
		copy(leaf.ValueHash[:], data[1+HashSize:])
		return leaf, nil
	case NodeTypeInternal:
		if len(data) < internalHeader {
			return nil, fmt.Errorf("%w: internal node too short", ErrCorruption)
		}
		bitmap := binary.BigEndian.Uint16(data[1:3])
		if bitmap == 0 {
			return nil, fmt.Errorf("%w: internal node without children", ErrCorruption)
		}
		n := &InternalNode{ChildBitmap: bitmap}
		count := n.ChildCount()
		if want := internalHeader + count*childEncodedSize; len(data) != want {
			return nil, fmt.Errorf("%w: internal node is %d bytes, want %d", ErrCorruption, len(data), want)
		}
		n.Children = make([]Child, count)
		offset := internalHeader
		for i := range n.Children {
			c := &n.Children[i]
			c.Version = Version(binary.BigEndian.Uint64(data[offset : offset+versionSize]))
			copy(c.Hash[:], data[offset+versionSize:offset+versionSize+HashSize])
			switch data[offset+versionSize+HashSize] {
			case childKindInternal:
			case childKindLeaf:
				c.Leaf = true
			default:
				return nil, fmt.Errorf("%w: unknown child kind %#x", ErrCorruption, data[offset+versionSize+HashSize])
			}
			offset += childEncodedSize
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: unknown node type %#x", ErrCorruption, data[0])
}

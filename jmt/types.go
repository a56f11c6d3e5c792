package jmt

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ============================================
// Versions, hashes and errors
// ============================================

// Version identifies one committed state of the tree, usually a block height.
type Version uint64

// HashSize is the size of key hashes, value hashes and child hashes.
const HashSize = 32

// MaxNibbles is the deepest path a node can sit at (two nibbles per hash byte).
const MaxNibbles = HashSize * 2

// KeyHash is the hash of a content key.
type KeyHash [HashSize]byte

// ValueHash is the hash of a value payload.
type ValueHash [HashSize]byte

func (h KeyHash) String() string   { return hex.EncodeToString(h[:]) }
func (h ValueHash) String() string { return hex.EncodeToString(h[:]) }

// KeyHashFromHex parses a 64-character hex string.
func KeyHashFromHex(s string) (KeyHash, error) {
	var kh KeyHash
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return kh, fmt.Errorf("key hash: %w", err)
	}
	if len(raw) != HashSize {
		return kh, fmt.Errorf("key hash must be %d bytes, got %d", HashSize, len(raw))
	}
	copy(kh[:], raw)
	return kh, nil
}

var (
	// ErrNodeNotFound no node is stored under the requested NodeKey.
	ErrNodeNotFound = errors.New("node not found")
	// ErrValueNotFound no value entry exists for the key at or below the requested version.
	ErrValueNotFound = errors.New("value not found")
	// ErrPreimageNotFound no preimage is stored for the key hash.
	ErrPreimageNotFound = errors.New("preimage not found")
	// ErrCorruption stored bytes do not decode in the expected format.
	ErrCorruption = errors.New("corrupted store data")
	// ErrIntegrityViolation a write conflicts with an immutable fact already stored.
	ErrIntegrityViolation = errors.New("integrity violation")
	// ErrInvalidNode an in-memory node or key cannot be encoded.
	ErrInvalidNode = errors.New("invalid node")
)

// ============================================
// Nibble paths
// ============================================

// NibblePath is a sequence of nibbles (0-15), one per element, root first.
type NibblePath []byte

// NibblePathOf returns the first n nibbles of a key hash.
func NibblePathOf(kh KeyHash, n int) NibblePath {
	if n > MaxNibbles {
		n = MaxNibbles
	}
	return NibblePath(nibbleSlice(kh[:], 0, n))
}

// Append returns a new path with nibble added at the end; p is left untouched.
func (p NibblePath) Append(nibble byte) NibblePath {
	out := make(NibblePath, len(p), len(p)+1)
	copy(out, p)
	return append(out, nibble)
}

// Validate reports whether every element is a nibble and the path fits a key hash.
func (p NibblePath) Validate() error {
	if len(p) > MaxNibbles {
		return fmt.Errorf("%w: path has %d nibbles, max %d", ErrInvalidNode, len(p), MaxNibbles)
	}
	for i, n := range p {
		if n > 0x0F {
			return fmt.Errorf("%w: path element %d is %#x, not a nibble", ErrInvalidNode, i, n)
		}
	}
	return nil
}

func (p NibblePath) String() string {
	var sb strings.Builder
	for _, n := range p {
		sb.WriteByte("0123456789abcdef"[n&0x0F])
	}
	return sb.String()
}

// ============================================
// NodeKey
// ============================================

// NodeKey addresses one node: the version that wrote it and its path from the root.
type NodeKey struct {
	Version Version
	Path    NibblePath
}

// RootKey is the key of the root written at version.
func RootKey(version Version) NodeKey {
	return NodeKey{Version: version}
}

// Child returns the key of the child under nibble, written at childVersion.
func (k NodeKey) Child(nibble byte, childVersion Version) NodeKey {
	return NodeKey{Version: childVersion, Path: k.Path.Append(nibble)}
}

// Equal compares version and path.
func (k NodeKey) Equal(o NodeKey) bool {
	return k.Version == o.Version && string(k.Path) == string(o.Path)
}

func (k NodeKey) String() string {
	return fmt.Sprintf("%d/%s", k.Version, k.Path)
}

// nodeMapKey is a comparable form of NodeKey for batch deduplication.
type nodeMapKey struct {
	version Version
	path    string
}

func (k NodeKey) mapKey() nodeMapKey {
	return nodeMapKey{version: k.Version, path: string(k.Path)}
}

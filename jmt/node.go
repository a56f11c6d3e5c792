package jmt

import (
	"fmt"
	"math/bits"
)

// ============================================
// JMT 16 叉节点类型定义
// ============================================

// NodeType 节点类型
type NodeType byte

const (
	// NodeTypeNull 空子树占位，不落盘
	NodeTypeNull NodeType = 0
	// NodeTypeInternal 16 叉内部节点
	NodeTypeInternal NodeType = 1
	// NodeTypeLeaf 叶子节点
	NodeTypeLeaf NodeType = 2
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeNull:
		return "null"
	case NodeTypeInternal:
		return "internal"
	case NodeTypeLeaf:
		return "leaf"
	}
	return fmt.Sprintf("NodeType(%d)", byte(t))
}

// Node 只有 *InternalNode 和 *LeafNode 两种，写入后不可变
type Node interface {
	Type() NodeType
	isNode()
}

// LeafNode 叶子节点，保存 key 哈希与 value 哈希
type LeafNode struct {
	KeyHash   KeyHash
	ValueHash ValueHash
}

func NewLeafNode(keyHash KeyHash, valueHash ValueHash) *LeafNode {
	return &LeafNode{KeyHash: keyHash, ValueHash: valueHash}
}

func (*LeafNode) Type() NodeType { return NodeTypeLeaf }
func (*LeafNode) isNode()        {}

// Child 指向下一层的子节点，其 NodeKey 由位置决定:
// NodeKey{Version, parentPath ++ nibble}
type Child struct {
	Hash    [HashSize]byte
	Version Version
	Leaf    bool
}

// InternalNode 16 叉内部节点
// 使用 ChildBitmap 标记哪些子节点存在，Children 只按 nibble 升序保存存在的子节点
type InternalNode struct {
	ChildBitmap uint16
	Children    []Child
}

func NewInternalNode() *InternalNode {
	return &InternalNode{}
}

func (*InternalNode) Type() NodeType { return NodeTypeInternal }
func (*InternalNode) isNode()        {}

// SetChild 设置指定 nibble 位置的子节点
func (n *InternalNode) SetChild(nibble byte, child Child) {
	if nibble > 15 {
		return
	}
	mask := uint16(1) << nibble
	idx := n.childIndex(nibble)
	if n.ChildBitmap&mask != 0 {
		n.Children[idx] = child
		return
	}
	n.ChildBitmap |= mask
	n.Children = append(n.Children, Child{})
	copy(n.Children[idx+1:], n.Children[idx:])
	n.Children[idx] = child
}

// GetChild 获取指定 nibble 位置的子节点
func (n *InternalNode) GetChild(nibble byte) (Child, bool) {
	if nibble > 15 || n.ChildBitmap&(1<<nibble) == 0 {
		return Child{}, false
	}
	return n.Children[n.childIndex(nibble)], true
}

// RemoveChild 移除指定 nibble 位置的子节点
func (n *InternalNode) RemoveChild(nibble byte) {
	if nibble > 15 || n.ChildBitmap&(1<<nibble) == 0 {
		return
	}
	idx := n.childIndex(nibble)
	n.Children = append(n.Children[:idx], n.Children[idx+1:]...)
	n.ChildBitmap &^= 1 << nibble
}

// ChildCount 返回非空子节点数量
func (n *InternalNode) ChildCount() int {
	return bits.OnesCount16(n.ChildBitmap)
}

// HighestChild 返回 nibble 最大的子节点
func (n *InternalNode) HighestChild() (byte, Child, bool) {
	if n.ChildBitmap == 0 || len(n.Children) == 0 {
		return 0, Child{}, false
	}
	nibble := byte(15 - bits.LeadingZeros16(n.ChildBitmap))
	return nibble, n.Children[len(n.Children)-1], true
}

// Each 按 nibble 升序遍历所有子节点
func (n *InternalNode) Each(fn func(nibble byte, child Child)) {
	idx := 0
	for nibble := byte(0); nibble < 16; nibble++ {
		if n.ChildBitmap&(1<<nibble) != 0 {
			fn(nibble, n.Children[idx])
			idx++
		}
	}
}

// childIndex 计算 nibble 在 Children 数组中的实际索引
// 通过计算 bitmap 中小于 nibble 位置的置位数来确定
func (n *InternalNode) childIndex(nibble byte) int {
	mask := uint16(1)<<nibble - 1
	return bits.OnesCount16(n.ChildBitmap & mask)
}

func (n *InternalNode) validate() error {
	if n.ChildBitmap == 0 {
		return fmt.Errorf("%w: internal node without children", ErrInvalidNode)
	}
	if got := bits.OnesCount16(n.ChildBitmap); got != len(n.Children) {
		return fmt.Errorf("%w: bitmap has %d children, slice has %d", ErrInvalidNode, got, len(n.Children))
	}
	return nil
}

// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package hpack

import (
	"sync"

	"github.com/pkg/errors"
)

// CodeEntry assigns a bit pattern to a symbol. Code holds the pattern in its
// Length least significant bits.
type CodeEntry struct {
	Symbol int
	Code   uint32
	Length uint8
}

// noChild marks an empty child slot.
const noChild int32 = -1

const rootNode int32 = 0

// node is either internal, with one child slot per value of the next input
// byte, or terminal. Internal nodes match 8 bits, terminals match the 1 to 8
// bits that were left of their code at that depth.
type node struct {
	children *[256]int32 // nil for terminals

	symbol int
	bits   uint8
}

func (n *node) terminal() bool { return n.children == nil }

// Tree is a Huffman decode trie that is walked a whole byte at a time. Codes
// shorter than a byte (or the tail of a longer code) occupy every child slot
// that starts with their bits, so a lookup with eight bits of input always
// lands on the right terminal no matter what follows it.
//
// A Tree is immutable once built and can be shared between any number of
// decoders.
type Tree struct {
	nodes []node
	eos   int
}

// BuildTree builds the decode trie for table. The symbol eos is the code used
// for padding. It is decoded like any other symbol but decoders reject it.
// Symbols other than eos must fit into a byte.
func BuildTree(table []CodeEntry, eos int) (*Tree, error) {
	t := &Tree{eos: eos}
	t.newInternal()
	for _, e := range table {
		if err := t.insert(e); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) newInternal() int32 {
	var children [256]int32
	for i := range children {
		children[i] = noChild
	}
	t.nodes = append(t.nodes, node{children: &children, bits: 8})
	return int32(len(t.nodes) - 1)
}

func (t *Tree) newTerminal(symbol int, bits uint8) int32 {
	t.nodes = append(t.nodes, node{symbol: symbol, bits: bits})
	return int32(len(t.nodes) - 1)
}

func (t *Tree) insert(e CodeEntry) error {
	if e.Symbol > 0xff && e.Symbol != t.eos {
		return errors.Errorf("hpack: symbol %d does not fit into a byte", e.Symbol)
	}
	length := e.Length
	if length == 0 || length > 32 {
		return errors.Errorf("hpack: symbol %d: invalid code length %d", e.Symbol, length)
	}
	code := e.Code
	if length < 32 && code>>length != 0 {
		return errors.Errorf("hpack: symbol %d: code %#x longer than %d bits", e.Symbol, code, length)
	}

	// walk down using the most significant byte of what is left of the code
	cur := rootNode
	for length > 8 {
		if t.nodes[cur].terminal() {
			return errors.Wrapf(ErrPrefixCodeViolation, "symbol %d", e.Symbol)
		}
		length -= 8
		i := uint8(code >> length)
		next := t.nodes[cur].children[i]
		if next == noChild {
			next = t.newInternal()
			t.nodes[cur].children[i] = next
		}
		cur = next
	}
	if t.nodes[cur].terminal() {
		return errors.Wrapf(ErrPrefixCodeViolation, "symbol %d", e.Symbol)
	}

	terminal := t.newTerminal(e.Symbol, length)
	children := t.nodes[cur].children
	shift := 8 - length
	start, end := int(uint8(code<<shift)), 1<<shift
	for i := start; i < start+end; i++ {
		if c := children[i]; c != noChild {
			if t.nodes[c].terminal() {
				return errors.Wrapf(ErrPrefixCodeViolation, "symbol %d collides with symbol %d", e.Symbol, t.nodes[c].symbol)
			}
			return errors.Wrapf(ErrPrefixCodeViolation, "symbol %d is a prefix of a longer code", e.Symbol)
		}
		children[i] = terminal
	}
	return nil
}

// NodeCount returns the number of nodes in the trie.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// EOS returns the padding symbol of the tree.
func (t *Tree) EOS() int { return t.eos }

// NodeInfo describes one node of a Tree. Symbol and Bits are only set for
// terminals.
type NodeInfo struct {
	Index    int
	Terminal bool
	Symbol   int
	Bits     uint8
}

func (t *Tree) info(i int32) NodeInfo {
	n := &t.nodes[i]
	if !n.terminal() {
		return NodeInfo{Index: int(i)}
	}
	return NodeInfo{
		Index:    int(i),
		Terminal: true,
		Symbol:   n.symbol,
		Bits:     n.bits,
	}
}

// Walk calls fn for every occupied child slot, depth first starting at the
// root. A terminal is reported once for each slot that points to it.
// Walk stops at the first error fn returns.
func (t *Tree) Walk(fn func(parent NodeInfo, slot byte, child NodeInfo) error) error {
	return t.walk(rootNode, fn)
}

func (t *Tree) walk(i int32, fn func(NodeInfo, byte, NodeInfo) error) error {
	parent := t.info(i)
	for slot, c := range t.nodes[i].children {
		if c == noChild {
			continue
		}
		child := t.info(c)
		if err := fn(parent, byte(slot), child); err != nil {
			return err
		}
		if !child.Terminal {
			if err := t.walk(c, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

var (
	defaultTreeOnce sync.Once
	defaultTree     *Tree
)

// DefaultTree returns the trie for the RFC 7541 code table. It is built on
// first use.
func DefaultTree() *Tree {
	defaultTreeOnce.Do(func() {
		t, err := BuildTree(huffmanTable(), huffmanEOS)
		if err != nil {
			panic(errors.Wrap(err, "hpack: static Huffman table"))
		}
		defaultTree = t
	})
	return defaultTree
}

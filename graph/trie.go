// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package graph turns Huffman decode tries into gonum graphs, to measure and
// plot them.
package graph

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/ssbc/go-baseio/hpack"
)

type trieNode struct {
	info hpack.NodeInfo
	eos  int
}

func (n trieNode) ID() int64      { return int64(n.info.Index) }
func (n trieNode) DOTID() string  { return fmt.Sprintf("n%d", n.info.Index) }
func (n trieNode) String() string { return n.label() }

func (n trieNode) label() string {
	if !n.info.Terminal {
		return fmt.Sprintf("#%d", n.info.Index)
	}
	var sym string
	switch s := n.info.Symbol; {
	case s == n.eos:
		sym = "EOS"
	case s == ' ':
		sym = "SP"
	case s > 0x20 && s < 0x7f:
		sym = string(rune(s))
	default:
		sym = fmt.Sprintf("0x%02x", s)
	}
	return fmt.Sprintf("%s/%d", sym, n.info.Bits)
}

func (n trieNode) Attributes() []encoding.Attribute {
	if n.info.Terminal {
		return []encoding.Attribute{
			{Key: "shape", Value: "box"},
			{Key: "label", Value: n.label()},
		}
	}
	return []encoding.Attribute{
		{Key: "shape", Value: "circle"},
		{Key: "label", Value: n.label()},
	}
}

// slotEdge covers the child slots lo to hi of a node that lead to the same
// child.
type slotEdge struct {
	from, to graph.Node
	lo, hi   byte
}

func (e slotEdge) From() graph.Node { return e.from }
func (e slotEdge) To() graph.Node   { return e.to }

func (e slotEdge) ReversedEdge() graph.Edge {
	e.from, e.to = e.to, e.from
	return e
}

func (e slotEdge) Label() string {
	if e.lo == e.hi {
		return fmt.Sprintf("0x%02x", e.lo)
	}
	return fmt.Sprintf("0x%02x-0x%02x", e.lo, e.hi)
}

func (e slotEdge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "label", Value: e.Label()}}
}

// Trie is a decode trie as a directed graph. Every internal node and every
// terminal is a graph node. Slots that lead to the same terminal are merged
// into one edge.
type Trie struct {
	dg   *simple.DirectedGraph
	root graph.Node
	eos  int
}

// FromTree converts t.
func FromTree(t *hpack.Tree) (*Trie, error) {
	tr := &Trie{
		dg:  simple.NewDirectedGraph(),
		eos: t.EOS(),
	}

	type pair struct{ from, to int }
	edges := make(map[pair]*slotEdge)
	var order []pair

	node := func(info hpack.NodeInfo) graph.Node {
		if n := tr.dg.Node(int64(info.Index)); n != nil {
			return n
		}
		n := trieNode{info: info, eos: tr.eos}
		tr.dg.AddNode(n)
		return n
	}

	err := t.Walk(func(parent hpack.NodeInfo, slot byte, child hpack.NodeInfo) error {
		from := node(parent)
		if tr.root == nil {
			tr.root = from
		}
		to := node(child)

		k := pair{parent.Index, child.Index}
		e, has := edges[k]
		if !has {
			edges[k] = &slotEdge{from: from, to: to, lo: slot, hi: slot}
			order = append(order, k)
			return nil
		}
		if int(e.hi)+1 != int(slot) {
			return errors.Errorf("graph: slots of node %d are not contiguous at %#x", child.Index, slot)
		}
		e.hi = slot
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tr.root == nil {
		return nil, errors.New("graph: empty tree")
	}

	for _, k := range order {
		tr.dg.SetEdge(*edges[k])
	}
	return tr, nil
}

// Nodes returns the number of nodes.
func (tr *Trie) Nodes() int {
	return tr.dg.Nodes().Len()
}

// Edges returns the number of merged slot ranges.
func (tr *Trie) Edges() int {
	return tr.dg.Edges().Len()
}

// Depth returns the number of bytes needed to reach the deepest terminal.
func (tr *Trie) Depth() int {
	deepest := 0
	var w traverse.BreadthFirst
	w.Walk(tr.dg, tr.root, func(_ graph.Node, d int) bool {
		if d > deepest {
			deepest = d
		}
		return false
	})
	return deepest
}

// Lookup follows the input bytes from the root and returns the label of the
// terminal they lead to.
func (tr *Trie) Lookup(path ...byte) (string, error) {
	cur := tr.root
	for i, b := range path {
		var next graph.Node
		to := tr.dg.From(cur.ID())
		for to.Next() {
			e := tr.dg.Edge(cur.ID(), to.Node().ID()).(slotEdge)
			if b >= e.lo && b <= e.hi {
				next = e.to
				break
			}
		}
		if next == nil {
			return "", errors.Errorf("graph: no child for byte %d (%#x)", i, b)
		}
		tn := next.(trieNode)
		if tn.info.Terminal {
			return tn.label(), nil
		}
		cur = next
	}
	return "", errors.Errorf("graph: path of %d bytes ends at an internal node", len(path))
}

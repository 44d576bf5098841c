// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package hpack

import (
	"github.com/ssbc/go-baseio/buffer"
)

// DefaultInitialCapacity is the output capacity used when a decoder is
// created with a capacity <= 0.
const DefaultInitialCapacity = 32

// HuffmanDecoder decompresses Huffman coded string literals.
//
// It keeps the state of one decode at a time and must not be shared between
// goroutines. The trie it walks is shared and read-only.
type HuffmanDecoder struct {
	processor huffmanProcessor
}

// NewHuffmanDecoder returns a decoder for the RFC 7541 code table. The output
// buffer starts with initialCapacity bytes and grows by that amount whenever
// it runs full.
func NewHuffmanDecoder(initialCapacity int) *HuffmanDecoder {
	return NewHuffmanDecoderWithTree(DefaultTree(), initialCapacity)
}

// NewHuffmanDecoderWithTree is like NewHuffmanDecoder but walks t.
func NewHuffmanDecoderWithTree(t *Tree, initialCapacity int) *HuffmanDecoder {
	if initialCapacity <= 0 {
		initialCapacity = DefaultInitialCapacity
	}
	d := &HuffmanDecoder{}
	d.processor.tree = t
	d.processor.initialCapacity = initialCapacity
	d.processor.reset()
	return d
}

// Decode decompresses the length bytes that start at the read position of
// buf and advances buf past them. The caller knows length from the enclosing
// frame; Decode never looks beyond it.
func (d *HuffmanDecoder) Decode(buf *buffer.ByteBuf, length int) ([]byte, error) {
	d.processor.reset()
	if _, err := buf.ForEachByte(buf.Position(), length, &d.processor); err != nil {
		return nil, err
	}
	if err := buf.SkipBytes(length); err != nil {
		return nil, err
	}
	return d.processor.end()
}

// DecodeBytes decompresses all of p.
func (d *HuffmanDecoder) DecodeBytes(p []byte) ([]byte, error) {
	d.processor.reset()
	for _, b := range p {
		if _, err := d.processor.Process(b); err != nil {
			return nil, err
		}
	}
	return d.processor.end()
}

// DecodeString is DecodeBytes for callers that want a string.
func (d *HuffmanDecoder) DecodeString(p []byte) (string, error) {
	out, err := d.DecodeBytes(p)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Reset starts a new streaming decode. Feed the input with Ingest and call
// Finish after the last byte.
func (d *HuffmanDecoder) Reset() { d.processor.reset() }

// Ingest feeds one more byte of input. Symbols are emitted as soon as their
// last bit arrived. After an error, Ingest and Finish keep returning it until
// Reset is called.
func (d *HuffmanDecoder) Ingest(b byte) error {
	_, err := d.processor.Process(b)
	return err
}

// Finish flushes the symbols that end in the last byte, checks the padding
// and returns the decoded bytes.
func (d *HuffmanDecoder) Finish() ([]byte, error) {
	return d.processor.end()
}

// huffmanProcessor is the bit cursor that walks the trie.
//
// current buffers input bits. Only its currentBits low order bits are still
// unused, the ones above that are garbage. currentBits stays below 16.
//
// symbolBits counts the bits of the symbol being decoded, including those that
// were already used to step through internal nodes. At the end of the input
// it tells truncated symbols and overlong padding apart from valid padding:
// after {0xff, 0xff} currentBits is 0 but symbolBits is 16.
type huffmanProcessor struct {
	tree            *Tree
	initialCapacity int

	bytes []byte
	index int

	node        int32
	current     uint64
	currentBits int
	symbolBits  int

	// err sticks until the next reset.
	err error
}

func (p *huffmanProcessor) reset() {
	p.node = rootNode
	p.current = 0
	p.currentBits = 0
	p.symbolBits = 0
	p.bytes = make([]byte, p.initialCapacity)
	p.index = 0
	p.err = nil
}

func (p *huffmanProcessor) fail(err error) error {
	p.err = err
	p.node = rootNode
	return err
}

// Process implements buffer.ByteProcessor.
func (p *huffmanProcessor) Process(b byte) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	p.current = p.current<<8 | uint64(b)
	p.currentBits += 8
	p.symbolBits += 8

	for p.currentBits >= 8 {
		child := p.tree.nodes[p.node].children[byte(p.current>>uint(p.currentBits-8))]
		if child == noChild {
			return false, p.fail(ErrUnknownCode)
		}
		n := &p.tree.nodes[child]
		if n.terminal() && n.symbol == p.tree.eos {
			return false, p.fail(ErrEOSDecoded)
		}
		p.node = child
		p.currentBits -= int(n.bits)
		if n.terminal() {
			p.append(byte(n.symbol))
			p.node = rootNode
			// the rest of this byte belongs to the next symbol
			p.symbolBits = p.currentBits
		}
	}
	return true, nil
}

func (p *huffmanProcessor) end() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	// The last byte may still hold whole symbols shorter than 8 bits. Look
	// them up with the leftover bits left-justified, at most one per
	// remaining bit.
	for p.currentBits > 0 {
		child := p.tree.nodes[p.node].children[byte(p.current<<uint(8-p.currentBits))]
		if child == noChild {
			break
		}
		n := &p.tree.nodes[child]
		if !n.terminal() || int(n.bits) > p.currentBits {
			break
		}
		if n.symbol == p.tree.eos {
			return nil, p.fail(ErrEOSDecoded)
		}
		p.currentBits -= int(n.bits)
		p.append(byte(n.symbol))
		p.node = rootNode
		p.symbolBits = p.currentBits
	}

	// RFC 7541 section 5.2: padding longer than 7 bits, or padding that is not
	// the most significant bits of EOS, is a decoding error.
	if p.symbolBits > 7 {
		return nil, p.fail(ErrInvalidPadding)
	}
	mask := uint64(1)<<uint(p.symbolBits) - 1
	if p.current&mask != mask {
		return nil, p.fail(ErrInvalidPadding)
	}

	return p.bytes[:p.index:p.index], nil
}

// append grows the output by the initial capacity, not geometrically.
func (p *huffmanProcessor) append(c byte) {
	if p.index == len(p.bytes) {
		grown := make([]byte, len(p.bytes)+p.initialCapacity)
		copy(grown, p.bytes)
		p.bytes = grown
	}
	p.bytes[p.index] = c
	p.index++
}

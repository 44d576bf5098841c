// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package hpack

import (
	"github.com/pkg/errors"
)

// ErrUnencodable is returned when a byte has no code in the encoder's table.
var ErrUnencodable = errors.New("hpack: symbol has no Huffman code")

// HuffmanEncoder is the compressing side of a code table.
type HuffmanEncoder struct {
	codes   [256]uint32
	lengths [256]uint8
}

// NewHuffmanEncoder builds an encoder for the byte symbols of table. The EOS
// entry is not needed, padding is always all ones.
func NewHuffmanEncoder(table []CodeEntry) (*HuffmanEncoder, error) {
	var e HuffmanEncoder
	for _, ce := range table {
		if ce.Symbol < 0 || ce.Symbol > 0xff {
			continue
		}
		if ce.Length == 0 || ce.Length > 32 {
			return nil, errors.Errorf("hpack: symbol %d: invalid code length %d", ce.Symbol, ce.Length)
		}
		e.codes[ce.Symbol] = ce.Code
		e.lengths[ce.Symbol] = ce.Length
	}
	return &e, nil
}

var defaultHuffmanEncoder = func() *HuffmanEncoder {
	e, err := NewHuffmanEncoder(huffmanTable())
	if err != nil {
		panic(err)
	}
	return e
}()

// Encode appends the Huffman code of s to dst, padded with 1 bits to the next
// byte boundary.
func (e *HuffmanEncoder) Encode(dst []byte, s string) ([]byte, error) {
	var (
		x uint64 // bit buffer, the n low order bits are pending
		n uint
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		l := uint(e.lengths[c])
		if l == 0 {
			return nil, errors.Wrapf(ErrUnencodable, "byte %#x at offset %d", c, i)
		}
		x = x<<l | uint64(e.codes[c])
		n += l
		for n >= 8 {
			n -= 8
			dst = append(dst, byte(x>>n))
		}
	}
	if n > 0 {
		pad := 8 - n
		dst = append(dst, byte(x<<pad|(1<<pad-1)))
	}
	return dst, nil
}

// EncodeLength returns the number of bytes Encode produces for s.
func (e *HuffmanEncoder) EncodeLength(s string) uint64 {
	var n uint64
	for i := 0; i < len(s); i++ {
		n += uint64(e.lengths[s[i]])
	}
	return (n + 7) / 8
}

// AppendHuffmanString appends s, as encoded in Huffman codes, to dst
// and returns the extended buffer.
func AppendHuffmanString(dst []byte, s string) []byte {
	// every byte has a code in the RFC table
	dst, _ = defaultHuffmanEncoder.Encode(dst, s)
	return dst
}

// HuffmanEncodeLength returns the number of bytes required to encode
// s in Huffman codes. The result is round up to byte boundary.
func HuffmanEncodeLength(s string) uint64 {
	return defaultHuffmanEncoder.EncodeLength(s)
}

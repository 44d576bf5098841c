// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package hpack

import (
	"github.com/pkg/errors"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/buffer"
)

// ProtocolName is returned by Protocol() of the frames this package decodes.
const ProtocolName = "hpack"

// StringLiteral is one decoded RFC 7541 section 5.2 string.
type StringLiteral struct {
	Value []byte

	// Huffman is true if the string was Huffman coded on the wire.
	Huffman bool
}

func (StringLiteral) Protocol() string { return ProtocolName }

func (sl StringLiteral) String() string { return string(sl.Value) }

// StringDecoder reads string literals off a ByteBuf.
//
// The wire form is the H bit and a 7 bit prefixed length, followed by exactly
// that many bytes. The decoder never reads past the declared length and does
// not consume anything until all of it is buffered.
type StringDecoder struct {
	// MaxStringLength bounds the declared length. 0 means unlimited.
	MaxStringLength int

	huff *HuffmanDecoder
}

var _ baseio.ProtocolDecoder = (*StringDecoder)(nil)

// NewStringDecoder returns a StringDecoder whose Huffman output buffer starts
// at initialCapacity bytes.
func NewStringDecoder(initialCapacity int) *StringDecoder {
	return &StringDecoder{huff: NewHuffmanDecoder(initialCapacity)}
}

// Decode implements baseio.ProtocolDecoder. The session is not used.
func (d *StringDecoder) Decode(_ baseio.Session, in *buffer.ByteBuf) (baseio.Frame, bool, error) {
	p := in.Bytes()
	if len(p) == 0 {
		return nil, false, nil
	}
	isHuff := p[0]&0x80 != 0

	strLen, rest, err := ReadVarInt(7, p)
	if err == ErrNeedMore {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	if d.MaxStringLength != 0 && strLen > uint64(d.MaxStringLength) {
		return nil, false, ErrStringLength
	}
	if uint64(len(rest)) < strLen {
		return nil, false, nil
	}

	// the prefix is complete and so is the body: from here on we consume
	headerLen := len(p) - len(rest)
	if err := in.SkipBytes(headerLen); err != nil {
		return nil, false, errors.Wrap(err, "hpack: skipping string length")
	}

	length := int(strLen)
	if !isHuff {
		raw, err := in.Next(length)
		if err != nil {
			return nil, false, errors.Wrap(err, "hpack: reading raw string")
		}
		v := make([]byte, length)
		copy(v, raw)
		return StringLiteral{Value: v}, true, nil
	}

	v, err := d.huff.Decode(in, length)
	if err != nil {
		return nil, false, err
	}
	return StringLiteral{Value: v, Huffman: true}, true, nil
}

// readString is the slice based variant the header block decoder uses. It
// returns the remainder of p after the string.
func readString(huff *HuffmanDecoder, maxLen int, p []byte) (string, []byte, error) {
	if len(p) == 0 {
		return "", p, ErrNeedMore
	}
	isHuff := p[0]&0x80 != 0
	strLen, rest, err := ReadVarInt(7, p)
	if err != nil {
		return "", p, err
	}
	if maxLen != 0 && strLen > uint64(maxLen) {
		return "", p, ErrStringLength
	}
	if uint64(len(rest)) < strLen {
		return "", p, ErrNeedMore
	}
	body := rest[:strLen]
	rest = rest[strLen:]
	if !isHuff {
		return string(body), rest, nil
	}
	s, err := huff.DecodeString(body)
	if err != nil {
		return "", p, err
	}
	return s, rest, nil
}

// AppendString appends s as a string literal. It uses the Huffman code when
// that is shorter.
func AppendString(dst []byte, s string) []byte {
	if n := HuffmanEncodeLength(s); n < uint64(len(s)) {
		dst = AppendVarInt(dst, 7, 0x80, n)
		return AppendHuffmanString(dst, s)
	}
	dst = AppendVarInt(dst, 7, 0, uint64(len(s)))
	return append(dst, s...)
}

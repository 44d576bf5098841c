// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package hpack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-baseio/buffer"
)

func TestStringDecoderNeedsMore(t *testing.T) {
	r := require.New(t)

	lit := AppendString(nil, "custom-value")
	r.Equal(byte(0x89), lit[0], "huffman flag and length 9")

	d := NewStringDecoder(4)
	buf := buffer.New(0)

	// feed the literal a byte at a time
	for i := 0; i < len(lit)-1; i++ {
		_, err := buf.Write(lit[i : i+1])
		r.NoError(err)

		f, complete, err := d.Decode(nil, buf)
		r.NoError(err)
		r.False(complete, "complete after %d bytes", i+1)
		r.Nil(f)
		r.Equal(0, buf.Position(), "cursor moved")
	}

	_, err := buf.Write(lit[len(lit)-1:])
	r.NoError(err)
	_, err = buf.Write([]byte{0x00})
	r.NoError(err)

	f, complete, err := d.Decode(nil, buf)
	r.NoError(err)
	r.True(complete)
	sl, ok := f.(StringLiteral)
	r.True(ok)
	r.True(sl.Huffman)
	r.Equal("custom-value", sl.String())
	r.Equal(ProtocolName, sl.Protocol())
	r.Equal(1, buf.Remaining(), "read past the literal")
}

func TestStringDecoderRaw(t *testing.T) {
	r := require.New(t)

	var lit []byte
	lit = AppendVarInt(lit, 7, 0, 3)
	lit = append(lit, "a\x00z"...)
	lit = AppendString(lit, "")

	d := NewStringDecoder(0)
	buf := buffer.Wrap(lit)

	f, complete, err := d.Decode(nil, buf)
	r.NoError(err)
	r.True(complete)
	r.Equal(StringLiteral{Value: []byte("a\x00z")}, f)

	f, complete, err = d.Decode(nil, buf)
	r.NoError(err)
	r.True(complete)
	r.Empty(f.(StringLiteral).Value)
	r.False(buf.HasRemaining())

	f, complete, err = d.Decode(nil, buf)
	r.NoError(err)
	r.False(complete)
	r.Nil(f)
}

func TestStringDecoderErrors(t *testing.T) {
	r := require.New(t)

	d := NewStringDecoder(0)
	d.MaxStringLength = 4

	buf := buffer.Wrap(AppendString(nil, "too long for it"))
	_, _, err := d.Decode(nil, buf)
	r.Equal(ErrStringLength, err)

	// declared as two huffman bytes, but it's only padding
	buf = buffer.Wrap([]byte{0x82, 0xff, 0xff})
	_, _, err = d.Decode(nil, buf)
	r.Equal(ErrInvalidPadding, err)

	buf = buffer.Wrap([]byte{0x81, 0xff, 0xff, 0xff, 0xff})
	_, _, err = d.Decode(nil, buf)
	r.Equal(ErrInvalidPadding, err, "one byte of 1s is too much padding")

	buf = buffer.Wrap([]byte{0x84, 0xff, 0xff, 0xff, 0xff})
	_, _, err = d.Decode(nil, buf)
	r.Equal(ErrEOSDecoded, err)
}

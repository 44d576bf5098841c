// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package buffer holds the byte source the protocol decoders read from.
//
// A ByteBuf is filled by the session read loop at its write index and drained
// by decoders at its read position. Decoders peek at buffered bytes without
// moving the position and only Skip once a full unit was recognized, which is
// what lets them report "need more data" without losing input.
package buffer

import (
	"io"

	"github.com/pkg/errors"
)

// ErrOutOfBounds is returned when an access reaches past the readable region.
var ErrOutOfBounds = errors.New("buffer: index out of bounds")

// ByteProcessor is fed one byte at a time by ForEachByte.
// Returning false stops the traversal early.
type ByteProcessor interface {
	Process(b byte) (bool, error)
}

// ByteProcessorFunc adapts a plain function to the ByteProcessor interface.
type ByteProcessorFunc func(b byte) (bool, error)

func (fn ByteProcessorFunc) Process(b byte) (bool, error) { return fn(b) }

type ByteBuf struct {
	buf []byte
	pos int // read position
	lim int // write index, end of readable bytes
}

// New returns an empty ByteBuf with room for size bytes.
func New(size int) *ByteBuf {
	return &ByteBuf{buf: make([]byte, size)}
}

// Wrap makes the bytes of p readable. p is not copied.
func Wrap(p []byte) *ByteBuf {
	return &ByteBuf{buf: p, lim: len(p)}
}

func (b *ByteBuf) Position() int  { return b.pos }
func (b *ByteBuf) Limit() int     { return b.lim }
func (b *ByteBuf) Remaining() int { return b.lim - b.pos }
func (b *ByteBuf) HasRemaining() bool {
	return b.pos < b.lim
}

// Bytes returns the readable region without consuming it.
func (b *ByteBuf) Bytes() []byte { return b.buf[b.pos:b.lim] }

// SetPosition moves the read position. Decoders use it to rewind after
// peeking at an incomplete frame.
func (b *ByteBuf) SetPosition(pos int) error {
	if pos < 0 || pos > b.lim {
		return errors.Wrapf(ErrOutOfBounds, "position %d (limit %d)", pos, b.lim)
	}
	b.pos = pos
	return nil
}

// SkipBytes advances the read position by n.
func (b *ByteBuf) SkipBytes(n int) error {
	return b.SetPosition(b.pos + n)
}

// GetByte returns the byte at the absolute index i without moving the position.
func (b *ByteBuf) GetByte(i int) (byte, error) {
	if i < b.pos || i >= b.lim {
		return 0, errors.Wrapf(ErrOutOfBounds, "index %d", i)
	}
	return b.buf[i], nil
}

// ReadByte consumes one byte.
func (b *ByteBuf) ReadByte() (byte, error) {
	if b.pos >= b.lim {
		return 0, io.EOF
	}
	c := b.buf[b.pos]
	b.pos++
	return c, nil
}

// Next consumes and returns the next n bytes. The returned slice aliases the
// buffer and is only valid until the next Compact or Write.
func (b *ByteBuf) Next(n int) ([]byte, error) {
	if n < 0 || b.pos+n > b.lim {
		return nil, errors.Wrapf(ErrOutOfBounds, "want %d bytes, have %d", n, b.Remaining())
	}
	p := b.buf[b.pos : b.pos+n]
	b.pos += n
	return p, nil
}

// ForEachByte hands length bytes starting at the absolute index to p, in order,
// without moving the read position. It stops at the first error or when p
// returns false and reports how many bytes were processed.
func (b *ByteBuf) ForEachByte(index, length int, p ByteProcessor) (int, error) {
	if index < b.pos || length < 0 || index+length > b.lim {
		return 0, errors.Wrapf(ErrOutOfBounds, "range [%d,%d) outside [%d,%d)", index, index+length, b.pos, b.lim)
	}
	for i := index; i < index+length; i++ {
		goOn, err := p.Process(b.buf[i])
		if err != nil {
			return i - index, err
		}
		if !goOn {
			return i - index + 1, nil
		}
	}
	return length, nil
}

// Write appends p at the write index, growing the backing array as needed.
func (b *ByteBuf) Write(p []byte) (int, error) {
	b.ensureWritable(len(p))
	n := copy(b.buf[b.lim:], p)
	b.lim += n
	return n, nil
}

// WriteByte appends a single byte.
func (b *ByteBuf) WriteByte(c byte) error {
	b.ensureWritable(1)
	b.buf[b.lim] = c
	b.lim++
	return nil
}

// WriteString appends the bytes of s.
func (b *ByteBuf) WriteString(s string) (int, error) {
	b.ensureWritable(len(s))
	n := copy(b.buf[b.lim:], s)
	b.lim += n
	return n, nil
}

// ReadFrom reads once from r into the free space after the write index.
// It returns io.EOF only when r does and no bytes arrived.
func (b *ByteBuf) ReadFrom(r io.Reader) (int64, error) {
	b.ensureWritable(minRead)
	n, err := r.Read(b.buf[b.lim:])
	if n < 0 {
		n = 0
	}
	b.lim += n
	if err == io.EOF && n > 0 {
		err = nil
	}
	return int64(n), err
}

// WriteTo drains the readable region into w.
func (b *ByteBuf) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.buf[b.pos:b.lim])
	b.pos += n
	return int64(n), err
}

// Compact discards the consumed bytes and moves the readable region to the
// front of the backing array.
func (b *ByteBuf) Compact() {
	if b.pos == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.pos:b.lim])
	b.pos = 0
	b.lim = n
}

// Reset empties the buffer but keeps the backing array.
func (b *ByteBuf) Reset() {
	b.pos = 0
	b.lim = 0
}

const minRead = 512

func (b *ByteBuf) ensureWritable(n int) {
	if len(b.buf)-b.lim >= n {
		return
	}
	// reclaim consumed space before allocating
	if b.pos > 0 && len(b.buf)-b.lim+b.pos >= n {
		b.Compact()
		return
	}
	size := 2*len(b.buf) + n
	nb := make([]byte, size)
	copy(nb, b.buf[b.pos:b.lim])
	b.lim -= b.pos
	b.pos = 0
	b.buf = nb
}

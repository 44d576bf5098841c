// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package hpack

import (
	"github.com/pkg/errors"
)

// Decoder is the decoding context of one connection. The dynamic table
// carries over from one header block to the next, so a Decoder must see the
// header blocks of its connection in order.
type Decoder struct {
	dynTab dynamicTable
	huff   *HuffmanDecoder

	emit      func(f HeaderField)
	maxStrLen int // 0 means unlimited

	// saveBuf holds the tail of a previous Write that ended in the middle of
	// a field.
	saveBuf []byte

	// firstField is true until the first field of a header block was parsed.
	// Size updates are only valid before it.
	firstField bool
}

// NewDecoder returns a new decoder with the provided maximum dynamic table
// size. emit is called for every decoded field, before Write returns.
func NewDecoder(maxDynamicTableSize uint32, emit func(f HeaderField)) *Decoder {
	d := &Decoder{
		huff:       NewHuffmanDecoder(DefaultInitialCapacity),
		emit:       emit,
		firstField: true,
	}
	d.dynTab.allowedMaxSize = maxDynamicTableSize
	d.dynTab.setMaxSize(maxDynamicTableSize)
	return d
}

// SetMaxStringLength sets the maximum size of a name or value string. 0
// means unlimited.
func (d *Decoder) SetMaxStringLength(n int) { d.maxStrLen = n }

// SetEmitFunc changes the callback used when new header fields are decoded.
func (d *Decoder) SetEmitFunc(emit func(f HeaderField)) { d.emit = emit }

// SetMaxDynamicTableSize applies a new table size limit, for example from an
// HTTP/2 SETTINGS_HEADER_TABLE_SIZE. Entries may be evicted.
func (d *Decoder) SetMaxDynamicTableSize(v uint32) {
	d.dynTab.allowedMaxSize = v
	d.dynTab.setMaxSize(v)
}

// DynamicTableSize returns the current size of the dynamic table in bytes.
func (d *Decoder) DynamicTableSize() uint32 { return d.dynTab.size }

// DynamicTableLen returns the number of entries in the dynamic table.
func (d *Decoder) DynamicTableLen() int { return d.dynTab.len() }

// DecodeFull decodes an entire header block.
func (d *Decoder) DecodeFull(p []byte) ([]HeaderField, error) {
	var hf []HeaderField
	saveFunc := d.emit
	defer func() { d.emit = saveFunc }()
	d.emit = func(f HeaderField) { hf = append(hf, f) }
	if _, err := d.Write(p); err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}
	return hf, nil
}

// Close ends the current header block. It fails if the block ended in the
// middle of a field.
func (d *Decoder) Close() error {
	d.firstField = true
	if len(d.saveBuf) > 0 {
		d.saveBuf = d.saveBuf[:0]
		return DecodingError{errors.New("truncated headers")}
	}
	return nil
}

// Write decodes the next part of a header block. Fields that end in p are
// emitted; a field cut off at the end of p is kept until the next Write.
func (d *Decoder) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	buf := p
	if len(d.saveBuf) > 0 {
		d.saveBuf = append(d.saveBuf, p...)
		buf = d.saveBuf
	}

	for len(buf) > 0 {
		rest, err := d.parseHeaderFieldRepr(buf)
		if err == ErrNeedMore {
			const varIntOverhead = 8
			if d.maxStrLen != 0 && int64(len(buf)) > 2*(int64(d.maxStrLen)+varIntOverhead) {
				return 0, ErrStringLength
			}
			d.saveBuf = append(d.saveBuf[:0], buf...)
			return len(p), nil
		}
		if err != nil {
			d.saveBuf = d.saveBuf[:0]
			return 0, err
		}
		d.firstField = false
		buf = rest
	}
	d.saveBuf = d.saveBuf[:0]
	return len(p), nil
}

type indexType int

const (
	indexedTrue indexType = iota
	indexedFalse
	indexedNever
)

func (v indexType) indexed() bool   { return v == indexedTrue }
func (v indexType) sensitive() bool { return v == indexedNever }

// parseHeaderFieldRepr parses the field at the start of p and returns what
// follows it. ErrNeedMore means p ends inside the field.
func (d *Decoder) parseHeaderFieldRepr(p []byte) ([]byte, error) {
	b := p[0]
	switch {
	case b&128 != 0:
		// 6.1 Indexed Header Field
		return d.parseFieldIndexed(p)
	case b&192 == 64:
		// 6.2.1 Literal Header Field with Incremental Indexing
		return d.parseFieldLiteral(p, 6, indexedTrue)
	case b&240 == 0:
		// 6.2.2 Literal Header Field without Indexing
		return d.parseFieldLiteral(p, 4, indexedFalse)
	case b&240 == 16:
		// 6.2.3 Literal Header Field Never Indexed
		return d.parseFieldLiteral(p, 4, indexedNever)
	case b&224 == 32:
		// 6.3 Dynamic Table Size Update
		return d.parseDynamicTableSizeUpdate(p)
	}
	return nil, DecodingError{errors.New("invalid encoding")}
}

func (d *Decoder) parseFieldIndexed(p []byte) ([]byte, error) {
	idx, rest, err := ReadVarInt(7, p)
	if err != nil {
		return nil, err
	}
	hf, ok := d.dynTab.at(idx)
	if !ok {
		return nil, DecodingError{InvalidIndexError(idx)}
	}
	return rest, d.callEmit(HeaderField{Name: hf.Name, Value: hf.Value})
}

func (d *Decoder) parseFieldLiteral(p []byte, n uint8, it indexType) ([]byte, error) {
	nameIdx, rest, err := ReadVarInt(n, p)
	if err != nil {
		return nil, err
	}

	var hf HeaderField
	if nameIdx > 0 {
		ihf, ok := d.dynTab.at(nameIdx)
		if !ok {
			return nil, DecodingError{InvalidIndexError(nameIdx)}
		}
		hf.Name = ihf.Name
	} else {
		hf.Name, rest, err = readString(d.huff, d.maxStrLen, rest)
		if err != nil {
			return nil, d.wrapStringErr(err)
		}
	}

	hf.Value, rest, err = readString(d.huff, d.maxStrLen, rest)
	if err != nil {
		return nil, d.wrapStringErr(err)
	}

	if it.indexed() {
		d.dynTab.add(hf)
	}
	hf.Sensitive = it.sensitive()
	return rest, d.callEmit(hf)
}

// wrapStringErr turns Huffman failures into decoding errors and passes the
// size and continuation errors through as they are.
func (d *Decoder) wrapStringErr(err error) error {
	switch err {
	case ErrNeedMore, ErrStringLength, ErrIntegerOverflow:
		return err
	}
	return DecodingError{err}
}

func (d *Decoder) callEmit(hf HeaderField) error {
	if d.maxStrLen != 0 {
		if len(hf.Name) > d.maxStrLen || len(hf.Value) > d.maxStrLen {
			return ErrStringLength
		}
	}
	if d.emit != nil {
		d.emit(hf)
	}
	return nil
}

func (d *Decoder) parseDynamicTableSizeUpdate(p []byte) ([]byte, error) {
	// RFC 7541 section 4.2: the update has to come first in the block.
	if !d.firstField && d.dynTab.size > 0 {
		return nil, DecodingError{errors.New("dynamic table size update MUST occur at the beginning of a header block")}
	}
	size, rest, err := ReadVarInt(5, p)
	if err != nil {
		return nil, err
	}
	if size > uint64(d.dynTab.allowedMaxSize) {
		return nil, DecodingError{errors.New("dynamic table size update too large")}
	}
	d.dynTab.setMaxSize(uint32(size))
	return rest, nil
}

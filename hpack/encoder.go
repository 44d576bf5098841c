// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package hpack

// DefaultTableSize is the initial dynamic table size of RFC 7540 section 6.5.2.
const DefaultTableSize = 4096

// Encoder produces header blocks for a Decoder on the other end of a
// connection. Like the Decoder it keeps a dynamic table, so the blocks of one
// connection must be sent in the order they were encoded.
type Encoder struct {
	dynTab dynamicTable

	// pendingSize is set when the table size changed and the next block has
	// to start with a size update.
	pendingSize bool
}

// NewEncoder returns an Encoder that uses a dynamic table of DefaultTableSize.
func NewEncoder() *Encoder {
	e := &Encoder{}
	e.dynTab.allowedMaxSize = DefaultTableSize
	e.dynTab.setMaxSize(DefaultTableSize)
	return e
}

// SetMaxDynamicTableSize changes the table size. The change is announced at
// the start of the next header block.
func (e *Encoder) SetMaxDynamicTableSize(v uint32) {
	if v > e.dynTab.allowedMaxSize {
		v = e.dynTab.allowedMaxSize
	}
	e.dynTab.setMaxSize(v)
	e.pendingSize = true
}

// AppendHeaderBlock appends the encoding of fields to dst.
//
// Fields that are in a table are sent as an index. Other fields are indexed
// for later blocks, unless they are Sensitive.
func (e *Encoder) AppendHeaderBlock(dst []byte, fields ...HeaderField) []byte {
	if e.pendingSize {
		dst = AppendVarInt(dst, 5, 0x20, uint64(e.dynTab.maxSize))
		e.pendingSize = false
	}
	for _, f := range fields {
		dst = e.appendField(dst, f)
	}
	return dst
}

func (e *Encoder) appendField(dst []byte, f HeaderField) []byte {
	idx, nameValueMatch := search(&e.dynTab, f)
	if nameValueMatch {
		return AppendVarInt(dst, 7, 0x80, idx)
	}

	if f.Sensitive {
		dst = AppendVarInt(dst, 4, 0x10, idx)
	} else {
		dst = AppendVarInt(dst, 6, 0x40, idx)
		e.dynTab.add(HeaderField{Name: f.Name, Value: f.Value})
	}
	if idx == 0 {
		dst = AppendString(dst, f.Name)
	}
	return AppendString(dst, f.Value)
}

// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package hpack

import "fmt"

// HeaderField is a name-value pair. Both are opaque octet sequences.
type HeaderField struct {
	Name, Value string

	// Sensitive fields are never indexed.
	Sensitive bool
}

// IsPseudo reports whether the name starts with a colon.
func (hf HeaderField) IsPseudo() bool {
	return len(hf.Name) != 0 && hf.Name[0] == ':'
}

func (hf HeaderField) String() string {
	var suffix string
	if hf.Sensitive {
		suffix = " (sensitive)"
	}
	return fmt.Sprintf("header field %q = %q%s", hf.Name, hf.Value, suffix)
}

// Size returns the size of an entry per RFC 7541 section 4.1, the lengths of
// name and value plus 32.
func (hf HeaderField) Size() uint32 {
	return uint32(len(hf.Name) + len(hf.Value) + 32)
}

// staticTable is RFC 7541 Appendix A. Index 1 is staticTable[0].
var staticTable = [...]HeaderField{
	{Name: ":authority"},
	{Name: ":method", Value: "GET"},
	{Name: ":method", Value: "POST"},
	{Name: ":path", Value: "/"},
	{Name: ":path", Value: "/index.html"},
	{Name: ":scheme", Value: "http"},
	{Name: ":scheme", Value: "https"},
	{Name: ":status", Value: "200"},
	{Name: ":status", Value: "204"},
	{Name: ":status", Value: "206"},
	{Name: ":status", Value: "304"},
	{Name: ":status", Value: "400"},
	{Name: ":status", Value: "404"},
	{Name: ":status", Value: "500"},
	{Name: "accept-charset"},
	{Name: "accept-encoding", Value: "gzip, deflate"},
	{Name: "accept-language"},
	{Name: "accept-ranges"},
	{Name: "accept"},
	{Name: "access-control-allow-origin"},
	{Name: "age"},
	{Name: "allow"},
	{Name: "authorization"},
	{Name: "cache-control"},
	{Name: "content-disposition"},
	{Name: "content-encoding"},
	{Name: "content-language"},
	{Name: "content-length"},
	{Name: "content-location"},
	{Name: "content-range"},
	{Name: "content-type"},
	{Name: "cookie"},
	{Name: "date"},
	{Name: "etag"},
	{Name: "expect"},
	{Name: "expires"},
	{Name: "from"},
	{Name: "host"},
	{Name: "if-match"},
	{Name: "if-modified-since"},
	{Name: "if-none-match"},
	{Name: "if-range"},
	{Name: "if-unmodified-since"},
	{Name: "last-modified"},
	{Name: "link"},
	{Name: "location"},
	{Name: "max-forwards"},
	{Name: "proxy-authenticate"},
	{Name: "proxy-authorization"},
	{Name: "range"},
	{Name: "referer"},
	{Name: "refresh"},
	{Name: "retry-after"},
	{Name: "server"},
	{Name: "set-cookie"},
	{Name: "strict-transport-security"},
	{Name: "transfer-encoding"},
	{Name: "user-agent"},
	{Name: "vary"},
	{Name: "via"},
	{Name: "www-authenticate"},
}

// dynamicTable is the FIFO of RFC 7541 section 2.3.2. ents[0] is the oldest
// entry, so index 1 of the dynamic table is the last element.
type dynamicTable struct {
	ents           []HeaderField
	size           uint32 // in bytes
	maxSize        uint32 // current maxSize
	allowedMaxSize uint32 // maxSize may go up to this, inclusive
}

func (dt *dynamicTable) len() int { return len(dt.ents) }

func (dt *dynamicTable) setMaxSize(v uint32) {
	dt.maxSize = v
	dt.evict()
}

// add inserts f and evicts from the old end until the table fits. An entry
// larger than maxSize empties the table and is not added (section 4.4).
func (dt *dynamicTable) add(f HeaderField) {
	dt.ents = append(dt.ents, f)
	dt.size += f.Size()
	dt.evict()
}

func (dt *dynamicTable) evict() {
	var n int
	for dt.size > dt.maxSize && n < len(dt.ents) {
		dt.size -= dt.ents[n].Size()
		n++
	}
	if n == 0 {
		return
	}
	copy(dt.ents, dt.ents[n:])
	for k := len(dt.ents) - n; k < len(dt.ents); k++ {
		dt.ents[k] = HeaderField{}
	}
	dt.ents = dt.ents[:len(dt.ents)-n]
}

// at returns the entry for the combined static and dynamic index i.
func (dt *dynamicTable) at(i uint64) (HeaderField, bool) {
	if i == 0 {
		return HeaderField{}, false
	}
	if i <= uint64(len(staticTable)) {
		return staticTable[i-1], true
	}
	if i > uint64(len(staticTable)+len(dt.ents)) {
		return HeaderField{}, false
	}
	return dt.ents[len(dt.ents)-(int(i)-len(staticTable))], true
}

// search returns the best index for f: a full match if there is one,
// otherwise a name match, 0 if neither. Dynamic entries are only searched
// when the caller keeps one.
func search(dt *dynamicTable, f HeaderField) (i uint64, nameValueMatch bool) {
	for k, e := range staticTable {
		if e.Name != f.Name {
			continue
		}
		if i == 0 {
			i = uint64(k + 1)
		}
		if !f.Sensitive && e.Value == f.Value {
			return uint64(k + 1), true
		}
	}
	if dt == nil {
		return i, false
	}
	for k := len(dt.ents) - 1; k >= 0; k-- {
		e := dt.ents[k]
		if e.Name != f.Name {
			continue
		}
		idx := uint64(len(staticTable) + len(dt.ents) - k)
		if i == 0 {
			i = idx
		}
		if !f.Sensitive && e.Value == f.Value {
			return idx, true
		}
	}
	return i, false
}

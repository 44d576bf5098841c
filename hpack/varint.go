// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package hpack

// ReadVarInt reads an RFC 7541 section 5.1 prefixed integer off the front of
// p. n is the size of the prefix in bits and must be between 1 and 8; the bits
// above the prefix in the first byte are ignored.
//
// On success the remainder of p is returned. On failure p is returned
// unchanged together with ErrNeedMore or ErrIntegerOverflow.
func ReadVarInt(n uint8, p []byte) (uint64, []byte, error) {
	if n < 1 || n > 8 {
		panic("hpack: bad prefix size")
	}
	if len(p) == 0 {
		return 0, p, ErrNeedMore
	}

	i := uint64(p[0])
	if n < 8 {
		i &= 1<<uint64(n) - 1
	}
	if i < 1<<uint64(n)-1 {
		return i, p[1:], nil
	}

	orig := p
	p = p[1:]
	var m uint64
	for len(p) > 0 {
		b := p[0]
		p = p[1:]
		i += uint64(b&127) << m
		if b&128 == 0 {
			return i, p, nil
		}
		m += 7
		if m >= 63 {
			return 0, orig, ErrIntegerOverflow
		}
	}
	return 0, orig, ErrNeedMore
}

// AppendVarInt appends i as a prefixed integer with an n bit prefix. The first
// appended byte is first with i, or the all-ones prefix, in its low n bits, so
// first carries the representation pattern above the prefix.
func AppendVarInt(dst []byte, n uint8, first byte, i uint64) []byte {
	k := uint64(1)<<n - 1
	if i < k {
		return append(dst, first|byte(i))
	}
	dst = append(dst, first|byte(k))
	i -= k
	for ; i >= 128; i >>= 7 {
		dst = append(dst, byte(0x80|(i&0x7f)))
	}
	return append(dst, byte(i))
}

// varIntLen returns the number of bytes AppendVarInt writes for i.
func varIntLen(n uint8, i uint64) int {
	k := uint64(1)<<n - 1
	if i < k {
		return 1
	}
	i -= k
	l := 2
	for ; i >= 128; i >>= 7 {
		l++
	}
	return l
}

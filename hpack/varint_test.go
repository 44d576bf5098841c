// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package hpack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadVarInt(t *testing.T) {
	type tcase struct {
		n    uint8
		in   []byte
		want uint64
		rest int
		err  error
	}

	tcs := []tcase{
		// RFC 7541 C.1.1 to C.1.3
		{n: 5, in: []byte{0x0a}, want: 10},
		{n: 5, in: []byte{0x1f, 0x9a, 0x0a}, want: 1337},
		{n: 8, in: []byte{0x2a}, want: 42},

		{n: 7, in: []byte{0xff, 0x00, 0xaa}, want: 127, rest: 1},
		{n: 6, in: []byte{0xc5, 0xbb}, want: 5, rest: 1},

		{n: 5, in: nil, err: ErrNeedMore},
		{n: 5, in: []byte{0x1f}, err: ErrNeedMore},
		{n: 5, in: []byte{0x1f, 0x9a}, err: ErrNeedMore},
		{n: 7, in: []byte{0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, err: ErrIntegerOverflow},
	}

	for _, tc := range tcs {
		i, rest, err := ReadVarInt(tc.n, tc.in)
		if tc.err != nil {
			require.Equal(t, tc.err, err, "input %x", tc.in)
			require.Equal(t, tc.in, rest, "input is returned on failure")
			continue
		}
		require.NoError(t, err, "input %x", tc.in)
		require.Equal(t, tc.want, i, "input %x", tc.in)
		require.Len(t, rest, tc.rest)
	}
}

func TestAppendVarInt(t *testing.T) {
	r := require.New(t)

	r.Equal([]byte{0x0a}, AppendVarInt(nil, 5, 0, 10))
	r.Equal([]byte{0x1f, 0x9a, 0x0a}, AppendVarInt(nil, 5, 0, 1337))
	r.Equal([]byte{0xe0 | 0x1f, 0x00}, AppendVarInt(nil, 5, 0xe0, 31))
	// the pattern comes from first, dst is only appended to
	r.Equal([]byte{0xff, 0x80 | 0x05}, AppendVarInt([]byte{0xff}, 7, 0x80, 5))

	for _, n := range []uint8{1, 4, 5, 6, 7, 8} {
		for _, v := range []uint64{0, 1, 30, 31, 126, 127, 128, 255, 256, 1 << 20, 1<<62 - 1} {
			enc := AppendVarInt(nil, n, 0, v)
			r.Len(enc, varIntLen(n, v))

			got, rest, err := ReadVarInt(n, enc)
			r.NoError(err, "n=%d v=%d", n, v)
			r.Equal(v, got, "n=%d", n)
			r.Empty(rest)
		}
	}
}

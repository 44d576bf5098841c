// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package testutils

import (
	"encoding/hex"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/buffer"
)

// DecodeAll runs dec over in until it needs more data and returns the frames
// it produced. Every frame is logged.
func DecodeAll(t *testing.T, s baseio.Session, dec baseio.ProtocolDecoder, in *buffer.ByteBuf) []baseio.Frame {
	r := require.New(t)

	var frames []baseio.Frame
	for i := 0; ; i++ {
		before := in.Position()
		f, complete, err := dec.Decode(s, in)
		r.NoError(err, "frame %d", i)
		if !complete {
			r.Equal(before, in.Position(), "incomplete decode moved the cursor")
			break
		}
		t.Logf("frame %d: %s", i, spew.Sdump(f))
		frames = append(frames, f)
	}

	if rest := in.Bytes(); len(rest) > 0 {
		b := rest
		if n := len(b); n > 128 {
			t.Log("truncating", n, " to first 32 bytes")
			b = b[:32]
		}
		t.Logf("unread:\n%s", hex.Dump(b))
	}
	return frames
}

// Trickle feeds wire to dec one byte at a time and checks that no frame shows
// up before its last byte arrived.
func Trickle(t *testing.T, s baseio.Session, dec baseio.ProtocolDecoder, wire []byte) baseio.Frame {
	r := require.New(t)

	in := buffer.New(0)
	for i := 0; i < len(wire)-1; i++ {
		in.WriteByte(wire[i])
		f, complete, err := dec.Decode(s, in)
		r.NoError(err, "after %d bytes", i+1)
		r.False(complete, "complete after %d of %d bytes", i+1, len(wire))
		r.Nil(f)
		r.Equal(0, in.Position(), "cursor moved after %d bytes", i+1)
	}
	in.WriteByte(wire[len(wire)-1])
	f, complete, err := dec.Decode(s, in)
	r.NoError(err)
	r.True(complete)
	r.False(in.HasRemaining())
	return f
}

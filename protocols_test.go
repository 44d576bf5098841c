// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package baseio

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-baseio/buffer"
)

type nopFactory string

func (f nopFactory) Name() string                { return string(f) }
func (f nopFactory) NewDecoder() ProtocolDecoder { return nil }
func (f nopFactory) Encoder() ProtocolEncoder    { return nil }

func TestProtocolRegistry(t *testing.T) {
	r := require.New(t)

	reg := NewProtocolRegistry(nopFactory("redis"), nopFactory("http2"))
	reg.Register(nopFactory("fixedlength"))

	r.Equal([]string{"fixedlength", "http2", "redis"}, reg.Names())

	f, err := reg.Lookup("http2")
	r.NoError(err)
	r.Equal("http2", f.Name())

	_, err = reg.Lookup("smtp")
	r.Error(err)
	r.True(errors.Is(err, ErrUnknownProtocol))
	r.Equal(ErrUnknownProtocol, errors.Cause(err))
}

func TestEventHandlerFunc(t *testing.T) {
	r := require.New(t)

	var got []Frame
	h := EventHandlerFunc(func(_ Session, f Frame) error {
		got = append(got, f)
		return nil
	})

	r.NoError(h.Accept(nil, nil))
	r.Len(got, 1)
}

func TestErrDecodeUnwraps(t *testing.T) {
	r := require.New(t)

	err := error(ErrDecode{Protocol: "redis", Session: 3, Err: buffer.ErrOutOfBounds})
	r.True(errors.Is(err, buffer.ErrOutOfBounds))
	r.Contains(err.Error(), "redis on session 3")
}

// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package fixedlength implements a length prefixed framing.
//
// Every frame starts with a big endian int32. A positive value is the length
// of the body that follows, -1 and -2 are heartbeat frames without a body.
package fixedlength

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/buffer"
)

// Name is the name of the protocol in a baseio.ProtocolRegistry.
const Name = "fixedlength"

const (
	// PingLength marks a heartbeat request.
	PingLength = -1
	// PongLength marks the answer to a PingLength frame.
	PongLength = -2

	headerLen = 4
)

// DefaultMaxFrameLength is the largest body a decoder accepts unless told
// otherwise.
const DefaultMaxFrameLength = 1 << 20

var (
	ErrFrameTooLarge = errors.New("fixedlength: frame too large")
	ErrIllegalLength = errors.New("fixedlength: illegal length")
)

// Beat tells heartbeat frames from data frames.
type Beat int8

const (
	NoBeat Beat = iota
	Ping
	Pong
)

func (b Beat) String() string {
	switch b {
	case NoBeat:
		return "none"
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	}
	return fmt.Sprintf("beat(%d)", int8(b))
}

// Frame is a fixed length frame. Body is nil for beats.
type Frame struct {
	Body []byte
	Beat Beat
}

// NewText returns a data frame with s as its body.
func NewText(s string) *Frame { return &Frame{Body: []byte(s)} }

func (*Frame) Protocol() string { return Name }

// Text returns the body as a string.
func (f *Frame) Text() string { return string(f.Body) }

func (f *Frame) IsPing() bool { return f.Beat == Ping }
func (f *Frame) IsPong() bool { return f.Beat == Pong }

func (f *Frame) String() string {
	if f.Beat != NoBeat {
		return "fixedlength " + f.Beat.String()
	}
	return fmt.Sprintf("fixedlength frame (%d bytes)", len(f.Body))
}

// Factory creates fixed length decoders.
type Factory struct {
	// MaxFrameLength bounds the body length. <= 0 means DefaultMaxFrameLength.
	MaxFrameLength int
}

var (
	_ baseio.ProtocolFactory = Factory{}
	_ baseio.BeatFactory     = Factory{}
)

func (Factory) Name() string { return Name }

func (fac Factory) NewDecoder() baseio.ProtocolDecoder {
	limit := fac.MaxFrameLength
	if limit <= 0 {
		limit = DefaultMaxFrameLength
	}
	return &decoder{limit: limit}
}

func (Factory) Encoder() baseio.ProtocolEncoder { return encoder{} }

func (Factory) Ping() baseio.Frame { return &Frame{Beat: Ping} }

func (Factory) Answer(f baseio.Frame) (baseio.Frame, bool) {
	fl, ok := f.(*Frame)
	if !ok {
		return nil, false
	}
	switch fl.Beat {
	case Ping:
		return &Frame{Beat: Pong}, true
	case Pong:
		return nil, true
	}
	return nil, false
}

type decoder struct {
	limit int
}

func (d *decoder) Decode(_ baseio.Session, in *buffer.ByteBuf) (baseio.Frame, bool, error) {
	p := in.Bytes()
	if len(p) < headerLen {
		return nil, false, nil
	}

	length := int32(binary.BigEndian.Uint32(p))
	switch {
	case length == PingLength:
		return &Frame{Beat: Ping}, true, in.SkipBytes(headerLen)
	case length == PongLength:
		return &Frame{Beat: Pong}, true, in.SkipBytes(headerLen)
	case length < 0:
		return nil, false, errors.Wrapf(ErrIllegalLength, "got %d", length)
	case int(length) > d.limit:
		return nil, false, errors.Wrapf(ErrFrameTooLarge, "%d > %d", length, d.limit)
	}

	if len(p) < headerLen+int(length) {
		return nil, false, nil
	}

	body := make([]byte, length)
	copy(body, p[headerLen:])
	if err := in.SkipBytes(headerLen + int(length)); err != nil {
		return nil, false, err
	}
	return &Frame{Body: body}, true, nil
}

type encoder struct{}

func (encoder) Encode(_ baseio.Session, f baseio.Frame, out *buffer.ByteBuf) error {
	fl, ok := f.(*Frame)
	if !ok {
		return baseio.ErrWrongFrame{Want: Name, Got: f}
	}

	var hdr [headerLen]byte
	switch fl.Beat {
	case Ping:
		binary.BigEndian.PutUint32(hdr[:], uint32(0xffffffff)) // -1
		_, err := out.Write(hdr[:])
		return err
	case Pong:
		binary.BigEndian.PutUint32(hdr[:], uint32(0xfffffffe)) // -2
		_, err := out.Write(hdr[:])
		return err
	}

	if int64(len(fl.Body)) > 1<<31-1 {
		return errors.Wrapf(ErrFrameTooLarge, "body of %d bytes", len(fl.Body))
	}
	binary.BigEndian.PutUint32(hdr[:], uint32(len(fl.Body)))
	if _, err := out.Write(hdr[:]); err != nil {
		return err
	}
	_, err := out.Write(fl.Body)
	return err
}

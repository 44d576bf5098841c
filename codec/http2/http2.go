// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package http2 reads and writes HTTP/2 frames (RFC 7540) and decodes header
// blocks with HPACK.
//
// It only does the framing. Streams, flow control and settings negotiation
// are up to the EventHandler.
package http2

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/buffer"
	"github.com/ssbc/go-baseio/hpack"
)

// Name is the name of the protocol in a baseio.ProtocolRegistry.
const Name = "http2"

// ClientPreface is sent by the client before its first frame.
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

const (
	// DefaultMaxFrameSize is the initial SETTINGS_MAX_FRAME_SIZE.
	DefaultMaxFrameSize = 16384

	// DefaultMaxHeaderBlockSize bounds a header block across all of its
	// CONTINUATION frames.
	DefaultMaxHeaderBlockSize = 1 << 20
)

// Session attributes that hold the HPACK contexts of a connection.
const (
	attrHPACKDecoder = "http2.hpack.decoder"
	attrHPACKEncoder = "http2.hpack.encoder"
)

var (
	ErrBadPreface = &hpack.ConnectionError{Code: hpack.ErrCodeProtocol, Msg: "bad client preface"}
	ErrFrameSize  = &hpack.ConnectionError{Code: hpack.ErrCodeFrameSize, Msg: "frame too large"}
	ErrProtocol   = &hpack.ConnectionError{Code: hpack.ErrCodeProtocol, Msg: "protocol error"}
)

// Factory creates HTTP/2 decoders. The zero value is for servers.
type Factory struct {
	// Client sessions don't expect a preface from the peer.
	Client bool

	// MaxFrameSize bounds the payload of a frame. 0 means DefaultMaxFrameSize.
	MaxFrameSize uint32

	// HeaderTableSize is the HPACK dynamic table size. 0 means
	// hpack.DefaultTableSize.
	HeaderTableSize uint32
}

var _ baseio.ProtocolFactory = Factory{}

func (Factory) Name() string { return Name }

func (fac Factory) NewDecoder() baseio.ProtocolDecoder {
	d := &decoder{
		prefaceSeen:  fac.Client,
		maxFrameSize: fac.MaxFrameSize,
		tableSize:    fac.HeaderTableSize,
	}
	if d.maxFrameSize == 0 {
		d.maxFrameSize = DefaultMaxFrameSize
	}
	if d.tableSize == 0 {
		d.tableSize = hpack.DefaultTableSize
	}
	return d
}

func (fac Factory) Encoder() baseio.ProtocolEncoder {
	e := encoder{maxFrameSize: fac.MaxFrameSize}
	if e.maxFrameSize == 0 {
		e.maxFrameSize = DefaultMaxFrameSize
	}
	return e
}

type decoder struct {
	prefaceSeen  bool
	maxFrameSize uint32
	tableSize    uint32

	// used when there is no session to keep the table in
	own *hpack.Decoder
}

func (d *decoder) hpackDecoder(s baseio.Session) *hpack.Decoder {
	if s == nil {
		if d.own == nil {
			d.own = hpack.NewDecoder(d.tableSize, nil)
		}
		return d.own
	}
	if v, ok := s.Attribute(attrHPACKDecoder); ok {
		if hd, ok := v.(*hpack.Decoder); ok {
			return hd
		}
	}
	hd := hpack.NewDecoder(d.tableSize, nil)
	s.SetAttribute(attrHPACKDecoder, hd)
	return hd
}

func (d *decoder) Decode(s baseio.Session, in *buffer.ByteBuf) (baseio.Frame, bool, error) {
	p := in.Bytes()

	if !d.prefaceSeen {
		n := len(p)
		if n > len(ClientPreface) {
			n = len(ClientPreface)
		}
		if !bytes.Equal(p[:n], []byte(ClientPreface[:n])) {
			return nil, false, ErrBadPreface
		}
		if n < len(ClientPreface) {
			return nil, false, nil
		}
		if err := in.SkipBytes(len(ClientPreface)); err != nil {
			return nil, false, err
		}
		d.prefaceSeen = true
		return Preface{}, true, nil
	}

	hdr, payload, n, err := d.peekFrame(p)
	if err != nil || n == 0 {
		return nil, false, err
	}

	switch hdr.Type {
	case FrameContinuation:
		return nil, false, errors.Wrap(ErrProtocol, "CONTINUATION without HEADERS")
	case FrameHeaders:
		return d.decodeHeaders(s, in, hdr, payload, n)
	}

	f := &Frame{FrameHeader: hdr, Payload: append([]byte{}, payload...)}
	if err := in.SkipBytes(n); err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// peekFrame returns the frame at the start of p. n is the number of bytes it
// takes up, 0 if p ends before the frame does.
func (d *decoder) peekFrame(p []byte) (FrameHeader, []byte, int, error) {
	if len(p) < frameHeaderLen {
		return FrameHeader{}, nil, 0, nil
	}
	hdr := readFrameHeader(p)
	if hdr.Length > d.maxFrameSize {
		return FrameHeader{}, nil, 0, errors.Wrapf(ErrFrameSize, "%s: %d > %d", hdr.Type, hdr.Length, d.maxFrameSize)
	}
	n := frameHeaderLen + int(hdr.Length)
	if len(p) < n {
		return FrameHeader{}, nil, 0, nil
	}
	return hdr, p[frameHeaderLen:n], n, nil
}

// decodeHeaders collects the header block of a HEADERS frame and the
// CONTINUATION frames after it. Nothing is consumed until the frame with
// END_HEADERS is buffered too.
func (d *decoder) decodeHeaders(s baseio.Session, in *buffer.ByteBuf, hdr FrameHeader, payload []byte, n int) (baseio.Frame, bool, error) {
	if hdr.StreamID == 0 {
		return nil, false, errors.Wrap(ErrProtocol, "HEADERS on stream 0")
	}

	f := &Frame{FrameHeader: hdr}
	frag := payload
	if hdr.Flags.Has(FlagHeadersPadded) {
		if len(frag) < 1 {
			return nil, false, errors.Wrap(ErrProtocol, "HEADERS too short for padding")
		}
		padLen := int(frag[0])
		frag = frag[1:]
		if padLen > len(frag) {
			return nil, false, errors.Wrap(ErrProtocol, "pad length exceeds payload")
		}
		frag = frag[:len(frag)-padLen]
	}
	if hdr.Flags.Has(FlagHeadersPriority) {
		if len(frag) < 5 {
			return nil, false, errors.Wrap(ErrProtocol, "HEADERS too short for priority")
		}
		v := uint32(frag[0])<<24 | uint32(frag[1])<<16 | uint32(frag[2])<<8 | uint32(frag[3])
		f.Priority = &PriorityParam{
			StreamDep: v & 0x7fffffff,
			Exclusive: v != v&0x7fffffff,
			Weight:    frag[4],
		}
		frag = frag[5:]
	}

	block := append([]byte{}, frag...)
	total := n
	flags := hdr.Flags
	for !flags.Has(FlagHeadersEndHeaders) {
		chdr, cpayload, cn, err := d.peekFrame(in.Bytes()[total:])
		if err != nil {
			return nil, false, err
		}
		if cn == 0 {
			return nil, false, nil
		}
		if chdr.Type != FrameContinuation || chdr.StreamID != hdr.StreamID {
			return nil, false, errors.Wrapf(ErrProtocol, "expected CONTINUATION on stream %d, got %s", hdr.StreamID, chdr)
		}
		block = append(block, cpayload...)
		if len(block) > DefaultMaxHeaderBlockSize {
			return nil, false, errors.Wrapf(ErrProtocol, "header block larger than %d bytes", DefaultMaxHeaderBlockSize)
		}
		total += cn
		flags = chdr.Flags
	}

	fields, err := d.hpackDecoder(s).DecodeFull(block)
	if err != nil {
		return nil, false, err
	}
	if err := in.SkipBytes(total); err != nil {
		return nil, false, err
	}

	f.Flags |= FlagHeadersEndHeaders
	f.Length = uint32(len(block))
	f.Payload = block
	f.Fields = fields
	return f, true, nil
}

type encoder struct {
	maxFrameSize uint32
}

func hpackEncoder(s baseio.Session) *hpack.Encoder {
	if s == nil {
		return hpack.NewEncoder()
	}
	if v, ok := s.Attribute(attrHPACKEncoder); ok {
		if he, ok := v.(*hpack.Encoder); ok {
			return he
		}
	}
	he := hpack.NewEncoder()
	s.SetAttribute(attrHPACKEncoder, he)
	return he
}

// Encode writes f. HEADERS frames with Fields are compressed with the
// session's HPACK encoder and split into CONTINUATION frames as needed.
func (e encoder) Encode(s baseio.Session, f baseio.Frame, out *buffer.ByteBuf) error {
	switch v := f.(type) {
	case Preface:
		_, err := out.WriteString(ClientPreface)
		return err
	case *Frame:
		if v.Type == FrameHeaders && v.Fields != nil {
			return e.encodeHeaders(s, v, out)
		}
		if uint32(len(v.Payload)) > e.maxFrameSize {
			return errors.Wrapf(ErrFrameSize, "%s payload of %d bytes", v.Type, len(v.Payload))
		}
		hdr := v.FrameHeader
		hdr.Length = uint32(len(v.Payload))
		out.Write(appendFrameHeader(nil, hdr))
		_, err := out.Write(v.Payload)
		return err
	}
	return baseio.ErrWrongFrame{Want: Name, Got: f}
}

func (e encoder) encodeHeaders(s baseio.Session, f *Frame, out *buffer.ByteBuf) error {
	block := hpackEncoder(s).AppendHeaderBlock(nil, f.Fields...)

	typ := FrameHeaders
	flags := f.Flags &^ (FlagHeadersEndHeaders | FlagHeadersPadded | FlagHeadersPriority)
	for first := true; first || len(block) > 0; first = false {
		chunk := block
		if uint32(len(chunk)) > e.maxFrameSize {
			chunk = chunk[:e.maxFrameSize]
		}
		block = block[len(chunk):]
		if len(block) == 0 {
			flags |= FlagHeadersEndHeaders
		}

		hdr := FrameHeader{
			Length:   uint32(len(chunk)),
			Type:     typ,
			Flags:    flags,
			StreamID: f.StreamID,
		}
		out.Write(appendFrameHeader(nil, hdr))
		if _, err := out.Write(chunk); err != nil {
			return err
		}
		typ, flags = FrameContinuation, 0
	}
	return nil
}

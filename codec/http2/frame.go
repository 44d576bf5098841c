// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package http2

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/ssbc/go-baseio/hpack"
)

// FrameType is the type octet of the frame header (RFC 7540 section 6).
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

var frameName = map[FrameType]string{
	FrameData:         "DATA",
	FrameHeaders:      "HEADERS",
	FramePriority:     "PRIORITY",
	FrameRSTStream:    "RST_STREAM",
	FrameSettings:     "SETTINGS",
	FramePushPromise:  "PUSH_PROMISE",
	FramePing:         "PING",
	FrameGoAway:       "GOAWAY",
	FrameWindowUpdate: "WINDOW_UPDATE",
	FrameContinuation: "CONTINUATION",
}

func (t FrameType) String() string {
	if s, ok := frameName[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_FRAME_TYPE_%d", uint8(t))
}

// Flags are the flag octet of the frame header.
type Flags uint8

const (
	FlagDataEndStream     Flags = 0x1
	FlagSettingsAck       Flags = 0x1
	FlagPingAck           Flags = 0x1
	FlagHeadersEndStream  Flags = 0x1
	FlagHeadersEndHeaders Flags = 0x4
	FlagHeadersPadded     Flags = 0x8
	FlagHeadersPriority   Flags = 0x20
)

// Has reports whether f contains all of v.
func (f Flags) Has(v Flags) bool { return f&v == v }

// FrameHeader is the 9 octet header in front of every frame.
type FrameHeader struct {
	Length   uint32 // 24 bits
	Type     FrameType
	Flags    Flags
	StreamID uint32 // 31 bits
}

const frameHeaderLen = 9

func (h FrameHeader) String() string {
	return fmt.Sprintf("[FrameHeader %s flags=%#x stream=%d len=%d]", h.Type, uint8(h.Flags), h.StreamID, h.Length)
}

func readFrameHeader(p []byte) FrameHeader {
	return FrameHeader{
		Length:   uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2]),
		Type:     FrameType(p[3]),
		Flags:    Flags(p[4]),
		StreamID: binary.BigEndian.Uint32(p[5:]) & (1<<31 - 1),
	}
}

func appendFrameHeader(dst []byte, h FrameHeader) []byte {
	dst = append(dst,
		byte(h.Length>>16), byte(h.Length>>8), byte(h.Length),
		byte(h.Type),
		byte(h.Flags))
	var sid [4]byte
	binary.BigEndian.PutUint32(sid[:], h.StreamID&(1<<31-1))
	return append(dst, sid[:]...)
}

// PriorityParam is the priority block of HEADERS and PRIORITY frames.
type PriorityParam struct {
	StreamDep uint32
	Exclusive bool
	Weight    uint8
}

// Frame is one HTTP/2 frame. For HEADERS frames the CONTINUATION frames that
// followed it are merged in: Fields holds the decoded header list and Payload
// the header block without padding and priority.
type Frame struct {
	FrameHeader

	Payload  []byte
	Priority *PriorityParam
	Fields   []hpack.HeaderField
}

func (*Frame) Protocol() string { return Name }

func (f *Frame) String() string {
	if f.Type == FrameHeaders {
		return fmt.Sprintf("%s with %d fields", f.FrameHeader, len(f.Fields))
	}
	return f.FrameHeader.String()
}

// Preface is returned once, when the client connection preface was read.
type Preface struct{}

func (Preface) Protocol() string { return Name }

// SettingID names a SETTINGS parameter.
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

// Setting is one parameter of a SETTINGS frame.
type Setting struct {
	ID  SettingID
	Val uint32
}

// Settings parses the payload of a SETTINGS frame.
func (f *Frame) Settings() ([]Setting, error) {
	if f.Type != FrameSettings {
		return nil, errors.Errorf("http2: %s is not a SETTINGS frame", f.Type)
	}
	if len(f.Payload)%6 != 0 {
		return nil, errors.Wrapf(ErrFrameSize, "SETTINGS payload of %d bytes", len(f.Payload))
	}
	ss := make([]Setting, 0, len(f.Payload)/6)
	for p := f.Payload; len(p) > 0; p = p[6:] {
		ss = append(ss, Setting{
			ID:  SettingID(binary.BigEndian.Uint16(p)),
			Val: binary.BigEndian.Uint32(p[2:]),
		})
	}
	return ss, nil
}

// SettingsFrame returns a SETTINGS frame on stream 0.
func SettingsFrame(ss ...Setting) *Frame {
	p := make([]byte, 0, 6*len(ss))
	for _, s := range ss {
		p = append(p, byte(s.ID>>8), byte(s.ID),
			byte(s.Val>>24), byte(s.Val>>16), byte(s.Val>>8), byte(s.Val))
	}
	return &Frame{
		FrameHeader: FrameHeader{Type: FrameSettings},
		Payload:     p,
	}
}

// HeadersFrame returns a HEADERS frame for stream that the encoder compresses
// with the dynamic table of the session.
func HeadersFrame(stream uint32, endStream bool, fields ...hpack.HeaderField) *Frame {
	f := &Frame{
		FrameHeader: FrameHeader{Type: FrameHeaders, StreamID: stream},
		Fields:      fields,
	}
	if endStream {
		f.Flags |= FlagHeadersEndStream
	}
	return f
}

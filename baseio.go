// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package baseio holds the contract between the connection machinery and the
// wire formats.
//
// A session feeds the bytes it reads into a ProtocolDecoder until the decoder
// reports that it needs more data. Every complete Frame is handed to the
// EventHandler. Frames written to a session go through the ProtocolEncoder of
// the same ProtocolFactory. The session code never looks inside a frame.
package baseio

import (
	"net"

	"github.com/ssbc/go-baseio/buffer"
)

// Frame is one application level message.
type Frame interface {
	// Protocol returns the name of the factory that produced the frame.
	Protocol() string
}

// Session is one connection as seen by decoders, encoders and handlers.
type Session interface {
	ID() uint64

	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// Attribute returns per connection state that decoders keep between
	// calls, like the HPACK dynamic table.
	Attribute(key string) (interface{}, bool)
	SetAttribute(key string, v interface{})

	// Write encodes f and sends it to the peer.
	Write(f Frame) error

	Close() error
}

// ProtocolDecoder rebuilds frames from a byte stream.
//
// Decode either returns a complete frame and advances in past exactly that
// frame, or returns complete == false and a nil error and leaves the read
// position of in where it was. The caller then waits for more bytes and calls
// Decode again with the old and the new bytes. Any error is fatal for the
// connection.
type ProtocolDecoder interface {
	Decode(s Session, in *buffer.ByteBuf) (f Frame, complete bool, err error)
}

// ProtocolEncoder writes frames to out.
type ProtocolEncoder interface {
	Encode(s Session, f Frame, out *buffer.ByteBuf) error
}

// ProtocolFactory bundles what a session needs to speak one wire format.
// Decoders may carry state, so every session gets its own.
type ProtocolFactory interface {
	Name() string
	NewDecoder() ProtocolDecoder
	Encoder() ProtocolEncoder
}

// BeatFactory is implemented by factories whose wire format has heartbeats.
// Sessions answer incoming beats on their own and send Ping when the peer
// went quiet.
type BeatFactory interface {
	Ping() Frame

	// Answer reports whether f is a beat. Beats are not passed on to the
	// EventHandler. reply is nil if f needs no reply.
	Answer(f Frame) (reply Frame, isBeat bool)
}

// EventHandler receives the decoded frames of all sessions.
type EventHandler interface {
	Accept(s Session, f Frame) error
}

// EventHandlerFunc is an EventHandler made from a function.
type EventHandlerFunc func(s Session, f Frame) error

func (fn EventHandlerFunc) Accept(s Session, f Frame) error { return fn(s, f) }

// SessionListener is notified about the life cycle of sessions.
type SessionListener interface {
	SessionOpened(s Session)
	SessionClosed(s Session, err error)
}

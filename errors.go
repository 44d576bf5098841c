// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package baseio

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrShuttingDown is returned if Close() was called on a server
var ErrShuttingDown = errors.New("baseio: shutting down now")

// ErrSessionClosed is returned by writes to a session that is already closed.
var ErrSessionClosed = errors.New("baseio: session closed")

// ErrUnknownProtocol is returned when no factory is registered under a name.
var ErrUnknownProtocol = errors.New("baseio: unknown protocol")

// ErrDecode wraps the error a decoder returned, together with the session it
// happened on.
type ErrDecode struct {
	Protocol string
	Session  uint64
	Err      error
}

func (e ErrDecode) Error() string {
	return fmt.Sprintf("baseio/decode error: %s on session %d: %v",
		e.Protocol,
		e.Session,
		e.Err)
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrWrongFrame is returned by encoders that are handed a frame of another
// protocol.
type ErrWrongFrame struct {
	Want string
	Got  Frame
}

func (e ErrWrongFrame) Error() string {
	return fmt.Sprintf("baseio: %s encoder can't write %T", e.Want, e.Got)
}

// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package baseio

import (
	"context"
	"io"
	"net"
	"time"
)

// Network accepts connections and runs a session for each of them.
type Network interface {
	Serve(context.Context) error
	GetListenAddr() net.Addr

	GetConnTracker() ConnTracker

	io.Closer
}

// ConnTracker keeps the set of open connections.
type ConnTracker interface {
	Active(net.Addr) bool
	OnAccept(conn net.Conn) bool
	OnClose(conn net.Conn) time.Duration
	Count() uint
	CloseAll()
}

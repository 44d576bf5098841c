// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"go.mindeco.de/log/level"
)

// Dial connects to addr over TCP and starts a session with the given
// options. WithProtocol is required. Listen options are ignored.
// The session is closed when ctx is cancelled.
func Dial(ctx context.Context, addr string, opts ...Option) (*Session, error) {
	s := &Server{}
	if err := s.applyOptions(opts); err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "network: failed to dial %s", addr)
	}
	return s.startSession(ctx, conn), nil
}

func (s *Server) startSession(ctx context.Context, conn net.Conn) *Session {
	sess := s.newSession(conn)
	go func() {
		if err := sess.serve(ctx); err != nil {
			level.Debug(s.log).Log("event", "client session closed", "session", sess.ID(), "err", err)
		}
	}()
	return sess
}

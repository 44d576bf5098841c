// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"time"

	"github.com/dustin/go-humanize"
	kitlog "go.mindeco.de/log"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-baseio"
)

// NewLoggerListener returns a SessionListener that logs when sessions open and
// close, with the traffic they saw.
func NewLoggerListener(l kitlog.Logger) baseio.SessionListener {
	return loggerListener{l}
}

type loggerListener struct {
	log kitlog.Logger
}

func (ll loggerListener) SessionOpened(s baseio.Session) {
	level.Info(ll.log).Log("event", "session opened", "session", s.ID(), "remote", s.RemoteAddr().String())
}

func (ll loggerListener) SessionClosed(s baseio.Session, err error) {
	kv := []interface{}{"event", "session closed", "session", s.ID(), "remote", s.RemoteAddr().String()}
	if sess, ok := s.(*Session); ok {
		kv = append(kv,
			"read", humanize.Bytes(sess.BytesRead()),
			"written", humanize.Bytes(sess.BytesWritten()),
			"durr", time.Since(sess.started).Round(time.Millisecond),
		)
	}
	if err != nil {
		level.Warn(ll.log).Log(append(kv, "err", err)...)
		return
	}
	level.Info(ll.log).Log(kv...)
}

// logHandler is the EventHandler of servers that got none.
type logHandler struct {
	log kitlog.Logger
}

func (h logHandler) Accept(s baseio.Session, f baseio.Frame) error {
	level.Debug(h.log).Log("event", "frame", "session", s.ID(), "protocol", f.Protocol(), "frame", f)
	return nil
}

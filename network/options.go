// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"fmt"
	"os"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/pkg/errors"
	kitlog "go.mindeco.de/log"

	"github.com/ssbc/go-baseio"
)

// DefaultPort is the default listening port.
const DefaultPort = 18300

// DefaultMaxBufferSize bounds the unread bytes of a session. A peer that sends
// more than that without completing a frame is disconnected.
const DefaultMaxBufferSize = 8 << 20

// Option configures a Server, or a session created by Dial.
type Option func(*Server) error

// WithListenAddr sets the TCP address to accept connections on.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		if addr == "" {
			return errors.New("empty listen address")
		}
		s.listenAddr = addr
		return nil
	}
}

// WithWebsocketAddr also accepts connections as binary websocket streams on
// addr. Every HTTP path upgrades.
func WithWebsocketAddr(addr string) Option {
	return func(s *Server) error {
		s.wsAddr = addr
		return nil
	}
}

// WithReusePort sets SO_REUSEPORT on the TCP listener, so several processes
// can share the port.
func WithReusePort(yes bool) Option {
	return func(s *Server) error {
		s.reusePort = yes
		return nil
	}
}

func WithLogger(l kitlog.Logger) Option {
	return func(s *Server) error {
		s.log = l
		return nil
	}
}

// WithMetrics enables instrumentation. events counts connection and decode
// events by "event", conns and durations feed the instrumented conn tracker.
func WithMetrics(events metrics.Counter, conns metrics.Gauge, durations metrics.Histogram) Option {
	return func(s *Server) error {
		s.evtCtr = events
		s.sysGauge = conns
		s.latency = durations
		return nil
	}
}

// WithProtocol sets the wire format of all sessions.
func WithProtocol(fac baseio.ProtocolFactory) Option {
	return func(s *Server) error {
		if fac == nil {
			return errors.New("nil protocol factory")
		}
		s.fac = fac
		return nil
	}
}

// WithEventHandler sets the receiver of decoded frames.
func WithEventHandler(h baseio.EventHandler) Option {
	return func(s *Server) error {
		s.handler = h
		return nil
	}
}

// WithSessionListener adds a listener for session open and close events.
func WithSessionListener(l baseio.SessionListener) Option {
	return func(s *Server) error {
		s.listeners = append(s.listeners, l)
		return nil
	}
}

// WithIdleTimeout makes sessions send a heartbeat after d without input, for
// protocols that have heartbeats. If the next d pass without input too, the
// session is closed. Protocols without heartbeats are closed right away.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) error {
		if d < 0 {
			return errors.Errorf("negative idle timeout %s", d)
		}
		s.idle = d
		return nil
	}
}

// WithMaxBufferSize bounds the unread bytes per session.
func WithMaxBufferSize(n int) Option {
	return func(s *Server) error {
		s.maxBuf = n
		return nil
	}
}

// WithMaxConns limits the number of concurrent connections. 0 means no limit.
func WithMaxConns(n uint) Option {
	return func(s *Server) error {
		s.maxConns = n
		return nil
	}
}

func (s *Server) applyOptions(fopts []Option) error {
	for i, opt := range fopts {
		if err := opt(s); err != nil {
			return errors.Wrapf(err, "error applying option #%d", i)
		}
	}

	if s.listenAddr == "" {
		s.listenAddr = fmt.Sprintf(":%d", DefaultPort)
	}

	if s.log == nil {
		logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
		logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)
		s.log = logger
	}

	if s.fac == nil {
		return errors.New("no protocol configured")
	}

	if s.handler == nil {
		s.handler = logHandler{s.log}
	}

	if s.maxBuf == 0 {
		s.maxBuf = DefaultMaxBufferSize
	}

	s.connTracker = NewConnTracker(s.maxConns)
	if s.sysGauge != nil && s.latency != nil {
		s.sysGauge.With("part", "conns").Set(0)
		s.connTracker = NewInstrumentedConnTracker(s.connTracker, s.sysGauge, s.latency)
	}
	return nil
}

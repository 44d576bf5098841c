// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package network accepts connections and runs a baseio session on each of
// them. Connections come in over TCP, optionally as binary websocket
// streams, or are made with Dial.
package network

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/libp2p/go-reuseport"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	kitlog "go.mindeco.de/log"
	"go.mindeco.de/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/ssbc/go-baseio"
)

// Server is a baseio.Network over TCP and websockets.
type Server struct {
	listenAddr string
	wsAddr     string
	reusePort  bool

	fac       baseio.ProtocolFactory
	handler   baseio.EventHandler
	listeners []baseio.SessionListener

	idle     time.Duration
	maxBuf   int
	maxConns uint

	log         kitlog.Logger
	connTracker baseio.ConnTracker

	evtCtr   metrics.Counter
	sysGauge metrics.Gauge
	latency  metrics.Histogram

	l       net.Listener
	wsl     net.Listener
	httpSrv *http.Server

	sessions  sync.WaitGroup
	closeOnce sync.Once
	closing   chan struct{}
}

var _ baseio.Network = (*Server)(nil)

// New applies the options and opens the listeners. Connections are accepted
// once Serve runs.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		closing: make(chan struct{}),
	}
	if err := s.applyOptions(opts); err != nil {
		return nil, err
	}

	var err error
	if s.reusePort {
		s.l, err = reuseport.Listen("tcp", s.listenAddr)
	} else {
		s.l, err = net.Listen("tcp", s.listenAddr)
	}
	if err != nil {
		return nil, errors.Wrap(err, "error creating listener")
	}

	if s.wsAddr != "" {
		s.wsl, err = net.Listen("tcp", s.wsAddr)
		if err != nil {
			s.l.Close()
			return nil, errors.Wrap(err, "error creating websocket listener")
		}
		s.httpSrv = &http.Server{
			Handler:           cors.Default().Handler(websockHandler(s)),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	level.Info(s.log).Log("event", "listening", "protocol", s.fac.Name(), "addr", s.l.Addr().String())
	return s, nil
}

// Serve accepts connections until ctx is cancelled or Close is called. It
// returns after all sessions ended.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.acceptLoop(gctx)
	})

	if s.httpSrv != nil {
		s.httpSrv.BaseContext = func(net.Listener) context.Context { return gctx }
		g.Go(func() error {
			err := s.httpSrv.Serve(s.wsl)
			if err == http.ErrServerClosed {
				return nil
			}
			return errors.Wrap(err, "websocket server failed")
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.closing:
		}
		return s.Close()
	})

	err := g.Wait()
	s.sessions.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.l.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			level.Warn(s.log).Log("msg", "network/Serve: failed to accept connection", "err", err)
			continue
		}

		s.sessions.Add(1)
		go func(c net.Conn) {
			defer s.sessions.Done()
			s.handleConnection(ctx, c)
		}(conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	ok := s.connTracker.OnAccept(conn)
	if !ok {
		err := conn.Close()
		level.Debug(s.log).Log("conn", "ignored", "remote", conn.RemoteAddr().String(), "err", err)
		if s.evtCtr != nil {
			s.evtCtr.With("event", "refused").Add(1)
		}
		return
	}

	// Close may have run CloseAll before conn was tracked.
	select {
	case <-s.closing:
		s.connTracker.OnClose(conn)
		err := conn.Close()
		level.Debug(s.log).Log("conn", "dropped", "remote", conn.RemoteAddr().String(), "reason", "shutting down", "err", err)
		return
	default:
	}

	if s.evtCtr != nil {
		s.evtCtr.With("event", "connection").Add(1)
	}

	sess := s.newSession(conn)
	err := sess.serve(ctx)
	durr := s.connTracker.OnClose(conn)
	if err != nil && !errors.Is(err, context.Canceled) {
		level.Warn(s.log).Log("conn", "closed", "session", sess.ID(), "err", err, "durr", durr)
	}
}

func (s *Server) GetListenAddr() net.Addr {
	return s.l.Addr()
}

// WebsocketAddr returns the address of the websocket listener, or nil if
// there is none.
func (s *Server) WebsocketAddr() net.Addr {
	if s.wsl == nil {
		return nil
	}
	return s.wsl.Addr()
}

func (s *Server) GetConnTracker() baseio.ConnTracker {
	return s.connTracker
}

// Close stops the listeners and closes all open connections.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)

		if cerr := s.l.Close(); cerr != nil {
			err = multierror.Append(err, errors.Wrap(cerr, "network: failed to close tcp listener"))
		}
		if s.httpSrv != nil {
			if cerr := s.httpSrv.Close(); cerr != nil {
				err = multierror.Append(err, errors.Wrap(cerr, "network: failed to close websocket server"))
			}
		}

		if cnt := s.connTracker.Count(); cnt > 0 {
			level.Info(s.log).Log("event", "closing", "msg", "still open connections", "count", cnt)
			s.connTracker.CloseAll()
		}
	})
	return err
}

// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.mindeco.de/log/level"
)

func websockHandler(s *Server) http.HandlerFunc {
	var upgrader = websocket.Upgrader{
		ReadBufferSize:  1024 * 4,
		WriteBufferSize: 1024 * 4,
		CheckOrigin: func(_ *http.Request) bool {
			return true
		},
		EnableCompression: false,
	}
	return func(w http.ResponseWriter, req *http.Request) {
		wsc, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			level.Warn(s.log).Log("event", "websocket upgrade failed", "err", err, "remote", req.RemoteAddr)
			return
		}

		level.Debug(s.log).Log("event", "new ws conn", "remote", req.RemoteAddr, "path", req.URL.Path)
		s.handleConnection(req.Context(), newWSConn(wsc))
	}
}

// DialWebsocket connects to a websocket endpoint and runs a session over
// binary messages, like Dial does over TCP.
func DialWebsocket(ctx context.Context, url string, opts ...Option) (*Session, error) {
	s := &Server{}
	if err := s.applyOptions(opts); err != nil {
		return nil, err
	}

	wsc, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "network: failed to dial %s", url)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return s.startSession(ctx, newWSConn(wsc)), nil
}

// wsConn turns the binary messages of a websocket into a byte stream.
// Every Write is sent as one message.
type wsConn struct {
	r   io.Reader
	wsc *websocket.Conn
}

var _ net.Conn = (*wsConn)(nil)

func newWSConn(wsc *websocket.Conn) *wsConn {
	return &wsConn{wsc: wsc}
}

func (conn *wsConn) Read(data []byte) (int, error) {
	if conn.r == nil {
		if err := conn.renewReader(); err != nil {
			return 0, err
		}
	}
	n, err := conn.r.Read(data)
	if err == io.EOF {
		conn.r = nil
		if n > 0 {
			return n, nil
		}
		return conn.Read(data)
	}
	return n, err
}

func (conn *wsConn) renewReader() error {
	mt, r, err := conn.wsc.NextReader()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return io.EOF
		}
		return errors.Wrap(err, "wsConn: failed to get reader")
	}

	if mt != websocket.BinaryMessage {
		return errors.Errorf("wsConn: not binary message: %v", mt)
	}
	conn.r = r
	return nil
}

func (conn *wsConn) Write(data []byte) (int, error) {
	if err := conn.wsc.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return 0, errors.Wrap(err, "wsConn: failed to write message")
	}
	return len(data), nil
}

func (conn *wsConn) Close() error {
	return conn.wsc.Close()
}

func (conn *wsConn) LocalAddr() net.Addr  { return conn.wsc.LocalAddr() }
func (conn *wsConn) RemoteAddr() net.Addr { return conn.wsc.RemoteAddr() }

func (conn *wsConn) SetDeadline(t time.Time) error {
	if err := conn.wsc.SetReadDeadline(t); err != nil {
		return err
	}
	return conn.wsc.SetWriteDeadline(t)
}

func (conn *wsConn) SetReadDeadline(t time.Time) error  { return conn.wsc.SetReadDeadline(t) }
func (conn *wsConn) SetWriteDeadline(t time.Time) error { return conn.wsc.SetWriteDeadline(t) }

// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/pkg/errors"
	kitlog "go.mindeco.de/log"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/buffer"
)

// ErrIdle is the close reason of sessions that stayed quiet for too long.
var ErrIdle = errors.New("network: session idle")

// ErrBufferFull is returned when a peer sends more than the maximum buffer
// size without completing a frame.
var ErrBufferFull = errors.New("network: session buffer full")

const readChunk = 4096

var sessionIDs uint64

// Session runs one connection: it decodes what the peer sends, hands the
// frames to the EventHandler and encodes what is written to it.
type Session struct {
	id   uint64
	conn net.Conn

	fac   baseio.ProtocolFactory
	dec   baseio.ProtocolDecoder
	enc   baseio.ProtocolEncoder
	beats baseio.BeatFactory

	handler   baseio.EventHandler
	listeners []baseio.SessionListener
	log       kitlog.Logger
	evtCtr    metrics.Counter

	idle   time.Duration
	maxBuf int

	attrsMu sync.Mutex
	attrs   map[string]interface{}

	writeMu sync.Mutex
	wbuf    *buffer.ByteBuf

	bytesRead    uint64
	bytesWritten uint64
	started      time.Time

	closeOnce sync.Once
	closed    chan struct{}
	err       error
}

var _ baseio.Session = (*Session)(nil)

func (s *Server) newSession(conn net.Conn) *Session {
	sess := &Session{
		id:   atomic.AddUint64(&sessionIDs, 1),
		conn: conn,

		fac: s.fac,
		dec: s.fac.NewDecoder(),
		enc: s.fac.Encoder(),

		handler:   s.handler,
		listeners: s.listeners,
		evtCtr:    s.evtCtr,

		idle:   s.idle,
		maxBuf: s.maxBuf,

		attrs:   make(map[string]interface{}),
		wbuf:    buffer.New(readChunk),
		started: time.Now(),
		closed:  make(chan struct{}),
	}
	sess.log = kitlog.With(s.log, "session", sess.id, "remote", conn.RemoteAddr().String())
	if bf, ok := s.fac.(baseio.BeatFactory); ok {
		sess.beats = bf
	}
	return sess
}

func (sess *Session) ID() uint64           { return sess.id }
func (sess *Session) LocalAddr() net.Addr  { return sess.conn.LocalAddr() }
func (sess *Session) RemoteAddr() net.Addr { return sess.conn.RemoteAddr() }

// Protocol returns the name of the wire format the session speaks.
func (sess *Session) Protocol() string { return sess.fac.Name() }

func (sess *Session) Attribute(key string) (interface{}, bool) {
	sess.attrsMu.Lock()
	defer sess.attrsMu.Unlock()
	v, ok := sess.attrs[key]
	return v, ok
}

func (sess *Session) SetAttribute(key string, v interface{}) {
	sess.attrsMu.Lock()
	defer sess.attrsMu.Unlock()
	sess.attrs[key] = v
}

// Write encodes f and writes it to the connection. It is safe to call from
// several goroutines.
func (sess *Session) Write(f baseio.Frame) error {
	select {
	case <-sess.closed:
		return baseio.ErrSessionClosed
	default:
	}

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	sess.wbuf.Reset()
	if err := sess.enc.Encode(sess, f, sess.wbuf); err != nil {
		return errors.Wrapf(err, "session %d: failed to encode %s frame", sess.id, f.Protocol())
	}

	n, err := sess.wbuf.WriteTo(sess.conn)
	atomic.AddUint64(&sess.bytesWritten, uint64(n))
	if err != nil {
		return errors.Wrapf(err, "session %d: write failed", sess.id)
	}
	return nil
}

// BytesRead returns the number of bytes received so far.
func (sess *Session) BytesRead() uint64 { return atomic.LoadUint64(&sess.bytesRead) }

// BytesWritten returns the number of bytes sent so far.
func (sess *Session) BytesWritten() uint64 { return atomic.LoadUint64(&sess.bytesWritten) }

// Done is closed once the session is closed.
func (sess *Session) Done() <-chan struct{} { return sess.closed }

// Err returns the reason the session was closed with. It is nil while the
// session runs and after a clean shutdown.
func (sess *Session) Err() error {
	select {
	case <-sess.closed:
		return sess.err
	default:
		return nil
	}
}

func (sess *Session) Close() error {
	return sess.closeWith(nil)
}

func (sess *Session) closeWith(reason error) error {
	var err error
	sess.closeOnce.Do(func() {
		sess.err = reason
		close(sess.closed)
		err = sess.conn.Close()
	})
	return err
}

// serve reads from the connection until it fails, the peer goes away or ctx
// is cancelled. It notifies the session listeners and returns the close
// reason, which is nil if the peer hung up cleanly.
func (sess *Session) serve(ctx context.Context) error {
	for _, l := range sess.listeners {
		l.SessionOpened(sess)
	}

	go func() {
		select {
		case <-ctx.Done():
			sess.closeWith(ctx.Err())
		case <-sess.closed:
		}
	}()

	err := sess.readLoop()
	sess.closeWith(err)
	err = sess.Err()

	for _, l := range sess.listeners {
		l.SessionClosed(sess, err)
	}
	return err
}

func (sess *Session) readLoop() error {
	in := buffer.New(readChunk)
	pinged := false
	for {
		if sess.idle > 0 {
			sess.conn.SetReadDeadline(time.Now().Add(sess.idle))
		}

		n, err := in.ReadFrom(sess.conn)
		atomic.AddUint64(&sess.bytesRead, uint64(n))
		if err != nil && isTimeout(err) {
			if n == 0 {
				if sess.beats == nil || pinged {
					return ErrIdle
				}
				pinged = true
				if err := sess.Write(sess.beats.Ping()); err != nil {
					return errors.Wrap(err, "failed to send ping")
				}
				continue
			}
			err = nil
		}
		if err != nil {
			select {
			case <-sess.closed:
				return nil
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "read failed")
		}
		pinged = false

		if err := sess.drain(in); err != nil {
			return err
		}
		in.Compact()

		if in.Remaining() > sess.maxBuf {
			return errors.Wrapf(ErrBufferFull, "%d unread bytes", in.Remaining())
		}
	}
}

// drain decodes all complete frames in the buffer.
func (sess *Session) drain(in *buffer.ByteBuf) error {
	for in.HasRemaining() {
		f, complete, err := sess.dec.Decode(sess, in)
		if err != nil {
			if sess.evtCtr != nil {
				sess.evtCtr.With("event", "decode error").Add(1)
			}
			return baseio.ErrDecode{
				Protocol: sess.fac.Name(),
				Session:  sess.id,
				Err:      err,
			}
		}
		if !complete {
			return nil
		}

		if sess.beats != nil {
			reply, isBeat := sess.beats.Answer(f)
			if isBeat {
				if reply != nil {
					if err := sess.Write(reply); err != nil {
						return errors.Wrap(err, "failed to answer heartbeat")
					}
				}
				continue
			}
		}

		if sess.evtCtr != nil {
			sess.evtCtr.With("event", "frame").Add(1)
		}
		if err := sess.handler.Accept(sess, f); err != nil {
			level.Warn(sess.log).Log("event", "handler failed", "frame", f.Protocol(), "err", err)
			return errors.Wrap(err, "event handler failed")
		}
	}
	return nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

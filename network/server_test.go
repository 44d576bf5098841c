// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/codec/fixedlength"
	"github.com/ssbc/go-baseio/codec/http2"
	"github.com/ssbc/go-baseio/codec/redis"
	"github.com/ssbc/go-baseio/hpack"
	"github.com/ssbc/go-baseio/internal/testutils"
	"github.com/ssbc/go-baseio/network"
)

const waitFor = 5 * time.Second

type closeRecorder struct {
	opened chan uint64
	closed chan error
}

func newCloseRecorder() *closeRecorder {
	return &closeRecorder{
		opened: make(chan uint64, 16),
		closed: make(chan error, 16),
	}
}

func (cr *closeRecorder) SessionOpened(s baseio.Session)            { cr.opened <- s.ID() }
func (cr *closeRecorder) SessionClosed(s baseio.Session, err error) { cr.closed <- err }

func (cr *closeRecorder) waitClosed(t *testing.T) error {
	select {
	case err := <-cr.closed:
		return err
	case <-time.After(waitFor):
		t.Fatal("session was not closed")
		return nil
	}
}

// collect forwards every frame to the returned channel.
func collect() (baseio.EventHandler, <-chan baseio.Frame) {
	ch := make(chan baseio.Frame, 16)
	return baseio.EventHandlerFunc(func(_ baseio.Session, f baseio.Frame) error {
		ch <- f
		return nil
	}), ch
}

func nextFrame(t *testing.T, ch <-chan baseio.Frame) baseio.Frame {
	select {
	case f := <-ch:
		return f
	case <-time.After(waitFor):
		t.Fatal("no frame received")
		return nil
	}
}

func startServer(t *testing.T, opts ...network.Option) *network.Server {
	r := require.New(t)

	opts = append([]network.Option{
		network.WithListenAddr("127.0.0.1:0"),
		network.WithLogger(testutils.NewRelativeTimeLogger(nil)),
	}, opts...)
	srv, err := network.New(opts...)
	r.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-served:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Error("serve failed:", err)
			}
		case <-time.After(waitFor):
			t.Error("serve did not return")
		}
	})
	return srv
}

func TestFixedLengthEcho(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	echo := baseio.EventHandlerFunc(func(s baseio.Session, f baseio.Frame) error {
		fl, ok := f.(*fixedlength.Frame)
		if !ok {
			return errors.Errorf("unexpected frame %T", f)
		}
		return s.Write(fixedlength.NewText("echo: " + fl.Text()))
	})

	rec := newCloseRecorder()
	srv := startServer(t,
		network.WithProtocol(fixedlength.Factory{}),
		network.WithEventHandler(echo),
		network.WithSessionListener(rec),
	)

	h, frames := collect()
	client, err := network.Dial(ctx, srv.GetListenAddr().String(),
		network.WithProtocol(fixedlength.Factory{}),
		network.WithEventHandler(h),
		network.WithLogger(testutils.NewRelativeTimeLogger(nil)),
	)
	r.NoError(err)

	for _, msg := range []string{"hello", "", "world"} {
		r.NoError(client.Write(fixedlength.NewText(msg)))
		got := nextFrame(t, frames)
		r.Equal("echo: "+msg, got.(*fixedlength.Frame).Text())
	}

	r.Equal(uint(1), srv.GetConnTracker().Count())
	r.True(client.BytesWritten() > 0)
	r.True(client.BytesRead() > 0)
	r.Equal(fixedlength.Name, client.Protocol())

	r.NoError(client.Close())
	r.NoError(rec.waitClosed(t))
	r.Eventually(func() bool {
		return srv.GetConnTracker().Count() == 0
	}, waitFor, 10*time.Millisecond)

	r.Equal(baseio.ErrSessionClosed, client.Write(fixedlength.NewText("late")))
	<-client.Done()
	r.NoError(client.Err())
}

func TestFixedLengthPingIsAnswered(t *testing.T) {
	r := require.New(t)

	h, frames := collect()
	srv := startServer(t,
		network.WithProtocol(fixedlength.Factory{}),
		network.WithEventHandler(h),
	)

	conn, err := net.Dial("tcp", srv.GetListenAddr().String())
	r.NoError(err)
	defer conn.Close()

	_, err = conn.Write([]byte{0xff, 0xff, 0xff, 0xff})
	r.NoError(err)

	conn.SetReadDeadline(time.Now().Add(waitFor))
	var pong [4]byte
	_, err = io.ReadFull(conn, pong[:])
	r.NoError(err)
	r.Equal([]byte{0xff, 0xff, 0xff, 0xfe}, pong[:])

	// a regular frame after the beat reaches the handler, the beat didn't
	_, err = conn.Write([]byte{0, 0, 0, 2, 'h', 'i'})
	r.NoError(err)
	f := nextFrame(t, frames)
	r.Equal("hi", f.(*fixedlength.Frame).Text())
	r.Len(frames, 0)
}

func TestIdleSessionIsPingedThenClosed(t *testing.T) {
	r := require.New(t)

	rec := newCloseRecorder()
	srv := startServer(t,
		network.WithProtocol(fixedlength.Factory{}),
		network.WithIdleTimeout(50*time.Millisecond),
		network.WithSessionListener(rec),
	)

	conn, err := net.Dial("tcp", srv.GetListenAddr().String())
	r.NoError(err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(waitFor))
	var ping [4]byte
	_, err = io.ReadFull(conn, ping[:])
	r.NoError(err)
	r.Equal([]byte{0xff, 0xff, 0xff, 0xff}, ping[:])

	err = rec.waitClosed(t)
	r.True(errors.Is(err, network.ErrIdle), "got %v", err)

	_, err = conn.Read(ping[:])
	r.Equal(io.EOF, err)
}

func TestIdleSessionWithoutBeatsIsClosed(t *testing.T) {
	r := require.New(t)

	rec := newCloseRecorder()
	srv := startServer(t,
		network.WithProtocol(redis.Factory{}),
		network.WithIdleTimeout(50*time.Millisecond),
		network.WithSessionListener(rec),
	)

	conn, err := net.Dial("tcp", srv.GetListenAddr().String())
	r.NoError(err)
	defer conn.Close()

	err = rec.waitClosed(t)
	r.True(errors.Is(err, network.ErrIdle), "got %v", err)
}

func TestDecodeErrorClosesSession(t *testing.T) {
	r := require.New(t)

	rec := newCloseRecorder()
	srv := startServer(t,
		network.WithProtocol(fixedlength.Factory{MaxFrameLength: 4}),
		network.WithSessionListener(rec),
	)

	conn, err := net.Dial("tcp", srv.GetListenAddr().String())
	r.NoError(err)
	defer conn.Close()

	_, err = conn.Write([]byte{0, 0, 0, 10})
	r.NoError(err)

	err = rec.waitClosed(t)
	r.Error(err)
	var de baseio.ErrDecode
	r.True(errors.As(err, &de), "got %T", err)
	r.Equal(fixedlength.Name, de.Protocol)
	r.True(errors.Is(err, fixedlength.ErrFrameTooLarge))
}

func TestBufferLimit(t *testing.T) {
	r := require.New(t)

	rec := newCloseRecorder()
	srv := startServer(t,
		network.WithProtocol(redis.Factory{}),
		network.WithMaxBufferSize(16),
		network.WithSessionListener(rec),
	)

	conn, err := net.Dial("tcp", srv.GetListenAddr().String())
	r.NoError(err)
	defer conn.Close()

	// a bulk string that never completes
	_, err = conn.Write([]byte("$1000\r\n0123456789abcdef0123456789"))
	r.NoError(err)

	err = rec.waitClosed(t)
	r.True(errors.Is(err, network.ErrBufferFull), "got %v", err)
}

func TestRedisRequestReply(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	reply := baseio.EventHandlerFunc(func(s baseio.Session, f baseio.Frame) error {
		v := f.(redis.Value)
		if v.Type != redis.Array || len(v.Elems) == 0 {
			return s.Write(redis.Err("ERR expected a command"))
		}
		switch string(v.Elems[0].Str) {
		case "PING":
			return s.Write(redis.Status("PONG"))
		case "STRLEN":
			return s.Write(redis.Int(int64(len(v.Elems[1].Str))))
		}
		return s.Write(redis.Err("ERR unknown command"))
	})

	srv := startServer(t,
		network.WithProtocol(redis.Factory{}),
		network.WithEventHandler(reply),
	)

	h, frames := collect()
	client, err := network.Dial(ctx, srv.GetListenAddr().String(),
		network.WithProtocol(redis.Factory{}),
		network.WithEventHandler(h),
	)
	r.NoError(err)
	defer client.Close()

	type testCase struct {
		cmd  redis.Value
		want redis.Value
	}
	tcs := []testCase{
		{redis.Command("PING"), redis.Status("PONG")},
		{redis.Command("STRLEN", "hello"), redis.Int(5)},
		{redis.Command("FLUSHALL"), redis.Err("ERR unknown command")},
	}
	for _, tc := range tcs {
		r.NoError(client.Write(tc.cmd))
		got := nextFrame(t, frames).(redis.Value)
		assert.Equal(t, tc.want.String(), got.String(), "reply to %s", tc.cmd)
	}
}

func TestHTTP2HeadersOverTCP(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	h, frames := collect()
	srv := startServer(t,
		network.WithProtocol(http2.Factory{}),
		network.WithEventHandler(h),
	)

	client, err := network.Dial(ctx, srv.GetListenAddr().String(),
		network.WithProtocol(http2.Factory{Client: true}),
	)
	r.NoError(err)
	defer client.Close()

	fields := []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "http"},
		{Name: ":path", Value: "/"},
		{Name: ":authority", Value: "www.example.com"},
	}

	r.NoError(client.Write(http2.Preface{}))
	r.NoError(client.Write(http2.SettingsFrame(http2.Setting{ID: http2.SettingMaxFrameSize, Val: 16384})))
	r.NoError(client.Write(http2.HeadersFrame(1, true, fields...)))
	r.NoError(client.Write(http2.HeadersFrame(3, true, fields...)))

	_, ok := nextFrame(t, frames).(http2.Preface)
	r.True(ok, "expected the preface first")

	settings := nextFrame(t, frames).(*http2.Frame)
	ss, err := settings.Settings()
	r.NoError(err)
	r.Equal([]http2.Setting{{ID: http2.SettingMaxFrameSize, Val: 16384}}, ss)

	for _, stream := range []uint32{1, 3} {
		hdrs := nextFrame(t, frames).(*http2.Frame)
		r.Equal(http2.FrameHeaders, hdrs.Type)
		r.Equal(stream, hdrs.StreamID)
		r.True(hdrs.Flags.Has(http2.FlagHeadersEndStream))
		r.Equal(fields, hdrs.Fields)
	}
}

func TestWebsocketEcho(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	echo := baseio.EventHandlerFunc(func(s baseio.Session, f baseio.Frame) error {
		return s.Write(f)
	})

	srv := startServer(t,
		network.WithProtocol(fixedlength.Factory{}),
		network.WithWebsocketAddr("127.0.0.1:0"),
		network.WithEventHandler(echo),
	)
	r.NotNil(srv.WebsocketAddr())

	h, frames := collect()
	client, err := network.DialWebsocket(ctx, "ws://"+srv.WebsocketAddr().String()+"/",
		network.WithProtocol(fixedlength.Factory{}),
		network.WithEventHandler(h),
	)
	r.NoError(err)
	defer client.Close()

	r.NoError(client.Write(fixedlength.NewText("over websocket")))
	got := nextFrame(t, frames)
	r.Equal("over websocket", got.(*fixedlength.Frame).Text())
	r.Equal(uint(1), srv.GetConnTracker().Count())
}

func TestMaxConns(t *testing.T) {
	r := require.New(t)

	srv := startServer(t,
		network.WithProtocol(fixedlength.Factory{}),
		network.WithMaxConns(1),
	)

	first, err := net.Dial("tcp", srv.GetListenAddr().String())
	r.NoError(err)
	defer first.Close()

	r.Eventually(func() bool {
		return srv.GetConnTracker().Count() == 1
	}, waitFor, 10*time.Millisecond)

	second, err := net.Dial("tcp", srv.GetListenAddr().String())
	r.NoError(err)
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(waitFor))
	var buf [1]byte
	_, err = second.Read(buf[:])
	r.Equal(io.EOF, err)
	r.True(srv.GetConnTracker().Active(first.LocalAddr()))
}

func TestCloseEndsServe(t *testing.T) {
	r := require.New(t)

	srv, err := network.New(
		network.WithListenAddr("127.0.0.1:0"),
		network.WithProtocol(fixedlength.Factory{}),
		network.WithLogger(testutils.NewRelativeTimeLogger(nil)),
	)
	r.NoError(err)

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(context.Background())
	}()

	conn, err := net.Dial("tcp", srv.GetListenAddr().String())
	r.NoError(err)
	defer conn.Close()
	r.Eventually(func() bool {
		return srv.GetConnTracker().Count() == 1
	}, waitFor, 10*time.Millisecond)

	r.NoError(srv.Close())
	select {
	case err := <-served:
		r.NoError(err)
	case <-time.After(waitFor):
		t.Fatal("serve did not return")
	}
	r.Equal(uint(0), srv.GetConnTracker().Count())
}

func TestNewErrors(t *testing.T) {
	type testCase struct {
		name string
		opts []network.Option
	}
	tcs := []testCase{
		{"no protocol", nil},
		{"nil protocol", []network.Option{network.WithProtocol(nil)}},
		{"empty addr", []network.Option{network.WithProtocol(redis.Factory{}), network.WithListenAddr("")}},
		{"negative idle", []network.Option{network.WithProtocol(redis.Factory{}), network.WithIdleTimeout(-time.Second)}},
	}
	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := network.New(tc.opts...)
			require.Error(t, err)
		})
	}
}

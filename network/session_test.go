// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/codec/fixedlength"
	"github.com/ssbc/go-baseio/internal/testutils"
)

func pipeSession(t *testing.T, opts ...Option) (*Session, net.Conn) {
	s := &Server{}
	opts = append([]Option{
		WithProtocol(fixedlength.Factory{}),
		WithLogger(testutils.NewRelativeTimeLogger(nil)),
	}, opts...)
	require.NoError(t, s.applyOptions(opts))

	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return s.newSession(a), b
}

func TestSessionAttributes(t *testing.T) {
	r := require.New(t)

	sess, _ := pipeSession(t)
	other, _ := pipeSession(t)
	r.NotEqual(sess.ID(), other.ID())

	_, has := sess.Attribute("k")
	r.False(has)

	sess.SetAttribute("k", 23)
	v, has := sess.Attribute("k")
	r.True(has)
	r.Equal(23, v)

	_, has = other.Attribute("k")
	r.False(has, "attributes are per session")
}

func TestSessionWrite(t *testing.T) {
	r := require.New(t)

	sess, peer := pipeSession(t)

	written := make(chan error, 1)
	go func() {
		written <- sess.Write(fixedlength.NewText("hi"))
	}()

	var got [6]byte
	_, err := io.ReadFull(peer, got[:])
	r.NoError(err)
	r.Equal([]byte{0, 0, 0, 2, 'h', 'i'}, got[:])
	r.NoError(<-written)
	r.Equal(uint64(6), sess.BytesWritten())

	r.NoError(sess.Close())
	r.Equal(baseio.ErrSessionClosed, sess.Write(fixedlength.NewText("late")))
}

func TestSessionWriteEncodeError(t *testing.T) {
	r := require.New(t)

	sess, _ := pipeSession(t)
	err := sess.Write(wrongFrame{})
	r.Error(err)
	var wf baseio.ErrWrongFrame
	r.True(errors.As(err, &wf), "got %v", err)
	r.Equal(uint64(0), sess.BytesWritten())
}

type wrongFrame struct{}

func (wrongFrame) Protocol() string { return "wrong" }

type recordingListener struct {
	opened chan uint64
	closed chan error
}

func (rl recordingListener) SessionOpened(s baseio.Session)            { rl.opened <- s.ID() }
func (rl recordingListener) SessionClosed(_ baseio.Session, err error) { rl.closed <- err }

func TestSessionServe(t *testing.T) {
	r := require.New(t)

	frames := make(chan baseio.Frame, 4)
	h := baseio.EventHandlerFunc(func(_ baseio.Session, f baseio.Frame) error {
		frames <- f
		return nil
	})
	rl := recordingListener{
		opened: make(chan uint64, 1),
		closed: make(chan error, 1),
	}
	sess, peer := pipeSession(t, WithEventHandler(h), WithSessionListener(rl))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() {
		served <- sess.serve(ctx)
	}()
	r.Equal(sess.ID(), <-rl.opened)

	// two frames, the second split over two writes
	_, err := peer.Write([]byte{0, 0, 0, 1, 'a', 0, 0})
	r.NoError(err)
	_, err = peer.Write([]byte{0, 2, 'b', 'c'})
	r.NoError(err)

	r.Equal("a", (<-frames).(*fixedlength.Frame).Text())
	r.Equal("bc", (<-frames).(*fixedlength.Frame).Text())
	r.Equal(uint64(11), sess.BytesRead())

	// beats are answered by the session
	_, err = peer.Write([]byte{0xff, 0xff, 0xff, 0xff})
	r.NoError(err)
	var pong [4]byte
	_, err = io.ReadFull(peer, pong[:])
	r.NoError(err)
	r.Equal([]byte{0xff, 0xff, 0xff, 0xfe}, pong[:])
	r.Len(frames, 0)

	cancel()
	select {
	case err := <-served:
		r.True(errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("serve did not return")
	}
	r.True(errors.Is(<-rl.closed, context.Canceled))
	r.True(errors.Is(sess.Err(), context.Canceled))
}

func TestSessionHandlerErrorCloses(t *testing.T) {
	r := require.New(t)

	errNope := errors.New("nope")
	h := baseio.EventHandlerFunc(func(baseio.Session, baseio.Frame) error {
		return errNope
	})
	sess, peer := pipeSession(t, WithEventHandler(h))

	served := make(chan error, 1)
	go func() {
		served <- sess.serve(context.Background())
	}()

	_, err := peer.Write([]byte{0, 0, 0, 0})
	r.NoError(err)

	select {
	case err := <-served:
		r.True(errors.Is(err, errNope), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("serve did not return")
	}
	<-sess.Done()
}

func TestConnAcceptedDuringClose(t *testing.T) {
	r := require.New(t)

	rl := recordingListener{
		opened: make(chan uint64, 1),
		closed: make(chan error, 1),
	}
	s := &Server{closing: make(chan struct{})}
	r.NoError(s.applyOptions([]Option{
		WithProtocol(fixedlength.Factory{}),
		WithLogger(testutils.NewRelativeTimeLogger(nil)),
		WithSessionListener(rl),
	}))

	// the listener was closed and CloseAll already ran
	close(s.closing)

	a, b := net.Pipe()
	defer b.Close()

	done := make(chan struct{})
	go func() {
		s.handleConnection(context.Background(), a)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection was not dropped")
	}

	r.Equal(uint(0), s.connTracker.Count())
	r.Len(rl.opened, 0, "no session for a dropped connection")

	b.SetReadDeadline(time.Now().Add(time.Second))
	_, err := b.Read(make([]byte, 1))
	r.True(errors.Is(err, io.EOF), "got %v", err)
}

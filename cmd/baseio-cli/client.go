// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/internal/multiserver"
	"github.com/ssbc/go-baseio/network"
)

// client is a session whose incoming frames are queued for the command that
// opened it.
type client struct {
	sess   *network.Session
	frames chan baseio.Frame
}

func newClient(ctx *cli.Context, fac baseio.ProtocolFactory) (*client, error) {
	cl := &client{frames: make(chan baseio.Frame, 16)}

	verbose := ctx.Bool("verbose")
	handler := baseio.EventHandlerFunc(func(_ baseio.Session, f baseio.Frame) error {
		if verbose {
			spew.Fdump(os.Stderr, f)
		}
		select {
		case cl.frames <- f:
			return nil
		case <-longctx.Done():
			return longctx.Err()
		}
	})

	opts := []network.Option{
		network.WithLogger(log),
		network.WithProtocol(fac),
		network.WithEventHandler(handler),
	}

	addr, err := multiserver.ParseAddress(remoteAddr)
	if err != nil {
		return nil, err
	}
	switch addr.Transport {
	case multiserver.TransportWS:
		cl.sess, err = network.DialWebsocket(longctx, addr.Addr, opts...)
	default:
		cl.sess, err = network.Dial(longctx, addr.Addr, opts...)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "init: failed to connect to %s", addr)
	}
	level.Debug(log).Log("init", "done", "addr", addr, "protocol", fac.Name())
	return cl, nil
}

// next returns the next frame the server sent.
func (cl *client) next(ctx context.Context) (baseio.Frame, error) {
	select {
	case f := <-cl.frames:
		return f, nil
	default:
	}

	select {
	case f := <-cl.frames:
		return f, nil
	case <-cl.sess.Done():
		if err := cl.sess.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("connection closed by server")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// roundTrip writes f and waits for the next frame.
func (cl *client) roundTrip(ctx context.Context, f baseio.Frame) (baseio.Frame, error) {
	if err := cl.sess.Write(f); err != nil {
		return nil, err
	}
	return cl.next(ctx)
}

func (cl *client) Close() error {
	return cl.sess.Close()
}

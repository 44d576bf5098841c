// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/codec/fixedlength"
	"github.com/ssbc/go-baseio/codec/http2"
	"github.com/ssbc/go-baseio/codec/redis"
	"github.com/ssbc/go-baseio/hpack"
)

var sendCmd = &cli.Command{
	Name:      "send",
	Usage:     "send a fixed length text frame and print the reply",
	ArgsUsage: "<text>",
	Action: func(ctx *cli.Context) error {
		cl, err := newClient(ctx, fixedlength.Factory{})
		if err != nil {
			return err
		}
		defer cl.Close()

		text := strings.Join(ctx.Args().Slice(), " ")
		reply, err := cl.roundTrip(longctx, fixedlength.NewText(text))
		if err != nil {
			return errors.Wrap(err, "send: no reply")
		}
		fl, ok := reply.(*fixedlength.Frame)
		if !ok {
			return errors.Errorf("send: unexpected reply %T", reply)
		}
		return output(ctx, map[string]string{"sent": text, "reply": fl.Text()}, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, fl.Text())
			return err
		})
	},
}

var redisCmd = &cli.Command{
	Name:      "redis",
	Usage:     "send a command to a RESP server and print the reply",
	ArgsUsage: "<command> [args...]",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() == 0 {
			return errors.New("redis: expected a command")
		}
		cl, err := newClient(ctx, redis.Factory{})
		if err != nil {
			return err
		}
		defer cl.Close()

		reply, err := cl.roundTrip(longctx, redis.Command(ctx.Args().Slice()...))
		if err != nil {
			return errors.Wrap(err, "redis: no reply")
		}
		v, ok := reply.(redis.Value)
		if !ok {
			return errors.Errorf("redis: unexpected reply %T", reply)
		}
		return output(ctx, map[string]string{"type": v.Type.String(), "reply": v.String()}, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, v.String())
			return err
		})
	},
}

var getCmd = &cli.Command{
	Name:      "get",
	Usage:     "send an HTTP/2 GET request and print the response headers",
	ArgsUsage: "<path>",
	Action: func(ctx *cli.Context) error {
		path := ctx.Args().First()
		if path == "" {
			path = "/"
		}

		cl, err := newClient(ctx, http2.Factory{Client: true})
		if err != nil {
			return err
		}
		defer cl.Close()

		const stream = 1
		for _, f := range []baseio.Frame{
			http2.Preface{},
			http2.SettingsFrame(),
			http2.HeadersFrame(stream, true,
				hpack.HeaderField{Name: ":method", Value: "GET"},
				hpack.HeaderField{Name: ":scheme", Value: "http"},
				hpack.HeaderField{Name: ":authority", Value: remoteAddr},
				hpack.HeaderField{Name: ":path", Value: path},
			),
		} {
			if err := cl.sess.Write(f); err != nil {
				return errors.Wrap(err, "get: write failed")
			}
		}

		for {
			f, err := cl.next(longctx)
			if err != nil {
				return errors.Wrap(err, "get: no response")
			}
			h2, ok := f.(*http2.Frame)
			if !ok {
				continue
			}
			if h2.Type == http2.FrameSettings && !h2.Flags.Has(http2.FlagSettingsAck) {
				ack := http2.SettingsFrame()
				ack.Flags = http2.FlagSettingsAck
				if err := cl.sess.Write(ack); err != nil {
					return errors.Wrap(err, "get: failed to ack settings")
				}
				continue
			}
			if h2.Type != http2.FrameHeaders || h2.StreamID != stream {
				continue
			}
			return output(ctx, h2.Fields, func(w io.Writer) error {
				for _, hf := range h2.Fields {
					if _, err := fmt.Fprintf(w, "%s: %s\n", hf.Name, hf.Value); err != nil {
						return err
					}
				}
				return nil
			})
		}
	},
}

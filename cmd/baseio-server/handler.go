// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	kitlog "go.mindeco.de/log"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/codec/fixedlength"
	"github.com/ssbc/go-baseio/codec/http2"
	"github.com/ssbc/go-baseio/codec/redis"
	"github.com/ssbc/go-baseio/hpack"
)

// replyHandler answers every frame with something the matching client
// understands. With echo set it sends fixed length and redis frames back
// unchanged.
type replyHandler struct {
	log  kitlog.Logger
	echo bool
}

func (h replyHandler) Accept(s baseio.Session, f baseio.Frame) error {
	switch v := f.(type) {
	case *fixedlength.Frame:
		return h.fixedLength(s, v)
	case redis.Value:
		return h.redis(s, v)
	case http2.Preface:
		level.Debug(h.log).Log("event", "http2 preface", "session", s.ID())
		return s.Write(http2.SettingsFrame(
			http2.Setting{ID: http2.SettingMaxConcurrentStreams, Val: 100},
		))
	case *http2.Frame:
		return h.http2(s, v)
	}
	return errors.Errorf("baseio-server: unhandled frame %T", f)
}

func (h replyHandler) fixedLength(s baseio.Session, f *fixedlength.Frame) error {
	if h.echo {
		return s.Write(f)
	}
	level.Debug(h.log).Log("event", "text", "session", s.ID(), "text", f.Text())
	return s.Write(fixedlength.NewText("yes server already accept your message: " + f.Text()))
}

func (h replyHandler) redis(s baseio.Session, v redis.Value) error {
	if h.echo {
		return s.Write(v)
	}
	if v.Type != redis.Array || len(v.Elems) == 0 {
		return s.Write(redis.Err("ERR expected a command array"))
	}

	cmd := strings.ToUpper(string(v.Elems[0].Str))
	args := v.Elems[1:]
	switch cmd {
	case "PING":
		if len(args) > 0 {
			return s.Write(redis.Value{Type: redis.BulkString, Str: args[0].Str})
		}
		return s.Write(redis.Status("PONG"))
	case "ECHO":
		if len(args) != 1 {
			return s.Write(redis.Err("ERR wrong number of arguments for 'echo' command"))
		}
		return s.Write(redis.Value{Type: redis.BulkString, Str: args[0].Str})
	case "QUIT":
		if err := s.Write(redis.Status("OK")); err != nil {
			return err
		}
		return s.Close()
	}
	return s.Write(redis.Err(fmt.Sprintf("ERR unknown command '%s'", bytes.ToLower(v.Elems[0].Str))))
}

func (h replyHandler) http2(s baseio.Session, f *http2.Frame) error {
	switch f.Type {
	case http2.FrameSettings:
		if f.Flags.Has(http2.FlagSettingsAck) {
			return nil
		}
		ack := http2.SettingsFrame()
		ack.Flags = http2.FlagSettingsAck
		return s.Write(ack)

	case http2.FrameHeaders:
		var path string
		for _, hf := range f.Fields {
			if hf.Name == ":path" {
				path = hf.Value
			}
		}
		level.Debug(h.log).Log("event", "http2 request", "session", s.ID(), "stream", f.StreamID, "path", path)
		return s.Write(http2.HeadersFrame(f.StreamID, true,
			hpack.HeaderField{Name: ":status", Value: "200"},
			hpack.HeaderField{Name: "server", Value: "baseio"},
		))
	}
	level.Debug(h.log).Log("event", "http2 frame ignored", "session", s.ID(), "frame", f)
	return nil
}

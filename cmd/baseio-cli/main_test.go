// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	kitlog "github.com/go-kit/kit/log"
	jsoniter "github.com/json-iterator/go"
	"github.com/kylelemons/godebug/diff"
	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/codec/fixedlength"
	"github.com/ssbc/go-baseio/codec/http2"
	"github.com/ssbc/go-baseio/codec/redis"
	"github.com/ssbc/go-baseio/graph"
	"github.com/ssbc/go-baseio/hpack"
	"github.com/ssbc/go-baseio/network"
)

// run executes the app with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	var buf bytes.Buffer
	app.Writer = &buf
	app.ErrWriter = &buf

	full := append([]string{"baseio-cli", "--config", filepath.Join(t.TempDir(), "baseio.toml")}, args...)
	err := app.Run(full)
	if shutdownFunc != nil {
		shutdownFunc()
	}
	return buf.String(), err
}

func startServer(t *testing.T, fac baseio.ProtocolFactory, h baseio.EventHandler) string {
	return startServerWith(t, fac, h).GetListenAddr().String()
}

func startServerWith(t *testing.T, fac baseio.ProtocolFactory, h baseio.EventHandler, opts ...network.Option) *network.Server {
	opts = append([]network.Option{
		network.WithListenAddr("localhost:0"),
		network.WithProtocol(fac),
		network.WithEventHandler(h),
		network.WithLogger(kitlog.NewNopLogger()),
	}, opts...)
	srv, err := network.New(opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-served
	})
	return srv
}

func TestHuffmanCommands(t *testing.T) {
	r := require.New(t)

	out, err := run(t, "huffman", "encode", "www.example.com")
	r.NoError(err)
	r.Equal("f1e3c2e5f23a6ba0ab90f4ff\n", out)

	out, err = run(t, "huffman", "decode", "f1e3c2e5f23a6ba0ab90f4ff")
	r.NoError(err)
	r.Equal("www.example.com\n", out)

	out, err = run(t, "--json", "huffman", "decode", "a8eb 1064 9cbf")
	r.NoError(err)
	var res huffmanResult
	r.NoError(jsoniter.UnmarshalFromString(out, &res))
	r.Equal("no-cache", res.Text)
	r.Equal("a8eb10649cbf", res.Hex)

	_, err = run(t, "huffman", "decode", "ffffffff")
	r.Error(err)

	_, err = run(t, "huffman", "decode", "zz")
	r.Error(err)
}

func TestHpackCommand(t *testing.T) {
	r := require.New(t)

	// RFC 7541 C.4.1
	out, err := run(t, "hpack", "828684418cf1e3c2e5f23a6ba0ab90f4ff")
	r.NoError(err)

	want := ":method: GET\n:scheme: http\n:path: /\n:authority: www.example.com\n"
	if d := diff.Diff(want, out); d != "" {
		t.Errorf("header list differs:\n%s", d)
	}

	_, err = run(t, "hpack")
	r.Error(err)
}

func TestTreeCommand(t *testing.T) {
	r := require.New(t)

	tr, err := graph.FromTree(hpack.DefaultTree())
	r.NoError(err)

	out, err := run(t, "tree")
	r.NoError(err)
	want := fmt.Sprintf("nodes: %d\nedges: %d\ndepth: 4\n", hpack.DefaultTree().NodeCount(), tr.Edges())
	if d := diff.Diff(want, out); d != "" {
		t.Errorf("stats differ:\n%s", d)
	}

	out, err = run(t, "tree", "--lookup", "18")
	r.NoError(err)
	r.Equal("a/5\n", out)

	out, err = run(t, "--json", "tree", "--lookup", "fffffffc")
	r.NoError(err)
	var res map[string]string
	r.NoError(jsoniter.UnmarshalFromString(out, &res))
	r.Equal("EOS/6", res["terminal"])

	out, err = run(t, "tree", "--dot")
	r.NoError(err)
	r.True(strings.HasPrefix(out, "strict digraph hpack {"))

	_, err = run(t, "tree", "--lookup", "ff")
	r.Error(err, "one byte does not reach a terminal for 0xff")
}

func TestSendCommand(t *testing.T) {
	r := require.New(t)

	addr := startServer(t, fixedlength.Factory{}, baseio.EventHandlerFunc(func(s baseio.Session, f baseio.Frame) error {
		return s.Write(fixedlength.NewText("re: " + f.(*fixedlength.Frame).Text()))
	}))

	out, err := run(t, "--addr", addr, "send", "hello", "server", "!")
	r.NoError(err)
	r.Equal("re: hello server !\n", out)

	out, err = run(t, "--addr", "unix:/tmp/nope.sock;net:"+addr, "send", "second")
	r.NoError(err)
	r.Equal("re: second\n", out)

	_, err = run(t, "--addr", "unix:/tmp/nope.sock", "send", "nowhere")
	r.Error(err)
}

func TestSendOverWebsocket(t *testing.T) {
	r := require.New(t)

	srv := startServerWith(t, fixedlength.Factory{}, baseio.EventHandlerFunc(func(s baseio.Session, f baseio.Frame) error {
		return s.Write(f)
	}), network.WithWebsocketAddr("localhost:0"))

	out, err := run(t, "--addr", "ws://"+srv.WebsocketAddr().String()+"/", "send", "over", "ws")
	r.NoError(err)
	r.Equal("over ws\n", out)
}

func TestRedisCommand(t *testing.T) {
	r := require.New(t)

	addr := startServer(t, redis.Factory{}, baseio.EventHandlerFunc(func(s baseio.Session, f baseio.Frame) error {
		cmd := f.(redis.Value)
		if strings.EqualFold(string(cmd.Elems[0].Str), "ping") {
			return s.Write(redis.Status("PONG"))
		}
		return s.Write(redis.Err("ERR unknown command"))
	}))

	out, err := run(t, "--addr", addr, "redis", "PING")
	r.NoError(err)
	r.Equal("\"PONG\"\n", out)

	out, err = run(t, "--addr", addr, "redis", "GET", "k")
	r.NoError(err)
	r.Equal("(error) ERR unknown command\n", out)

	_, err = run(t, "--addr", addr, "redis")
	r.Error(err)
}

func TestGetCommand(t *testing.T) {
	r := require.New(t)

	addr := startServer(t, http2.Factory{}, baseio.EventHandlerFunc(func(s baseio.Session, f baseio.Frame) error {
		switch v := f.(type) {
		case http2.Preface:
			return s.Write(http2.SettingsFrame())
		case *http2.Frame:
			if v.Type != http2.FrameHeaders {
				return nil
			}
			var path string
			for _, hf := range v.Fields {
				if hf.Name == ":path" {
					path = hf.Value
				}
			}
			return s.Write(http2.HeadersFrame(v.StreamID, true,
				hpack.HeaderField{Name: ":status", Value: "200"},
				hpack.HeaderField{Name: "x-path", Value: path},
			))
		}
		return nil
	}))

	out, err := run(t, "--addr", addr, "get", "/index.html")
	r.NoError(err)
	r.Equal(":status: 200\nx-path: /index.html\n", out)
}

func TestBenchCommand(t *testing.T) {
	echo := baseio.EventHandlerFunc(func(s baseio.Session, f baseio.Frame) error {
		if v, ok := f.(redis.Value); ok {
			return s.Write(v.Elems[1])
		}
		return s.Write(f)
	})

	type tcase struct {
		protocol string
		fac      baseio.ProtocolFactory
	}
	for _, tc := range []tcase{
		{fixedlength.Name, fixedlength.Factory{}},
		{redis.Name, redis.Factory{}},
	} {
		tc := tc
		t.Run(tc.protocol, func(t *testing.T) {
			r := require.New(t)
			addr := startServer(t, tc.fac, echo)

			out, err := run(t, "--json", "--addr", addr, "--protocol", tc.protocol, "bench", "--n", "20", "--size", "16")
			r.NoError(err)

			var res benchResult
			r.NoError(jsoniter.UnmarshalFromString(out, &res))
			r.Equal(tc.protocol, res.Protocol)
			r.Equal(20, res.Count)
			r.NotZero(res.Written)
			r.NotZero(res.Read)
		})
	}

	_, err := run(t, "--protocol", "http2", "bench")
	require.Error(t, err)
}

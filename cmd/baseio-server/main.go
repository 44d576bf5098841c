// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// baseio-server accepts connections for one of the built in wire formats and
// answers what its clients send.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	kitlog "go.mindeco.de/log"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/codec/fixedlength"
	"github.com/ssbc/go-baseio/codec/http2"
	"github.com/ssbc/go-baseio/codec/redis"
	config "github.com/ssbc/go-baseio/internal/config-reader"
	"github.com/ssbc/go-baseio/network"
)

var (
	configPath string

	protocol    string
	listenAddr  string
	wsLisAddr   string
	debugAddr   string
	reusePort   bool
	echo        bool
	idleTimeout time.Duration
	maxConns    uint
	maxBuf      uint
	maxFrame    uint
	headerTable uint

	log kitlog.Logger

	// juicy bits
	Version = "snapshot"
	Build   = ""
)

func checkAndLog(err error) {
	if err != nil {
		level.Error(log).Log("event", "error", "err", err)
		fmt.Fprintf(os.Stderr, "Stack: %+v\n", err)
	}
}

func checkFatal(err error) {
	if err != nil {
		checkAndLog(err)
		os.Exit(1)
	}
}

func initFlags() {
	flag.StringVar(&configPath, "config", "baseio.toml", "path to the TOML config file")

	flag.StringVar(&protocol, "protocol", fixedlength.Name, "wire format to speak (fixedlength, redis or http2)")
	flag.StringVar(&listenAddr, "lis", fmt.Sprintf(":%d", network.DefaultPort), "address to listen on")
	flag.StringVar(&wsLisAddr, "wslis", "", "address to accept websocket connections on")
	flag.StringVar(&debugAddr, "debuglis", "", "address to serve prometheus metrics on")
	flag.BoolVar(&reusePort, "reuseport", false, "set SO_REUSEPORT on the listener")
	flag.BoolVar(&echo, "echo", false, "send fixedlength and redis frames back unchanged")
	flag.DurationVar(&idleTimeout, "idle", 0, "ping (or close) sessions after this long without input")
	flag.UintVar(&maxConns, "maxconns", 0, "maximum number of concurrent connections (0 is unlimited)")
	flag.UintVar(&maxBuf, "maxbuf", network.DefaultMaxBufferSize, "maximum unread bytes per session")
	flag.UintVar(&maxFrame, "maxframe", 0, "maximum frame size (0 uses the protocol default)")
	flag.UintVar(&headerTable, "headertable", 0, "HPACK dynamic table size for http2 (0 uses the default)")

	flag.Parse()
}

// applyConfig copies the values of conf into the flag variables, unless the
// flag was passed on the command line.
func applyConfig(conf config.ServerConfig) error {
	visited := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { visited[f.Name] = true })

	use := func(name string) bool { return !visited[name] && conf.Has(name) }

	if use("protocol") {
		protocol = conf.Protocol
	}
	if use("lis") {
		listenAddr = conf.ListenAddress
	}
	if use("wslis") {
		wsLisAddr = conf.WebsocketAddress
	}
	if use("debuglis") {
		debugAddr = conf.MetricsAddress
	}
	if use("reuseport") {
		reusePort = bool(conf.ReusePort)
	}
	if use("echo") {
		echo = bool(conf.Echo)
	}
	if use("idle") {
		d, err := conf.Idle()
		if err != nil {
			return err
		}
		idleTimeout = d
	}
	if use("maxconns") {
		maxConns = conf.MaxConns
	}
	if use("maxbuf") {
		maxBuf = conf.MaxBufferSize
	}
	if use("maxframe") {
		maxFrame = conf.MaxFrameSize
	}
	if use("headertable") {
		headerTable = conf.HeaderTableSize
	}
	return nil
}

func newRegistry() baseio.ProtocolRegistry {
	return baseio.NewProtocolRegistry(
		fixedlength.Factory{MaxFrameLength: int(maxFrame)},
		redis.Factory{},
		http2.Factory{
			MaxFrameSize:    uint32(maxFrame),
			HeaderTableSize: uint32(headerTable),
		},
	)
}

func main() {
	initFlags()

	log = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	log = kitlog.With(log, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)

	conf, err := config.ReadConfigAndEnv(log, afero.NewOsFs(), configPath)
	checkFatal(err)
	checkFatal(applyConfig(conf))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		level.Warn(log).Log("event", "killed", "msg", "received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	fac, err := newRegistry().Lookup(protocol)
	checkFatal(err)

	startDebug()

	var handler baseio.EventHandler = replyHandler{log: log, echo: echo}
	if latencySummary != nil {
		handler = HandlerWithLatency(latencySummary)(handler)
	}

	opts := []network.Option{
		network.WithLogger(log),
		network.WithProtocol(fac),
		network.WithListenAddr(listenAddr),
		network.WithWebsocketAddr(wsLisAddr),
		network.WithReusePort(reusePort),
		network.WithEventHandler(handler),
		network.WithSessionListener(network.NewLoggerListener(log)),
		network.WithIdleTimeout(idleTimeout),
		network.WithMaxBufferSize(int(maxBuf)),
		network.WithMaxConns(maxConns),
	}
	if SystemEvents != nil {
		opts = append(opts, network.WithMetrics(SystemEvents, SystemStats, ConnDurrs))
	}

	srv, err := network.New(opts...)
	checkFatal(err)

	level.Info(log).Log("event", "serving",
		"protocol", fac.Name(),
		"addr", srv.GetListenAddr().String(),
		"version", Version, "build", Build)

	err = srv.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		checkFatal(err)
	}
	level.Info(log).Log("event", "shutdown", "conns", srv.GetConnTracker().Count())
}

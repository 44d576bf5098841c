// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// baseio-cli talks to baseio servers and pokes at the HPACK Huffman code.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/log/term"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	config "github.com/ssbc/go-baseio/internal/config-reader"
	"github.com/ssbc/go-baseio/network"
)

// Version and Build are set by ldflags
var (
	Version = "snapshot"
	Build   = ""
)

var (
	longctx      context.Context
	shutdownFunc func()

	log kitlog.Logger

	// resolved from flags and the config file in initClient
	remoteAddr   string
	protocolName string
)

func init() {
	log = term.NewColorLogger(os.Stderr, kitlog.NewLogfmtLogger, colorFn)
}

var app = cli.App{
	Name:    "baseio-cli",
	Usage:   "client for baseio servers and HPACK debugging",
	Version: "alpha1",

	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Value: "baseio.toml", Usage: "TOML file with a [baseio-cli] section"},
		&cli.StringFlag{Name: "addr", Value: fmt.Sprintf("localhost:%d", network.DefaultPort), Usage: "address of the server: host:port, net:host:port or a ws:// url, several separated by ;"},
		&cli.StringFlag{Name: "protocol", Value: "fixedlength", Usage: "wire format for bench"},
		&cli.StringFlag{Name: "timeout", Value: "45s", Usage: "pass a durration (like 3s or 5m) after which it times out, empty string to disable"},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"vv"}, Usage: "dump every received frame"},
		&cli.BoolFlag{Name: "json", Usage: "print results as JSON"},
	},

	Before: initClient,
	Commands: []*cli.Command{
		huffmanCmd,
		hpackCmd,
		treeCmd,
		sendCmd,
		redisCmd,
		getCmd,
		benchCmd,
	},
}

// Color by error type
func colorFn(keyvals ...interface{}) term.FgBgColor {
	for i := 1; i < len(keyvals); i += 2 {
		if _, ok := keyvals[i].(error); ok {
			return term.FgBgColor{Fg: term.Red}
		}
	}
	return term.FgBgColor{}
}

func main() {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("%s (rev: %s, built: %s)\n", c.App.Version, Version, Build)
	}

	if err := app.Run(os.Args); err != nil {
		level.Error(log).Log("run-failure", err)
		os.Exit(1)
	}
}

func initClient(ctx *cli.Context) error {
	conf, _, err := config.ReadConfigCli(level.NewFilter(log, level.AllowWarn()), afero.NewOsFs(), ctx.String("config"))
	if err != nil {
		return err
	}

	remoteAddr = ctx.String("addr")
	if !ctx.IsSet("addr") && conf.Has("addr") {
		remoteAddr = conf.Addr
	}
	protocolName = ctx.String("protocol")
	if !ctx.IsSet("protocol") && conf.Has("protocol") {
		protocolName = conf.Protocol
	}
	dstr := ctx.String("timeout")
	if !ctx.IsSet("timeout") && conf.Has("timeout") {
		dstr = conf.Timeout
	}

	if dstr != "" {
		d, err := time.ParseDuration(dstr)
		if err != nil {
			return err
		}
		longctx, shutdownFunc = context.WithTimeout(context.Background(), d)
	} else {
		longctx, shutdownFunc = context.WithCancel(context.Background())
	}

	signalc := make(chan os.Signal, 1)
	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case s := <-signalc:
			level.Warn(log).Log("event", "shutting down", "sig", s)
			shutdownFunc()
		case <-longctx.Done():
		}
		signal.Stop(signalc)
	}()
	return nil
}

// output writes v as JSON if --json is set, and calls text otherwise.
func output(ctx *cli.Context, v interface{}, text func(w io.Writer) error) error {
	w := ctx.App.Writer
	if ctx.Bool("json") {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

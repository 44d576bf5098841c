// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/VividCortex/gohistogram"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/codec/fixedlength"
	"github.com/ssbc/go-baseio/codec/redis"
)

var benchCmd = &cli.Command{
	Name:  "bench",
	Usage: "measure request/reply latency (fixedlength or redis)",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "n", Value: 1000, Usage: "number of round trips"},
		&cli.IntFlag{Name: "size", Value: 64, Usage: "payload size in bytes"},
	},
	Action: func(ctx *cli.Context) error {
		n, size := ctx.Int("n"), ctx.Int("size")
		if n <= 0 || size < 0 {
			return errors.Errorf("bench: invalid n=%d size=%d", n, size)
		}

		var (
			fac baseio.ProtocolFactory
			req baseio.Frame
		)
		payload := bytes.Repeat([]byte{'x'}, size)
		switch protocolName {
		case fixedlength.Name:
			fac, req = fixedlength.Factory{}, &fixedlength.Frame{Body: payload}
		case redis.Name:
			fac, req = redis.Factory{}, redis.Command("ECHO", string(payload))
		default:
			return errors.Errorf("bench: can't benchmark %q", protocolName)
		}

		cl, err := newClient(ctx, fac)
		if err != nil {
			return err
		}
		defer cl.Close()

		hist := gohistogram.NewHistogram(50)
		start := time.Now()
		for i := 0; i < n; i++ {
			sent := time.Now()
			if _, err := cl.roundTrip(longctx, req); err != nil {
				return errors.Wrapf(err, "bench: round trip %d failed", i)
			}
			hist.Add(time.Since(sent).Seconds())
		}
		took := time.Since(start)

		res := benchResult{
			Protocol: fac.Name(),
			Count:    n,
			Took:     took.String(),
			PerSec:   float64(n) / took.Seconds(),
			Mean:     seconds(hist.Mean()).String(),
			P50:      seconds(hist.Quantile(0.5)).String(),
			P90:      seconds(hist.Quantile(0.9)).String(),
			P99:      seconds(hist.Quantile(0.99)).String(),
			Written:  cl.sess.BytesWritten(),
			Read:     cl.sess.BytesRead(),
		}
		return output(ctx, res, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "%s round trips over %s in %s (%.0f/s)\n"+
				"mean %s  p50 %s  p90 %s  p99 %s\n"+
				"sent %s, received %s\n",
				humanize.Comma(int64(res.Count)), res.Protocol, res.Took, res.PerSec,
				res.Mean, res.P50, res.P90, res.P99,
				humanize.Bytes(res.Written), humanize.Bytes(res.Read))
			return err
		})
	},
}

type benchResult struct {
	Protocol string  `json:"protocol"`
	Count    int     `json:"count"`
	Took     string  `json:"took"`
	PerSec   float64 `json:"per_sec"`
	Mean     string  `json:"mean"`
	P50      string  `json:"p50"`
	P90      string  `json:"p90"`
	P99      string  `json:"p99"`
	Written  uint64  `json:"written"`
	Read     uint64  `json:"read"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Microsecond)
}

// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/codec/http2"
)

var (
	SystemEvents *prometheus.Counter
	SystemStats  *prometheus.Gauge
	ConnDurrs    *prometheus.Histogram

	latencySummary *prometheus.Summary
)

type latencyHandler struct {
	root baseio.EventHandler
	sum  *prometheus.Summary
}

func (lh latencyHandler) Accept(s baseio.Session, f baseio.Frame) error {
	start := time.Now()
	err := lh.root.Accept(s, f)
	lh.sum.With(
		"protocol", f.Protocol(),
		"frame", frameKind(f),
		"error", strconv.FormatBool(err != nil),
	).Observe(time.Since(start).Seconds())
	return err
}

// HandlerWithLatency measures how long h takes per frame.
func HandlerWithLatency(s *prometheus.Summary) func(baseio.EventHandler) baseio.EventHandler {
	return func(h baseio.EventHandler) baseio.EventHandler {
		return latencyHandler{root: h, sum: s}
	}
}

func frameKind(f baseio.Frame) string {
	switch v := f.(type) {
	case *http2.Frame:
		return v.Type.String()
	case http2.Preface:
		return "preface"
	}
	return "frame"
}

func startDebug() {
	if debugAddr == "" {
		return
	}

	SystemEvents = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "baseio",
		Subsystem: "events",
		Name:      "sysevents",
	}, []string{"event"})

	SystemStats = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: "baseio",
		Subsystem: "network",
		Name:      "sysstats",
	}, []string{"part"})

	ConnDurrs = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "baseio",
		Subsystem: "network",
		Name:      "conn_durrations_seconds",
		Buckets:   stdprometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"part"})

	latencySummary = prometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: "baseio",
		Subsystem: "handler",
		Name:      "handler_durrations_seconds",
	}, []string{"protocol", "frame", "error"})

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		level.Info(log).Log("starting", "metrics", "addr", debugAddr)
		srv := &http.Server{
			Addr:              debugAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		checkAndLog(srv.ListenAndServe())
	}()
}

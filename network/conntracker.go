// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"net"
	"sync"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/ssbc/go-baseio"
)

type instrumentedConnTracker struct {
	root baseio.ConnTracker

	count     metrics.Gauge
	durration metrics.Histogram
}

func NewInstrumentedConnTracker(r baseio.ConnTracker, ct metrics.Gauge, h metrics.Histogram) baseio.ConnTracker {
	i := instrumentedConnTracker{root: r, count: ct, durration: h}
	return &i
}

func (ict instrumentedConnTracker) Count() uint {
	n := ict.root.Count()
	ict.count.With("part", "tracked_count").Set(float64(n))
	return n
}

func (ict instrumentedConnTracker) CloseAll() {
	ict.root.CloseAll()
}

func (ict instrumentedConnTracker) Active(a net.Addr) bool {
	return ict.root.Active(a)
}

func (ict instrumentedConnTracker) OnAccept(conn net.Conn) bool {
	ok := ict.root.OnAccept(conn)
	if ok {
		ict.count.With("part", "tracked_conns").Add(1)
	}
	return ok
}

func (ict instrumentedConnTracker) OnClose(conn net.Conn) time.Duration {
	durr := ict.root.OnClose(conn)
	if durr > 0 {
		ict.count.With("part", "tracked_conns").Add(-1)
		ict.durration.With("part", "tracked_conns").Observe(durr.Seconds())
	}
	return durr
}

type connEntry struct {
	c       net.Conn
	started time.Time
}

// NewConnTracker returns a tracker that refuses connections once max of them
// are open. max == 0 means no limit.
func NewConnTracker(max uint) baseio.ConnTracker {
	return &connTracker{
		active: make(map[string]connEntry),
		max:    max,
	}
}

// tracks open connections by remote address
type connTracker struct {
	activeLock sync.Mutex
	active     map[string]connEntry
	max        uint
}

// CloseAll closes every tracked connection. They are untracked by OnClose
// when their session ends.
func (ct *connTracker) CloseAll() {
	ct.activeLock.Lock()
	conns := make([]net.Conn, 0, len(ct.active))
	for _, e := range ct.active {
		conns = append(conns, e.c)
	}
	ct.activeLock.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (ct *connTracker) Count() uint {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()
	return uint(len(ct.active))
}

func (ct *connTracker) Active(a net.Addr) bool {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()
	_, ok := ct.active[a.String()]
	return ok
}

func (ct *connTracker) OnAccept(conn net.Conn) bool {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()
	k := conn.RemoteAddr().String()
	if _, ok := ct.active[k]; ok {
		return false
	}
	if ct.max > 0 && uint(len(ct.active)) >= ct.max {
		return false
	}
	ct.active[k] = connEntry{
		c:       conn,
		started: time.Now(),
	}
	return true
}

func (ct *connTracker) OnClose(conn net.Conn) time.Duration {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()

	k := conn.RemoteAddr().String()
	who, ok := ct.active[k]
	if !ok || who.c != conn {
		return 0
	}
	delete(ct.active, k)
	return time.Since(who.started)
}

// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"net"
	"testing"
	"time"

	kitprom "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type testAddr string

func (a testAddr) Network() string { return "test" }
func (a testAddr) String() string  { return string(a) }

// addrConn is one end of a net.Pipe with a distinct remote address
type addrConn struct {
	net.Conn
	remote testAddr
}

func (c addrConn) RemoteAddr() net.Addr { return c.remote }

func newAddrConn(t *testing.T, remote string) addrConn {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return addrConn{Conn: a, remote: testAddr(remote)}
}

func TestConnTracker(t *testing.T) {
	r := require.New(t)

	ct := NewConnTracker(0)
	c1 := newAddrConn(t, "peer:1")
	c2 := newAddrConn(t, "peer:2")

	r.True(ct.OnAccept(c1))
	r.False(ct.OnAccept(c1), "same remote twice")
	r.True(ct.OnAccept(c2))
	r.Equal(uint(2), ct.Count())
	r.True(ct.Active(testAddr("peer:1")))
	r.False(ct.Active(testAddr("peer:3")))

	time.Sleep(time.Millisecond)
	r.True(ct.OnClose(c1) > 0)
	r.Equal(time.Duration(0), ct.OnClose(c1), "already closed")
	r.False(ct.Active(testAddr("peer:1")))
	r.Equal(uint(1), ct.Count())

	// a connection that was refused must not untrack the accepted one
	dup := newAddrConn(t, "peer:2")
	r.False(ct.OnAccept(dup))
	r.Equal(time.Duration(0), ct.OnClose(dup))
	r.True(ct.Active(testAddr("peer:2")))
}

func TestConnTrackerLimit(t *testing.T) {
	r := require.New(t)

	ct := NewConnTracker(2)
	r.True(ct.OnAccept(newAddrConn(t, "a")))
	c := newAddrConn(t, "b")
	r.True(ct.OnAccept(c))
	r.False(ct.OnAccept(newAddrConn(t, "c")))

	ct.OnClose(c)
	r.True(ct.OnAccept(newAddrConn(t, "c")))
}

func TestConnTrackerCloseAll(t *testing.T) {
	r := require.New(t)

	ct := NewConnTracker(0)
	c := newAddrConn(t, "a")
	r.True(ct.OnAccept(c))

	ct.CloseAll()
	_, err := c.Write([]byte("x"))
	r.Error(err, "conn should be closed")
}

func TestInstrumentedConnTracker(t *testing.T) {
	r := require.New(t)

	gaugeVec := stdprometheus.NewGaugeVec(stdprometheus.GaugeOpts{
		Namespace: "baseio",
		Name:      "test_conns",
	}, []string{"part"})
	histVec := stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: "baseio",
		Name:      "test_durr",
	}, []string{"part"})

	ct := NewInstrumentedConnTracker(NewConnTracker(0),
		kitprom.NewGauge(gaugeVec),
		kitprom.NewHistogram(histVec))

	c1 := newAddrConn(t, "a")
	c2 := newAddrConn(t, "b")
	r.True(ct.OnAccept(c1))
	r.True(ct.OnAccept(c2))
	r.False(ct.OnAccept(c2))
	r.Equal(2.0, testutil.ToFloat64(gaugeVec.WithLabelValues("tracked_conns")))

	r.Equal(uint(2), ct.Count())
	r.Equal(2.0, testutil.ToFloat64(gaugeVec.WithLabelValues("tracked_count")))

	time.Sleep(time.Millisecond)
	ct.OnClose(c1)
	r.Equal(1.0, testutil.ToFloat64(gaugeVec.WithLabelValues("tracked_conns")))
	r.Equal(1, testutil.CollectAndCount(histVec))
}

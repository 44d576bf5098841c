// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package multiserver parses the ';' separated address lists baseio-cli
// accepts, like "net:localhost:18300;ws://localhost:18301/".
package multiserver

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNoAddr       = errors.New("multiserver: no usable address")
	ErrInvalidPort  = errors.New("multiserver: invalid port")
	ErrUnknownProto = errors.New("multiserver: unknown transport")
)

// Transport says how to reach an Address.
type Transport string

const (
	TransportNet Transport = "net"
	TransportWS  Transport = "ws"
)

// Address is one dialable entry of an address list.
type Address struct {
	Transport Transport

	// Addr is host:port for TransportNet and the URL for TransportWS.
	Addr string
}

func (a Address) String() string {
	if a.Transport == TransportNet {
		return "net:" + a.Addr
	}
	return a.Addr
}

// ParseAddress returns the first entry of input that can be dialed. Entries
// are "net:host:port", "ws://..." or "wss://..." URLs, or a bare host:port,
// which is the same as net:host:port. Unknown transports are skipped.
func ParseAddress(input string) (Address, error) {
	var firstErr error
	for _, p := range strings.Split(input, ";") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		a, err := parseOne(p)
		if err == nil {
			return a, nil
		}
		if firstErr == nil && !errors.Is(err, ErrUnknownProto) {
			firstErr = err
		}
	}
	if firstErr != nil {
		return Address{}, firstErr
	}
	return Address{}, errors.Wrapf(ErrNoAddr, "in %q", input)
}

func parseOne(p string) (Address, error) {
	switch {
	case strings.HasPrefix(p, "ws://"), strings.HasPrefix(p, "wss://"):
		u, err := url.Parse(p)
		if err != nil {
			return Address{}, errors.Wrap(err, "multiserver: invalid websocket url")
		}
		if u.Host == "" {
			return Address{}, errors.Errorf("multiserver: websocket url %q without host", p)
		}
		return Address{Transport: TransportWS, Addr: u.String()}, nil

	case strings.HasPrefix(p, "net:"):
		return parseNet(strings.TrimPrefix(p, "net:"))
	}

	if strings.Contains(p, "://") {
		return Address{}, errors.Wrapf(ErrUnknownProto, "%q", p)
	}
	// unix:/path and the like
	if i := strings.Index(p, ":"); i > 0 && strings.HasPrefix(p[i+1:], "/") {
		return Address{}, errors.Wrapf(ErrUnknownProto, "%q", p)
	}
	return parseNet(p)
}

func parseNet(hostport string) (Address, error) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return Address{}, errors.Wrapf(err, "multiserver: invalid net address %q", hostport)
	}
	if port == "" {
		return Address{}, errors.Wrapf(ErrInvalidPort, "in %q", hostport)
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return Address{}, errors.Wrapf(ErrInvalidPort, "%q", port)
	}
	return Address{Transport: TransportNet, Addr: net.JoinHostPort(host, port)}, nil
}

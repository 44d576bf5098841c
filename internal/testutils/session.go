// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package testutils

import (
	"net"
	"sync"

	"github.com/ssbc/go-baseio"
)

// MemSession is a baseio.Session without a connection. Written frames are
// collected in Written.
type MemSession struct {
	mu      sync.Mutex
	id      uint64
	attrs   map[string]interface{}
	written []baseio.Frame
	closed  bool
}

var _ baseio.Session = (*MemSession)(nil)

func NewMemSession(id uint64) *MemSession {
	return &MemSession{id: id, attrs: make(map[string]interface{})}
}

func (s *MemSession) ID() uint64 { return s.id }

func (s *MemSession) LocalAddr() net.Addr  { return memAddr("local") }
func (s *MemSession) RemoteAddr() net.Addr { return memAddr("remote") }

func (s *MemSession) Attribute(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

func (s *MemSession) SetAttribute(key string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = v
}

func (s *MemSession) Write(f baseio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return baseio.ErrSessionClosed
	}
	s.written = append(s.written, f)
	return nil
}

// Written returns the frames passed to Write so far.
func (s *MemSession) Written() []baseio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]baseio.Frame(nil), s.written...)
}

func (s *MemSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package baseio

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ProtocolRegistry maps names to protocol factories, so servers and clients can
// pick a wire format from configuration.
type ProtocolRegistry interface {
	Register(ProtocolFactory)
	Lookup(name string) (ProtocolFactory, error)
	Names() []string
}

type protocolRegistry struct {
	regLock   sync.Mutex // protects the map
	factories map[string]ProtocolFactory
}

// NewProtocolRegistry returns a new ProtocolRegistry with the passed factories
// already registered.
func NewProtocolRegistry(fs ...ProtocolFactory) ProtocolRegistry {
	reg := &protocolRegistry{
		factories: make(map[string]ProtocolFactory),
	}
	for _, f := range fs {
		reg.Register(f)
	}
	return reg
}

func (reg *protocolRegistry) Register(f ProtocolFactory) {
	reg.regLock.Lock()
	defer reg.regLock.Unlock()
	reg.factories[f.Name()] = f
}

func (reg *protocolRegistry) Lookup(name string) (ProtocolFactory, error) {
	reg.regLock.Lock()
	defer reg.regLock.Unlock()

	f, ok := reg.factories[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProtocol, "no factory for %q", name)
	}
	return f, nil
}

func (reg *protocolRegistry) Names() []string {
	reg.regLock.Lock()
	defer reg.regLock.Unlock()

	names := make([]string, 0, len(reg.factories))
	for n := range reg.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package multiserver

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {

	type tcase struct {
		name  string
		input string
		want  Address
		str   string
		err   error
	}

	var cases = []tcase{
		{
			name:  "bare",
			input: "localhost:18300",
			want:  Address{Transport: TransportNet, Addr: "localhost:18300"},
			str:   "net:localhost:18300",
		},
		{
			name:  "net",
			input: "net:192.168.1.137:18300",
			want:  Address{Transport: TransportNet, Addr: "192.168.1.137:18300"},
			str:   "net:192.168.1.137:18300",
		},
		{
			name:  "ws",
			input: "ws://192.168.1.171:8989/",
			want:  Address{Transport: TransportWS, Addr: "ws://192.168.1.171:8989/"},
			str:   "ws://192.168.1.171:8989/",
		},
		{
			name:  "unix first",
			input: "unix:/home/some1/.baseio/socket;net:10.0.0.1:18300",
			want:  Address{Transport: TransportNet, Addr: "10.0.0.1:18300"},
			str:   "net:10.0.0.1:18300",
		},
		{
			name:  "unknown scheme first",
			input: "onion://abcdef.onion:1234;ws://[::1]:8989",
			want:  Address{Transport: TransportWS, Addr: "ws://[::1]:8989"},
			str:   "ws://[::1]:8989",
		},
		{
			name:  "valid v6",
			input: "net:[fe80::beee:7bff:fe8c:6ffc]:18300",
			want:  Address{Transport: TransportNet, Addr: "[fe80::beee:7bff:fe8c:6ffc]:18300"},
			str:   "net:[fe80::beee:7bff:fe8c:6ffc]:18300",
		},
		{
			name:  "just unix",
			input: "unix:/home/some1/.baseio/socket",
			err:   ErrNoAddr,
		},
		{
			name:  "empty",
			input: " ; ",
			err:   ErrNoAddr,
		},
		{
			name:  "bad port",
			input: "net:10.10.0.1:nope",
			err:   ErrInvalidPort,
		},
		{
			name:  "empty port",
			input: "net:10.10.0.1:",
			err:   ErrInvalidPort,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)

			addr, err := ParseAddress(tc.input)
			if tc.err == nil {
				r.NoError(err)
				r.Equal(tc.want, addr)
				r.Equal(tc.str, addr.String())
			} else {
				r.True(errors.Is(err, tc.err), "got %v", err)
			}
		})
	}
}

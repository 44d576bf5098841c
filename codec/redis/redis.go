// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package redis implements the Redis serialization protocol (RESP2).
package redis

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/ssbc/go-baseio"
	"github.com/ssbc/go-baseio/buffer"
)

// Name is the name of the protocol in a baseio.ProtocolRegistry.
const Name = "redis"

// DefaultMaxBulkLength is the bulk string limit of the Redis server.
const DefaultMaxBulkLength = 512 << 20

// maxDepth bounds the nesting of arrays.
const maxDepth = 32

// ErrProtocol is returned for input that is not RESP.
var ErrProtocol = errors.New("redis: protocol error")

// Type is the first byte of a RESP value.
type Type byte

const (
	SimpleString Type = '+'
	Error        Type = '-'
	Integer      Type = ':'
	BulkString   Type = '$'
	Array        Type = '*'
)

func (t Type) String() string {
	switch t {
	case SimpleString:
		return "simple string"
	case Error:
		return "error"
	case Integer:
		return "integer"
	case BulkString:
		return "bulk string"
	case Array:
		return "array"
	}
	return fmt.Sprintf("type(%q)", byte(t))
}

// Value is one RESP value. Str holds the payload of strings and errors, Int
// the payload of integers and Elems the elements of arrays. Null is set for
// the null bulk string and the null array.
type Value struct {
	Type  Type
	Str   []byte
	Int   int64
	Elems []Value
	Null  bool
}

func (Value) Protocol() string { return Name }

func (v Value) String() string {
	if v.Null {
		return "(nil)"
	}
	switch v.Type {
	case Integer:
		return "(integer) " + strconv.FormatInt(v.Int, 10)
	case Error:
		return "(error) " + string(v.Str)
	case Array:
		var sb bytes.Buffer
		sb.WriteString("[")
		for i, e := range v.Elems {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(e.String())
		}
		sb.WriteString("]")
		return sb.String()
	}
	return strconv.Quote(string(v.Str))
}

// Command returns an array of bulk strings, the form clients send commands in.
func Command(args ...string) Value {
	elems := make([]Value, len(args))
	for i, a := range args {
		elems[i] = Value{Type: BulkString, Str: []byte(a)}
	}
	return Value{Type: Array, Elems: elems}
}

// Status returns a simple string.
func Status(s string) Value { return Value{Type: SimpleString, Str: []byte(s)} }

// Int returns an integer.
func Int(i int64) Value { return Value{Type: Integer, Int: i} }

// Err returns an error value.
func Err(msg string) Value { return Value{Type: Error, Str: []byte(msg)} }

// Factory creates RESP decoders.
type Factory struct {
	// MaxBulkLength bounds bulk strings. <= 0 means DefaultMaxBulkLength.
	MaxBulkLength int
}

var _ baseio.ProtocolFactory = Factory{}

func (Factory) Name() string { return Name }

func (fac Factory) NewDecoder() baseio.ProtocolDecoder {
	limit := fac.MaxBulkLength
	if limit <= 0 {
		limit = DefaultMaxBulkLength
	}
	return &decoder{maxBulk: limit}
}

func (Factory) Encoder() baseio.ProtocolEncoder { return encoder{} }

type decoder struct {
	maxBulk int
}

// Decode parses one value. Nothing is consumed until the whole value,
// including all nested elements, is buffered.
func (d *decoder) Decode(_ baseio.Session, in *buffer.ByteBuf) (baseio.Frame, bool, error) {
	v, n, err := d.parse(in.Bytes(), 0)
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	if err := in.SkipBytes(n); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// parse returns the value at the start of p and its encoded length. n == 0
// means p ends before the value does.
func (d *decoder) parse(p []byte, depth int) (Value, int, error) {
	line, n := readLine(p)
	if n == 0 {
		return Value{}, 0, nil
	}
	if len(line) == 0 {
		return Value{}, 0, errors.Wrap(ErrProtocol, "empty line")
	}

	v := Value{Type: Type(line[0])}
	rest := line[1:]
	switch v.Type {
	case SimpleString, Error:
		v.Str = append([]byte{}, rest...)
		return v, n, nil

	case Integer:
		i, err := parseInt(rest)
		if err != nil {
			return Value{}, 0, err
		}
		v.Int = i
		return v, n, nil

	case BulkString:
		l, err := parseInt(rest)
		if err != nil {
			return Value{}, 0, err
		}
		if l == -1 {
			v.Null = true
			return v, n, nil
		}
		if l < 0 {
			return Value{}, 0, errors.Wrapf(ErrProtocol, "invalid bulk length %d", l)
		}
		if l > int64(d.maxBulk) {
			return Value{}, 0, errors.Wrapf(ErrProtocol, "bulk length %d exceeds %d", l, d.maxBulk)
		}
		end := n + int(l) + 2
		if len(p) < end {
			return Value{}, 0, nil
		}
		if p[end-2] != '\r' || p[end-1] != '\n' {
			return Value{}, 0, errors.Wrap(ErrProtocol, "bulk string not terminated by CRLF")
		}
		v.Str = append([]byte{}, p[n:end-2]...)
		return v, end, nil

	case Array:
		l, err := parseInt(rest)
		if err != nil {
			return Value{}, 0, err
		}
		if l == -1 {
			v.Null = true
			return v, n, nil
		}
		if l < 0 {
			return Value{}, 0, errors.Wrapf(ErrProtocol, "invalid array length %d", l)
		}
		if depth >= maxDepth {
			return Value{}, 0, errors.Wrapf(ErrProtocol, "arrays nested deeper than %d", maxDepth)
		}
		// every element takes at least 3 bytes
		if l > int64(len(p)) {
			return Value{}, 0, nil
		}
		v.Elems = make([]Value, 0, int(l))
		total := n
		for i := int64(0); i < l; i++ {
			e, en, err := d.parse(p[total:], depth+1)
			if err != nil {
				return Value{}, 0, err
			}
			if en == 0 {
				return Value{}, 0, nil
			}
			v.Elems = append(v.Elems, e)
			total += en
		}
		return v, total, nil
	}
	return Value{}, 0, errors.Wrapf(ErrProtocol, "unknown type byte %q", line[0])
}

// readLine returns the line at the start of p without its CRLF, and the
// length of the line including the CRLF. n is 0 if p holds no complete line.
func readLine(p []byte) (line []byte, n int) {
	i := bytes.Index(p, []byte("\r\n"))
	if i < 0 {
		return nil, 0
	}
	return p[:i], i + 2
}

func parseInt(p []byte) (int64, error) {
	i, err := strconv.ParseInt(string(p), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrProtocol, "bad integer %q", p)
	}
	return i, nil
}

type encoder struct{}

func (encoder) Encode(_ baseio.Session, f baseio.Frame, out *buffer.ByteBuf) error {
	v, ok := f.(Value)
	if !ok {
		return baseio.ErrWrongFrame{Want: Name, Got: f}
	}
	return writeValue(out, v)
}

func writeValue(out *buffer.ByteBuf, v Value) error {
	switch v.Type {
	case SimpleString, Error:
		if bytes.ContainsAny(v.Str, "\r\n") {
			return errors.Wrapf(ErrProtocol, "%s contains a line break", v.Type)
		}
	case Integer, BulkString, Array:
	default:
		return errors.Wrapf(ErrProtocol, "can't encode type %s", v.Type)
	}

	if err := out.WriteByte(byte(v.Type)); err != nil {
		return err
	}
	switch v.Type {
	case SimpleString, Error:
		out.Write(v.Str)
	case Integer:
		out.WriteString(strconv.FormatInt(v.Int, 10))
	case BulkString:
		if v.Null {
			out.WriteString("-1\r\n")
			return nil
		}
		out.WriteString(strconv.Itoa(len(v.Str)))
		out.WriteString("\r\n")
		out.Write(v.Str)
	case Array:
		if v.Null {
			out.WriteString("-1\r\n")
			return nil
		}
		out.WriteString(strconv.Itoa(len(v.Elems)))
		out.WriteString("\r\n")
		for _, e := range v.Elems {
			if err := writeValue(out, e); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := out.WriteString("\r\n")
	return err
}

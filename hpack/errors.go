// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package hpack

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrCode is an HTTP/2 error code (RFC 7540 section 7).
type ErrCode uint32

const (
	ErrCodeNo                 ErrCode = 0x0
	ErrCodeProtocol           ErrCode = 0x1
	ErrCodeInternal           ErrCode = 0x2
	ErrCodeFlowControl        ErrCode = 0x3
	ErrCodeSettingsTimeout    ErrCode = 0x4
	ErrCodeStreamClosed       ErrCode = 0x5
	ErrCodeFrameSize          ErrCode = 0x6
	ErrCodeRefusedStream      ErrCode = 0x7
	ErrCodeCancel             ErrCode = 0x8
	ErrCodeCompression        ErrCode = 0x9
	ErrCodeConnect            ErrCode = 0xa
	ErrCodeEnhanceYourCalm    ErrCode = 0xb
	ErrCodeInadequateSecurity ErrCode = 0xc
	ErrCodeHTTP11Required     ErrCode = 0xd
)

var errCodeName = map[ErrCode]string{
	ErrCodeNo:                 "NO_ERROR",
	ErrCodeProtocol:           "PROTOCOL_ERROR",
	ErrCodeInternal:           "INTERNAL_ERROR",
	ErrCodeFlowControl:        "FLOW_CONTROL_ERROR",
	ErrCodeSettingsTimeout:    "SETTINGS_TIMEOUT",
	ErrCodeStreamClosed:       "STREAM_CLOSED",
	ErrCodeFrameSize:          "FRAME_SIZE_ERROR",
	ErrCodeRefusedStream:      "REFUSED_STREAM",
	ErrCodeCancel:             "CANCEL",
	ErrCodeCompression:        "COMPRESSION_ERROR",
	ErrCodeConnect:            "CONNECT_ERROR",
	ErrCodeEnhanceYourCalm:    "ENHANCE_YOUR_CALM",
	ErrCodeInadequateSecurity: "INADEQUATE_SECURITY",
	ErrCodeHTTP11Required:     "HTTP_1_1_REQUIRED",
}

func (e ErrCode) String() string {
	if s, ok := errCodeName[e]; ok {
		return s
	}
	return fmt.Sprintf("unknown error code 0x%x", uint32(e))
}

// ConnectionError is an error that terminates the whole connection, not just
// a single stream.
type ConnectionError struct {
	Code ErrCode
	Msg  string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s: %s", e.Code, e.Msg)
}

func connectionError(code ErrCode, msg string) *ConnectionError {
	return &ConnectionError{Code: code, Msg: msg}
}

// The Huffman decode failures are allocated once and returned as is, compare
// them with == or errors.Is.
var (
	// ErrEOSDecoded is returned when the EOS code shows up as a complete symbol
	// instead of as padding.
	ErrEOSDecoded = connectionError(ErrCodeCompression, "HPACK - EOS Decoded")

	// ErrInvalidPadding is returned when the bits after the last symbol are
	// longer than 7 bits or are not a prefix of the EOS code.
	ErrInvalidPadding = connectionError(ErrCodeCompression, "HPACK - Invalid Padding")

	// ErrUnknownCode is returned when the input walks into a part of the code
	// space the table does not assign. The RFC table is complete, so this only
	// happens with custom tables.
	ErrUnknownCode = connectionError(ErrCodeCompression, "HPACK - Unknown Code")
)

// ErrPrefixCodeViolation is returned by BuildTree for tables that are not
// prefix free. It means the table is broken, not the input.
var ErrPrefixCodeViolation = errors.New("hpack: invalid Huffman code: prefix not unique")

var (
	// ErrNeedMore is returned by the primitive readers when p ends before the
	// value does.
	ErrNeedMore = errors.New("hpack: need more data")

	// ErrIntegerOverflow is returned for prefixed integers that do not fit into 63 bits.
	ErrIntegerOverflow = connectionError(ErrCodeCompression, "HPACK - Integer Overflow")

	// ErrStringLength is returned for string literals longer than the
	// configured maximum.
	ErrStringLength = connectionError(ErrCodeCompression, "HPACK - String Too Long")
)

// DecodingError is something the header block decoder could not understand.
type DecodingError struct {
	Err error
}

func (de DecodingError) Error() string {
	return fmt.Sprintf("decoding error: %v", de.Err)
}

func (de DecodingError) Unwrap() error { return de.Err }

// InvalidIndexError is returned when a header block references an index that
// is in neither the static nor the dynamic table.
type InvalidIndexError int

func (e InvalidIndexError) Error() string {
	return fmt.Sprintf("invalid indexed representation index %d", int(e))
}

// IsCompressionError reports whether err is an HPACK failure that has to be
// answered with a COMPRESSION_ERROR on the connection.
func IsCompressionError(err error) bool {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeCompression
	}
	var de DecodingError
	if errors.As(err, &de) {
		return true
	}
	var ie InvalidIndexError
	return errors.As(err, &ie)
}

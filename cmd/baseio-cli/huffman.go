// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/ssbc/go-baseio/hpack"
)

var huffmanCmd = &cli.Command{
	Name:  "huffman",
	Usage: "encode and decode strings with the HPACK Huffman code",
	Subcommands: []*cli.Command{
		{
			Name:      "encode",
			Usage:     "print the hex encoded Huffman code of the arguments",
			ArgsUsage: "<text>",
			Action: func(ctx *cli.Context) error {
				text := strings.Join(ctx.Args().Slice(), " ")
				code := hpack.AppendHuffmanString(nil, text)
				return output(ctx, huffmanResult{Text: text, Hex: hex.EncodeToString(code)}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, hex.EncodeToString(code))
					return err
				})
			},
		},
		{
			Name:      "decode",
			Usage:     "decode hex encoded Huffman code",
			ArgsUsage: "<hex>",
			Action: func(ctx *cli.Context) error {
				code, err := hexArg(ctx)
				if err != nil {
					return err
				}
				text, err := hpack.NewHuffmanDecoder(hpack.DefaultInitialCapacity).DecodeString(code)
				if err != nil {
					return errors.Wrap(err, "huffman: decode failed")
				}
				return output(ctx, huffmanResult{Text: text, Hex: hex.EncodeToString(code)}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, text)
					return err
				})
			},
		},
	},
}

type huffmanResult struct {
	Text string `json:"text"`
	Hex  string `json:"hex"`
}

var hpackCmd = &cli.Command{
	Name:      "hpack",
	Usage:     "decode a hex encoded HPACK header block",
	ArgsUsage: "<hex>",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "table", Value: hpack.DefaultTableSize, Usage: "dynamic table size"},
	},
	Action: func(ctx *cli.Context) error {
		block, err := hexArg(ctx)
		if err != nil {
			return err
		}
		dec := hpack.NewDecoder(uint32(ctx.Uint("table")), nil)
		fields, err := dec.DecodeFull(block)
		if err != nil {
			return errors.Wrap(err, "hpack: decode failed")
		}
		return output(ctx, fields, func(w io.Writer) error {
			for _, hf := range fields {
				if _, err := fmt.Fprintf(w, "%s: %s\n", hf.Name, hf.Value); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

// hexArg joins the arguments and decodes them as hex. Spaces are ignored.
func hexArg(ctx *cli.Context) ([]byte, error) {
	if ctx.NArg() == 0 {
		return nil, errors.Errorf("%s: expected hex argument", ctx.Command.Name)
	}
	b, err := decodeHex(strings.Join(ctx.Args().Slice(), ""))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: invalid hex", ctx.Command.Name)
	}
	return b, nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.ReplaceAll(s, " ", ""))
}

// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/ssbc/go-baseio/graph"
	"github.com/ssbc/go-baseio/hpack"
)

var treeCmd = &cli.Command{
	Name:  "tree",
	Usage: "inspect the Huffman decode trie",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "dot", Usage: "print the trie in graphviz DOT format"},
		&cli.StringFlag{Name: "svg", Usage: "render the trie to this file (needs graphviz)"},
		&cli.StringFlag{Name: "lookup", Usage: "hex encoded input bytes to resolve"},
	},
	Action: func(ctx *cli.Context) error {
		tr, err := graph.FromTree(hpack.DefaultTree())
		if err != nil {
			return err
		}
		w := ctx.App.Writer

		if ctx.Bool("dot") {
			dot, err := tr.MarshalDOT("hpack")
			if err != nil {
				return err
			}
			_, err = w.Write(append(dot, '\n'))
			return err
		}

		if fname := ctx.String("svg"); fname != "" {
			f, err := os.Create(fname)
			if err != nil {
				return errors.Wrap(err, "tree: failed to create svg file")
			}
			if err := tr.RenderSVG(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}

		if in := ctx.String("lookup"); in != "" {
			path, err := decodeHex(in)
			if err != nil {
				return errors.Wrap(err, "tree: invalid lookup")
			}
			sym, err := tr.Lookup(path...)
			if err != nil {
				return err
			}
			return output(ctx, map[string]string{"input": in, "terminal": sym}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, sym)
				return err
			})
		}

		stats := treeStats{Nodes: tr.Nodes(), Edges: tr.Edges(), Depth: tr.Depth()}
		return output(ctx, stats, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "nodes: %d\nedges: %d\ndepth: %d\n", stats.Nodes, stats.Edges, stats.Depth)
			return err
		})
	},
}

type treeStats struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
	Depth int `json:"depth"`
}

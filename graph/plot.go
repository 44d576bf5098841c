// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package graph

import (
	"bytes"
	"io"
	"os/exec"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/encoding/dot"
)

// MarshalDOT returns the trie in graphviz format.
func (tr *Trie) MarshalDOT(name string) ([]byte, error) {
	dotbytes, err := dot.Marshal(tr.dg, name, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "dot marshal failed")
	}
	return dotbytes, nil
}

// RenderSVG runs graphviz' dot over the trie and writes the SVG to w.
func (tr *Trie) RenderSVG(w io.Writer) error {
	dotbytes, err := tr.MarshalDOT("trie")
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	dotCmd := exec.Command("dot", "-Tsvg")
	dotCmd.Stdin = bytes.NewReader(dotbytes)
	dotCmd.Stdout = w
	dotCmd.Stderr = &stderr
	if err := dotCmd.Run(); err != nil {
		return errors.Wrapf(err, "dot run failed: %s", stderr.String())
	}
	return nil
}

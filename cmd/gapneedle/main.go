// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

// See doc.go for documentation.

import (
	"os"

	"github.com/grailbio/base/grail"
	"v.io/x/lib/cmdline"
)

func newRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "gapneedle",
		Short:    "Tools for closing assembly gaps with indexed FASTA access, PAF mapping and stitching",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdFaidx(),
			newCmdFetch(),
			newCmdAlign(),
			newCmdSuggest(),
			newCmdMap(),
			newCmdStitch(),
		},
	}
}

func main() {
	shutdown := grail.Init()
	cmdline.HideGlobalFlagsExcept()
	env := cmdline.EnvFromOS()
	err := cmdline.ParseAndRun(newRoot(), env, os.Args[1:])
	shutdown()
	os.Exit(cmdline.ExitCode(err, env.Stderr))
}

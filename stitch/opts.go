// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package stitch

// SessionSuffix is appended to the output FASTA path to form the path of
// the session log.
const SessionSuffix = ".session.json"

// Opts controls the output of Stitch.
type Opts struct {
	// ContextBp is the number of bases on each side of a junction shown in
	// Breakpoint.Preview.  Negative values are treated as zero.
	ContextBp int
	// FlankBp is the maximum number of bases compared by the flank checks.
	// Non-positive values mean DefaultOpts.FlankBp.
	FlankBp int
	// OutputName is the name of the merged FASTA record.  Empty means
	// DefaultOpts.OutputName.
	OutputName string
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	ContextBp:  200,        // -context
	FlankBp:    50,         // no flag
	OutputName: "stitched", // -name
}

func (o Opts) normalize() Opts {
	if o.ContextBp < 0 {
		o.ContextBp = 0
	}
	if o.FlankBp <= 0 {
		o.FlankBp = DefaultOpts.FlankBp
	}
	if o.OutputName == "" {
		o.OutputName = DefaultOpts.OutputName
	}
	return o
}

// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package stitch

import (
	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/log"
)

// Breakpoint summarizes the junction between piece Index and piece Index+1.
//
// The two flank checks compare the pieces end to end and start to start:
// LeftFlankMatch is true iff the last FlankLen bases of both pieces are
// equal, and RightFlankMatch iff their first FlankLen bases are equal.
// FlankLen is min(Opts.FlankBp, len(left), len(right)).
type Breakpoint struct {
	Index           int    `json:"index"`
	LeftFlankMatch  bool   `json:"left_flank_match"`
	RightFlankMatch bool   `json:"right_flank_match"`
	Preview         string `json:"preview"`
	FlankLen        int    `json:"flank_len"`
	// Left/RightFlankMismatches are the Hamming distances between the
	// compared flanks, or -1 if no flanks were compared.
	LeftFlankMismatches  int `json:"left_flank_mismatches"`
	RightFlankMismatches int `json:"right_flank_mismatches"`
}

// mismatches counts the differing positions of two equal-length strings.
func mismatches(a, b string) int {
	d, err := matchr.Hamming(a, b)
	if err != nil {
		// Only happens if the lengths differ.
		log.Panicf("hamming %q %q: %v", a, b, err)
	}
	return d
}

// preview shows up to context bases on each side of the junction.
func preview(left, right string, context int) string {
	l, r := left, right
	if len(l) > context {
		l = l[len(l)-context:]
	}
	if len(r) > context {
		r = r[:context]
	}
	return l + "|" + r
}

func analyzeJunction(index int, left, right string, opts Opts) Breakpoint {
	bp := Breakpoint{
		Index:                index,
		Preview:              preview(left, right, opts.ContextBp),
		LeftFlankMismatches:  -1,
		RightFlankMismatches: -1,
	}
	n := opts.FlankBp
	if len(left) < n {
		n = len(left)
	}
	if len(right) < n {
		n = len(right)
	}
	if n <= 0 {
		return bp
	}
	bp.FlankLen = n
	bp.LeftFlankMismatches = mismatches(left[len(left)-n:], right[len(right)-n:])
	bp.RightFlankMismatches = mismatches(left[:n], right[:n])
	bp.LeftFlankMatch = bp.LeftFlankMismatches == 0
	bp.RightFlankMatch = bp.RightFlankMismatches == 0
	return bp
}

// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package stitch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// Source keys of the two primary FASTA files.  Any other key must be listed
// in Request.Extras.
const (
	SourceTarget = "t"
	SourceQuery  = "q"
)

// Segment selects bases [Start, End) of sequence Name from the FASTA file
// identified by Source.  If Reverse is set, the range applies to the reverse
// complement of the whole sequence.
type Segment struct {
	Source  string `json:"source"`
	Name    string `json:"name"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Reverse bool   `json:"reverse"`
}

// String formats the segment in the form accepted by ParseSegment.
func (s Segment) String() string {
	str := fmt.Sprintf("%s:%s:%d-%d", s.Source, s.Name, s.Start, s.End)
	if s.Reverse {
		str += ":rc"
	}
	return str
}

// ParseSegment parses "source:name:start-end", optionally followed by ":rc"
// to select the reverse complement.  The name may itself contain colons.
// The range is checked for syntax only; bounds are checked by Stitch.
func ParseSegment(str string) (Segment, error) {
	fields := strings.Split(str, ":")
	var s Segment
	if n := len(fields); n > 0 && fields[n-1] == "rc" {
		s.Reverse = true
		fields = fields[:n-1]
	}
	if len(fields) < 3 || fields[0] == "" {
		return Segment{}, errors.E(errors.Invalid, fmt.Sprintf("segment %q: want source:name:start-end[:rc]", str))
	}
	s.Source = fields[0]
	s.Name = strings.Join(fields[1:len(fields)-1], ":")
	if s.Name == "" {
		return Segment{}, errors.E(errors.Invalid, fmt.Sprintf("segment %q: empty sequence name", str))
	}
	rng := fields[len(fields)-1]
	dash := strings.IndexByte(rng, '-')
	if dash < 0 {
		return Segment{}, errors.E(errors.Invalid, fmt.Sprintf("segment %q: range %q is not start-end", str, rng))
	}
	var err error
	if s.Start, err = strconv.Atoi(rng[:dash]); err != nil {
		return Segment{}, errors.E(errors.Invalid, err, fmt.Sprintf("segment %q", str))
	}
	if s.End, err = strconv.Atoi(rng[dash+1:]); err != nil {
		return Segment{}, errors.E(errors.Invalid, err, fmt.Sprintf("segment %q", str))
	}
	return s, nil
}

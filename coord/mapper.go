// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package coord translates query coordinates into target coordinates by
// walking the CIGAR of a PAF alignment.
//
// Map is a pure function of the record and the query position; it never
// fails, and instead reports why a position could not be mapped through
// Result.Reason.
package coord

import (
	"fmt"

	"github.com/grailbio/gapneedle/encoding/paf"
	"github.com/grailbio/hts/sam"
)

// Reason tells whether, and why not, a query position was mapped.
type Reason string

const (
	// OK means Result.TargetPos holds the mapped position.
	OK Reason = "ok"
	// MissingCigar means the record has no "cg" tag.
	MissingCigar Reason = "missing_cigar"
	// OutOfRange means the position is outside [QueryStart, QueryEnd).
	OutOfRange Reason = "out_of_range"
	// Insertion means the position falls inside an I or S operation, which
	// has no target counterpart.
	Insertion Reason = "insertion"
	// BadCigar means the CIGAR could not be parsed.  Result.Op and
	// Result.OpLen describe the offending operation.
	BadCigar Reason = "bad_cigar"
	// NoMapping means the CIGAR ended before reaching the position.
	NoMapping Reason = "no_mapping"
)

// Result describes the outcome of Map.
type Result struct {
	Reason Reason `json:"reason"`
	// TargetPos is the 0-based target position.  It is -1 unless Reason is
	// OK.
	TargetPos int `json:"target_pos"`
	// QueryPos is the position passed to Map.
	QueryPos int `json:"query_pos"`
	// OrientedQueryPos is QueryPos in the orientation of the CIGAR walk:
	// QueryLen-1-QueryPos for '-' records.  It is -1 if the walk was not
	// attempted.
	OrientedQueryPos int `json:"oriented_query_pos"`
	// Op, OpLen and OpOffset describe the operation that contains the
	// position (OK, Insertion) or that could not be parsed (BadCigar).
	Op       string `json:"op,omitempty"`
	OpLen    int    `json:"op_len"`
	OpOffset int    `json:"op_offset"`
	// Before sums the lengths of the operations walked past before the
	// matching one.  H and P are never included.
	Before OpCounts `json:"before"`
	// Total sums the lengths of all the operations in the CIGAR.
	Total OpCounts `json:"total"`
	// QueryConsumedBefore and TargetConsumedBefore count the query and
	// target bases consumed by the operations in Before.
	QueryConsumedBefore  int `json:"query_consumed_before"`
	TargetConsumedBefore int `json:"target_consumed_before"`
}

// String produces a one-line human readable summary.
func (r Result) String() string {
	switch r.Reason {
	case OK:
		return fmt.Sprintf("query %d (oriented %d) -> target %d (%d%s, offset %d)",
			r.QueryPos, r.OrientedQueryPos, r.TargetPos, r.OpLen, r.Op, r.OpOffset)
	case Insertion:
		return fmt.Sprintf("query %d (oriented %d): %s in %d%s at offset %d",
			r.QueryPos, r.OrientedQueryPos, r.Reason, r.OpLen, r.Op, r.OpOffset)
	case BadCigar:
		return fmt.Sprintf("query %d: %s near %d%s", r.QueryPos, r.Reason, r.OpLen, r.Op)
	}
	return fmt.Sprintf("query %d: %s", r.QueryPos, r.Reason)
}

// Map translates the 0-based query position qpos into the target coordinate
// space of rec.
//
// For a '-' record, the CIGAR runs along the reverse complement of the
// query, so the walk starts at QueryLen-QueryEnd and looks for
// QueryLen-1-qpos.  Target coordinates are always forward.
func Map(rec *paf.Record, qpos int) Result {
	r := Result{
		Reason:           NoMapping,
		TargetPos:        -1,
		QueryPos:         qpos,
		OrientedQueryPos: -1,
	}
	cg := rec.Cigar()
	if cg == "" {
		r.Reason = MissingCigar
		return r
	}
	if qpos < rec.QueryStart || qpos >= rec.QueryEnd {
		r.Reason = OutOfRange
		return r
	}

	oriented, qCursor := qpos, rec.QueryStart
	if rec.Strand == '-' {
		oriented = rec.QueryLen - 1 - qpos
		qCursor = rec.QueryLen - rec.QueryEnd
	}
	r.OrientedQueryPos = oriented
	tCursor := rec.TargetStart

	cigar, bad := parseCigar(cg)
	if bad != nil {
		r.Reason = BadCigar
		r.Op = bad.op
		r.OpLen = bad.length
		return r
	}
	for _, op := range cigar {
		r.Total[op.Type] += op.Len
	}

	for _, op := range cigar {
		n := op.Len
		switch t := op.Type; t {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if oriented >= qCursor && oriented < qCursor+n {
				r.Reason = OK
				r.TargetPos = tCursor + (oriented - qCursor)
				r.Op, r.OpLen, r.OpOffset = t.String(), n, oriented-qCursor
				return r
			}
			qCursor += n
			tCursor += n
			r.Before[t] += n
			r.QueryConsumedBefore += n
			r.TargetConsumedBefore += n
		case sam.CigarInsertion, sam.CigarSoftClipped:
			if oriented >= qCursor && oriented < qCursor+n {
				r.Reason = Insertion
				r.Op, r.OpLen, r.OpOffset = t.String(), n, oriented-qCursor
				return r
			}
			qCursor += n
			r.Before[t] += n
			r.QueryConsumedBefore += n
		case sam.CigarDeletion, sam.CigarSkipped:
			tCursor += n
			r.Before[t] += n
			r.TargetConsumedBefore += n
		case sam.CigarHardClipped, sam.CigarPadded:
			// Consumes neither sequence.
		}
	}
	return r
}

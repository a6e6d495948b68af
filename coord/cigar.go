// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package coord

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// maxOpLen is the largest length whose next decimal digit still fits in
// an int.
const maxOpLen = (int(^uint(0)>>1) - 9) / 10

// opTypes lists the operators that may appear in a PAF CIGAR, in the order
// they are reported.  sam.CigarBack is not accepted.
var opTypes = []sam.CigarOpType{
	sam.CigarMatch,
	sam.CigarEqual,
	sam.CigarMismatch,
	sam.CigarInsertion,
	sam.CigarDeletion,
	sam.CigarSkipped,
	sam.CigarSoftClipped,
	sam.CigarHardClipped,
	sam.CigarPadded,
}

var opByChar = func() map[byte]sam.CigarOpType {
	m := map[byte]sam.CigarOpType{}
	for _, t := range opTypes {
		m[t.String()[0]] = t
	}
	return m
}()

// OpCounts accumulates operation lengths per operator.  It is indexed by
// sam.CigarOpType.
type OpCounts [sam.CigarBack]int

// MarshalJSON encodes the counts as an object keyed by the operator
// character, e.g. {"M":30,"=":0,...}.
func (c OpCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range opTypes {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(t.String()))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(c[t]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.  Unknown operators are an
// error.
func (c *OpCounts) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*c = OpCounts{}
	for k, v := range m {
		if len(k) != 1 {
			return errors.E(errors.Invalid, fmt.Sprintf("unknown CIGAR operator %q", k))
		}
		t, ok := opByChar[k[0]]
		if !ok {
			return errors.E(errors.Invalid, fmt.Sprintf("unknown CIGAR operator %q", k))
		}
		c[t] = v
	}
	return nil
}

// Op is one CIGAR operation.  Unlike sam.CigarOp, the length is not limited
// to 28 bits, so whole-chromosome alignments of large genomes fit.
type Op struct {
	Type sam.CigarOpType
	Len  int
}

// String formats the operation as in a CIGAR string, e.g. "30M".
func (o Op) String() string {
	return strconv.Itoa(o.Len) + o.Type.String()
}

// badOpError describes the first unusable operation of a CIGAR string.
type badOpError struct {
	op     string // operator character, "" if the string ended after a length
	length int
	pos    int
}

func (e *badOpError) Error() string {
	if e.op == "" {
		return fmt.Sprintf("CIGAR ends with a length (%d) but no operator", e.length)
	}
	return fmt.Sprintf("bad CIGAR operation %d%s at byte %d", e.length, e.op, e.pos)
}

// parseCigar splits s into operations.  An operator without a preceding
// length, a length without an operator, or an operator outside MIDNSHP=X is
// reported as a badOpError, as is a length that overflows an int.
func parseCigar(s string) ([]Op, *badOpError) {
	var (
		ops    []Op
		n      int
		hasLen bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if '0' <= ch && ch <= '9' {
			if n <= maxOpLen {
				n = n*10 + int(ch-'0')
			}
			hasLen = true
			continue
		}
		t, ok := opByChar[ch]
		if !ok || !hasLen || n > maxOpLen {
			return nil, &badOpError{op: string(ch), length: n, pos: i}
		}
		ops = append(ops, Op{Type: t, Len: n})
		n, hasLen = 0, false
	}
	if hasLen {
		return nil, &badOpError{length: n, pos: len(s)}
	}
	return ops, nil
}

// ParseCigar parses a CIGAR string such as "30M2I5D" as found in the "cg" tag
// of a PAF record.  Malformed strings yield an error of kind
// errors.Integrity.
func ParseCigar(s string) ([]Op, error) {
	ops, bad := parseCigar(s)
	if bad != nil {
		return nil, errors.E(errors.Integrity, bad, fmt.Sprintf("parse CIGAR %q", s))
	}
	return ops, nil
}

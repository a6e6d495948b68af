// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package paf reads pairwise alignments in PAF format, as written by
// minimap2.  See https://github.com/lh3/miniasm/blob/master/PAF.md.
//
// Each line holds twelve mandatory tab-separated columns followed by
// optional SAM-style "TAG:TYPE:VALUE" tokens:
//
//   qname qlen qstart qend strand tname tlen tstart tend matches alnlen mapq [tags...]
//
// Coordinates are 0-based and half-open.  Query coordinates are always on
// the forward strand of the query, even for '-' alignments.
package paf

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// DefaultSuggestLimit is the number of records returned by Suggest when the
// caller passes a non-positive limit.
const DefaultSuggestLimit = 10

// NumColumns is the number of mandatory columns on a PAF line.
const NumColumns = 12

const maxLineSize = 256 << 20

// Record is one alignment line.
type Record struct {
	QueryName   string
	QueryLen    int
	QueryStart  int
	QueryEnd    int
	Strand      byte // '+' or '-'
	TargetName  string
	TargetLen   int
	TargetStart int
	TargetEnd   int
	Matches     int
	BlockLen    int
	MapQ        int
	// Tags holds columns 13 and beyond, verbatim and in order.
	Tags []string
}

// Tag returns the value of the first "name:TYPE:value" tag.
func (r *Record) Tag(name string) (string, bool) {
	prefix := name + ":"
	for _, t := range r.Tags {
		if !strings.HasPrefix(t, prefix) {
			continue
		}
		rest := t[len(prefix):]
		i := strings.IndexByte(rest, ':')
		if i < 0 {
			continue
		}
		return rest[i+1:], true
	}
	return "", false
}

// Cigar returns the CIGAR string stored in the "cg" tag, or "" if the record
// has none.
func (r *Record) Cigar() string {
	c, _ := r.Tag("cg")
	return c
}

// Overlap is the shorter of the query and target spans.
func (r *Record) Overlap() int {
	q, t := r.QueryEnd-r.QueryStart, r.TargetEnd-r.TargetStart
	if q < t {
		return q
	}
	return t
}

// String formats the record as a PAF line, without the newline.
func (r *Record) String() string {
	cols := []string{
		r.QueryName,
		strconv.Itoa(r.QueryLen),
		strconv.Itoa(r.QueryStart),
		strconv.Itoa(r.QueryEnd),
		string(r.Strand),
		r.TargetName,
		strconv.Itoa(r.TargetLen),
		strconv.Itoa(r.TargetStart),
		strconv.Itoa(r.TargetEnd),
		strconv.Itoa(r.Matches),
		strconv.Itoa(r.BlockLen),
		strconv.Itoa(r.MapQ),
	}
	return strings.Join(append(cols, r.Tags...), "\t")
}

// parseRecord parses a line that has already been split and filtered.
func parseRecord(cols []string, lineno int) (Record, error) {
	r := Record{
		QueryName:  cols[0],
		Strand:     '+',
		TargetName: cols[5],
	}
	if len(cols[4]) > 0 {
		r.Strand = cols[4][0]
	}
	ints := []struct {
		col int
		dst *int
	}{
		{1, &r.QueryLen}, {2, &r.QueryStart}, {3, &r.QueryEnd},
		{6, &r.TargetLen}, {7, &r.TargetStart}, {8, &r.TargetEnd},
		{9, &r.Matches}, {10, &r.BlockLen}, {11, &r.MapQ},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(cols[f.col])
		if err != nil {
			return Record{}, errors.E(errors.Integrity, err,
				fmt.Sprintf("line %d: column %d: bad number %q", lineno, f.col+1, cols[f.col]))
		}
		*f.dst = v
	}
	if len(cols) > NumColumns {
		r.Tags = append([]string(nil), cols[NumColumns:]...)
	}
	return r, nil
}

// Read parses the PAF data in r and returns the records aligning the named
// query to the named target, in file order.  Both names are required and
// matched exactly.  Lines with fewer than NumColumns columns are skipped.  A
// malformed number on a matching line fails the whole call with an error of
// kind errors.Integrity.
func Read(r io.Reader, query, target string) ([]Record, error) {
	if query == "" || target == "" {
		return nil, errors.E(errors.Invalid, "paf: query and target names are required")
	}
	var (
		recs    []Record
		scanner = bufio.NewScanner(r)
		lineno  int
	)
	scanner.Buffer(make([]byte, 64<<10), maxLineSize)
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < NumColumns {
			continue
		}
		if cols[0] != query || cols[5] != target {
			continue
		}
		rec, err := parseRecord(cols, lineno)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "paf: read")
	}
	return recs, nil
}

// ReadFile is Read on the file at path.  Files with a compression suffix
// (e.g. ".gz") are decompressed transparently.
func ReadFile(ctx context.Context, path, query, target string) (_ []Record, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open PAF", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, path); u != nil {
		r = u
	}
	recs, err := Read(r, query, target)
	if err != nil {
		return nil, errors.E(err, path)
	}
	log.Debug.Printf("paf: %s: %d records for %s vs %s", path, len(recs), query, target)
	return recs, nil
}

// Suggest orders records by decreasing Overlap and keeps the first limit of
// them.  Records with equal overlap keep their relative order.  A
// non-positive limit means DefaultSuggestLimit.  The argument is not
// modified.
func Suggest(recs []Record, limit int) []Record {
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	sorted := append([]Record(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Overlap() > sorted[j].Overlap()
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// SuggestFile reads the matching records from the PAF file at path and
// returns the limit largest overlaps.
func SuggestFile(ctx context.Context, path, query, target string, limit int) ([]Record, error) {
	recs, err := ReadFile(ctx, path, query, target)
	if err != nil {
		return nil, err
	}
	return Suggest(recs, limit), nil
}

// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package stitch joins hand-picked segments of one or more FASTA files into
// a single sequence, reports on each junction, and records the decision in
// a JSON session log next to the output.
//
// Example:
//
//   req := stitch.Request{
//     TargetPath: "asm.fa",
//     QueryPath:  "patch.fa",
//     Segments: []stitch.Segment{
//       {Source: "t", Name: "ctg1", Start: 0, End: 1000},
//       {Source: "q", Name: "p7", Start: 20, End: 500, Reverse: true},
//     },
//     OutputPath: "out.fa",
//     Opts:       stitch.DefaultOpts,
//   }
//   res, err := stitch.Stitch(ctx, req)
package stitch

import (
	"context"
	"fmt"
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/gapneedle/encoding/fasta"
)

// Loader reads a whole FASTA file.
type Loader func(ctx context.Context, path string) (fasta.Fasta, error)

// ReadFile is the default Loader.
func ReadFile(ctx context.Context, path string) (fasta.Fasta, error) {
	return fasta.ReadFile(ctx, path)
}

// Request describes one assembly.
type Request struct {
	// TargetPath and QueryPath are the FASTA files of sources "t" and "q".
	// Each may be empty if no segment refers to it.
	TargetPath string
	QueryPath  string
	// Extras maps additional source keys to FASTA paths.
	Extras map[string]string
	// Segments are joined in order.
	Segments []Segment
	// OutputPath is the merged FASTA file.  The session log is written to
	// OutputPath+SessionSuffix.
	OutputPath string
	Opts       Opts
	// Loader reads the source files.  If nil, ReadFile is used.
	Loader Loader
}

// Result describes a completed assembly.
type Result struct {
	OutputPath   string
	SessionPath  string
	OutputName   string
	MergedLength int
	Breakpoints  []Breakpoint
	// Fingerprint is the farm fingerprint of the merged sequence.
	Fingerprint uint64
}

// Sources returns the source key to path mapping of the request.
func (r *Request) Sources() map[string]string {
	m := make(map[string]string, len(r.Extras)+2)
	for k, v := range r.Extras {
		m[k] = v
	}
	if r.TargetPath != "" {
		m[SourceTarget] = r.TargetPath
	}
	if r.QueryPath != "" {
		m[SourceQuery] = r.QueryPath
	}
	return m
}

func (r *Request) sourcePath(key string) (string, bool) {
	switch key {
	case SourceTarget:
		return r.TargetPath, r.TargetPath != ""
	case SourceQuery:
		return r.QueryPath, r.QueryPath != ""
	}
	path, ok := r.Extras[key]
	return path, ok && path != ""
}

// resolve loads every source referenced by the segments, once each, and
// cuts out the pieces.
func resolve(ctx context.Context, req *Request) ([]string, error) {
	loader := req.Loader
	if loader == nil {
		loader = ReadFile
	}
	var (
		sources = map[string]fasta.Fasta{}
		rcCache = map[string]string{}
		pieces  = make([]string, len(req.Segments))
	)
	for i, seg := range req.Segments {
		fa, ok := sources[seg.Source]
		if !ok {
			path, ok := req.sourcePath(seg.Source)
			if !ok {
				return nil, errors.E(errors.NotExist, fmt.Sprintf("segment %d (%v): unknown segment source %q", i, seg, seg.Source))
			}
			var err error
			if fa, err = loader(ctx, path); err != nil {
				return nil, errors.E(err, fmt.Sprintf("segment %d: load source %q", i, seg.Source))
			}
			sources[seg.Source] = fa
		}
		seq, err := fasta.Seq(fa, seg.Name)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("segment %d (%v)", i, seg))
		}
		if seg.Reverse {
			key := seg.Source + ":" + seg.Name
			rc, ok := rcCache[key]
			if !ok {
				rc = fasta.ReverseComplement(seq)
				rcCache[key] = rc
			}
			seq = rc
		}
		if seg.Start < 0 || seg.End <= seg.Start || seg.End > len(seq) {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("segment %d (%v): invalid range for sequence of length %d", i, seg, len(seq)))
		}
		pieces[i] = seq[seg.Start:seg.End]
	}
	return pieces, nil
}

// Stitch resolves the segments of req, writes their concatenation as a
// single FASTA record to req.OutputPath, and records the assembly in a
// session log at req.OutputPath+SessionSuffix.
//
// Nothing is written unless every segment resolves.  An unknown source or
// sequence is an error of kind errors.NotExist; an empty request or a bad
// range is errors.Invalid.  If either output cannot be written, neither is
// left behind.
func Stitch(ctx context.Context, req Request) (Result, error) {
	if len(req.Segments) == 0 {
		return Result{}, errors.E(errors.Invalid, "stitch: no segments")
	}
	if req.OutputPath == "" {
		return Result{}, errors.E(errors.Invalid, "stitch: no output path")
	}
	opts := req.Opts.normalize()
	pieces, err := resolve(ctx, &req)
	if err != nil {
		return Result{}, err
	}

	merged := strings.Join(pieces, "")
	res := Result{
		OutputPath:   req.OutputPath,
		SessionPath:  req.OutputPath + SessionSuffix,
		OutputName:   opts.OutputName,
		MergedLength: len(merged),
		Fingerprint:  farm.Fingerprint64([]byte(merged)),
	}
	for i := 0; i+1 < len(pieces); i++ {
		res.Breakpoints = append(res.Breakpoints, analyzeJunction(i, pieces[i], pieces[i+1], opts))
	}

	if err := fasta.WriteFile(ctx, res.OutputPath, fasta.Record{Name: opts.OutputName, Seq: merged}); err != nil {
		return Result{}, err
	}
	session := newSession(&req, opts, res)
	if err := WriteSession(ctx, res.SessionPath, session); err != nil {
		removeFile(ctx, res.OutputPath)
		return Result{}, err
	}
	log.Printf("stitch: wrote %s: %d segments, %d bp, %d junctions",
		res.OutputPath, len(pieces), res.MergedLength, len(res.Breakpoints))
	for _, bp := range res.Breakpoints {
		log.Debug.Printf("stitch: junction %d: left=%v (%d) right=%v (%d)", bp.Index,
			bp.LeftFlankMatch, bp.LeftFlankMismatches, bp.RightFlankMatch, bp.RightFlankMismatches)
	}
	return res, nil
}

// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package align produces PAF alignments of one query sequence against one
// target sequence.  The aligner itself is a black box behind the Aligner
// interface; the existence of the PAF file at the expected path means the
// alignment is complete.
package align

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/file"
)

// DefaultOutputDir is the directory under which DefaultPAFPath places PAF
// files when Request.OutputDir is empty.
const DefaultOutputDir = "resources"

// Request describes one pairwise alignment.
type Request struct {
	// TargetPath and QueryPath are FASTA files; TargetSeq and QuerySeq name
	// the sequences within them.
	TargetPath string
	QueryPath  string
	TargetSeq  string
	QuerySeq   string
	// Preset is passed to minimap2 -x.
	Preset string
	// Threads is passed to minimap2 -t.
	Threads int
	// ReverseQuery aligns the reverse complement of the query sequence.
	ReverseQuery bool
	// ReuseExisting skips the alignment if the PAF file already exists.
	ReuseExisting bool
	// OutputPath is the PAF file.  If empty, DefaultPAFPath is used.
	OutputPath string
	// OutputDir is the base directory for DefaultPAFPath.
	OutputDir string
}

// DefaultRequest sets the default values to Request.
var DefaultRequest = Request{
	Preset:        "asm10", // -preset
	Threads:       4,       // -threads
	ReuseExisting: true,    // -force negates
}

// Result describes the outcome of an alignment.
type Result struct {
	// PAFPath is the PAF file holding the alignment.
	PAFPath string
	// Skipped is set if an existing PAF file was reused.
	Skipped  bool
	Warnings []string
}

// Aligner aligns a query sequence to a target sequence.
type Aligner interface {
	// Align produces the PAF file for the request, or finds an existing
	// one.
	Align(ctx context.Context, req Request) (Result, error)
}

// safePart replaces every character outside [A-Za-z0-9._-] with '_'.
func safePart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9',
			r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}

// stem is the file name of path without its last extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DefaultPAFPath computes where the PAF for req is stored when
// req.OutputPath is empty:
//
//   <dir>/<qfile>.<qseq>[_rc]_vs_<tfile>.<tseq>/<qfile>.<qseq>[_rc]_vs_<tfile>.<tseq>.<preset>.paf
//
// where <dir> is req.OutputDir (DefaultOutputDir if empty), <qfile> and
// <tfile> are the FASTA file names without their extension, and characters
// other than letters, digits, '.', '_' and '-' are replaced with '_'.
func DefaultPAFPath(req Request) string {
	query := safePart(req.QuerySeq)
	if req.ReverseQuery {
		query += "_rc"
	}
	preset := "default"
	if req.Preset != "" {
		preset = safePart(req.Preset)
	}
	name := safePart(stem(req.QueryPath)) + "." + query + "_vs_" + safePart(stem(req.TargetPath)) + "." + safePart(req.TargetSeq)
	dir := req.OutputDir
	if dir == "" {
		dir = DefaultOutputDir
	}
	return filepath.Join(dir, name, name+"."+preset+".paf")
}

// PAFPath returns req.OutputPath, or DefaultPAFPath(req) if it is empty.
func PAFPath(req Request) string {
	if req.OutputPath != "" {
		return req.OutputPath
	}
	return DefaultPAFPath(req)
}

// exists reports whether a complete PAF file is present at path.
func exists(ctx context.Context, path string) bool {
	_, err := file.Stat(ctx, path)
	return err == nil
}

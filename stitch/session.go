// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package stitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Session is the durable record of one Stitch call, stored as JSON.
type Session struct {
	OutputPath   string       `json:"output_fasta"`
	OutputName   string       `json:"output_name"`
	MergedLength int          `json:"merged_length"`
	ContextBp    int          `json:"context_bp"`
	FlankBp      int          `json:"flank_bp,omitempty"`
	SegmentList  []Segment    `json:"segments"`
	Breakpoints  []Breakpoint `json:"breakpoints"`
	// Sources maps source keys to the FASTA paths used.
	Sources map[string]string `json:"sources,omitempty"`
	// Fingerprint is Result.Fingerprint as 16 hex digits.
	Fingerprint string `json:"fingerprint,omitempty"`
}

func newSession(req *Request, opts Opts, res Result) *Session {
	bps := res.Breakpoints
	if bps == nil {
		bps = []Breakpoint{}
	}
	return &Session{
		OutputPath:   res.OutputPath,
		OutputName:   res.OutputName,
		MergedLength: res.MergedLength,
		ContextBp:    opts.ContextBp,
		FlankBp:      opts.FlankBp,
		SegmentList:  append([]Segment(nil), req.Segments...),
		Breakpoints:  bps,
		Sources:      req.Sources(),
		Fingerprint:  fmt.Sprintf("%016x", res.Fingerprint),
	}
}

// Segments returns a copy of the segment list of the session.
func (s *Session) Segments() []Segment {
	return append([]Segment(nil), s.SegmentList...)
}

// FingerprintValue parses Fingerprint.  It returns false if the session
// does not carry one.
func (s *Session) FingerprintValue() (uint64, bool) {
	v, err := strconv.ParseUint(s.Fingerprint, 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// WriteSession stores s as indented JSON at path.  On error, the partially
// written file is removed.
func WriteSession(ctx context.Context, path string, s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.E(err, "encode session")
	}
	data = append(data, '\n')
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create session", path)
	}
	if _, err := out.Writer(ctx).Write(data); err != nil {
		_ = out.Close(ctx)
		removeFile(ctx, path)
		return errors.E(err, "write session", path)
	}
	if err := out.Close(ctx); err != nil {
		removeFile(ctx, path)
		return errors.E(err, "close session", path)
	}
	return nil
}

// LoadSession reads a session log written by Stitch.  A log that is not
// valid JSON, or has no segments, is an error of kind errors.Integrity.
func LoadSession(ctx context.Context, path string) (_ *Session, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open session", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return nil, errors.E(err, "read session", path)
	}
	s := &Session{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, errors.E(errors.Integrity, err, "parse session", path)
	}
	if len(s.SegmentList) == 0 {
		return nil, errors.E(errors.Integrity, "session has no segments", path)
	}
	return s, nil
}

// Resume rebuilds the request that produced s.  Source paths, segments, the
// output path and the output name are taken from base when set there, so
// that a session can be replayed against relocated inputs or into a new
// output.  The Loader always comes from base.
func Resume(s *Session, base Request) Request {
	req := Request{
		TargetPath: s.Sources[SourceTarget],
		QueryPath:  s.Sources[SourceQuery],
		Extras:     map[string]string{},
		Segments:   s.Segments(),
		OutputPath: s.OutputPath,
		Opts: Opts{
			ContextBp:  s.ContextBp,
			FlankBp:    s.FlankBp,
			OutputName: s.OutputName,
		},
		Loader: base.Loader,
	}
	for k, v := range s.Sources {
		if k != SourceTarget && k != SourceQuery {
			req.Extras[k] = v
		}
	}
	if base.TargetPath != "" {
		req.TargetPath = base.TargetPath
	}
	if base.QueryPath != "" {
		req.QueryPath = base.QueryPath
	}
	for k, v := range base.Extras {
		req.Extras[k] = v
	}
	if base.OutputPath != "" {
		req.OutputPath = base.OutputPath
	}
	if base.Opts.OutputName != "" {
		req.Opts.OutputName = base.Opts.OutputName
	}
	if len(base.Segments) > 0 {
		req.Segments = append([]Segment(nil), base.Segments...)
	}
	return req
}

func removeFile(ctx context.Context, path string) {
	if err := file.Remove(ctx, path); err != nil {
		log.Debug.Printf("stitch: remove %s: %v", path, err)
	}
}

// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package workbench ties the gap-closing operations together for one
// interactive session.  A Workbench owns the aligner and caches, per FASTA
// file, both the indexed store and the whole-file contents, so repeated
// fetches and stitches do not re-read the inputs.
//
// Caches are keyed by canonical path (absolute, cleaned, symlinks
// resolved).  They are never refreshed on their own: after a FASTA file
// changes on disk, call Invalidate or Reindex.
package workbench

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/gapneedle/align"
	"github.com/grailbio/gapneedle/coord"
	"github.com/grailbio/gapneedle/encoding/fasta"
	"github.com/grailbio/gapneedle/encoding/paf"
	"github.com/grailbio/gapneedle/stitch"
)

// Opts configures a Workbench.
type Opts struct {
	// Aligner runs alignments.  If nil, a Minimap2 aligner reading through
	// the workbench's indexed stores is used.
	Aligner align.Aligner
	// Parallelism bounds the number of files Preload indexes at once.  Zero
	// means one per file.
	Parallelism int
	// IndexedSources makes Stitch read segment sources through the indexed
	// stores instead of loading whole files into memory.
	IndexedSources bool
}

// entry holds the cached state of one FASTA file.  mu serializes first use
// of the file.
type entry struct {
	mu      sync.Mutex
	indexed *fasta.Indexed
	content fasta.Fasta
}

// Workbench is safe for concurrent use.
type Workbench struct {
	opts    Opts
	aligner align.Aligner

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Workbench.
func New(opts Opts) *Workbench {
	w := &Workbench{opts: opts, entries: map[string]*entry{}}
	w.aligner = opts.Aligner
	if w.aligner == nil {
		w.aligner = &align.Minimap2{Open: w.Indexed}
	}
	return w
}

// canonicalPath is the cache key of path.  Paths with a URL scheme are only
// cleaned.
func canonicalPath(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func (w *Workbench) entry(path string) *entry {
	key := canonicalPath(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[key]
	if !ok {
		e = &entry{}
		w.entries[key] = e
	}
	return e
}

// Indexed returns the indexed store of the FASTA file at path, loading or
// building its index on first use.  Failures are not cached.
func (w *Workbench) Indexed(ctx context.Context, path string) (*fasta.Indexed, error) {
	e := w.entry(path)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.indexed == nil {
		x, err := fasta.OpenIndexed(ctx, path)
		if err != nil {
			return nil, err
		}
		e.indexed = x
	}
	return e.indexed, nil
}

// Load returns the whole contents of the FASTA file at path, reading it on
// first use.  It has the signature of a stitch.Loader.
func (w *Workbench) Load(ctx context.Context, path string) (fasta.Fasta, error) {
	e := w.entry(path)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.content == nil {
		fa, err := fasta.ReadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		e.content = fa
	}
	return e.content, nil
}

// LoadIndexed returns the indexed store of the FASTA file at path as a
// fasta.Fasta.  It has the signature of a stitch.Loader.
func (w *Workbench) LoadIndexed(ctx context.Context, path string) (fasta.Fasta, error) {
	x, err := w.Indexed(ctx, path)
	if err != nil {
		return nil, err
	}
	return x, nil
}

// Invalidate drops everything cached for the FASTA file at path.  The index
// sidecar on disk is left alone.
func (w *Workbench) Invalidate(path string) {
	key := canonicalPath(path)
	w.mu.Lock()
	delete(w.entries, key)
	w.mu.Unlock()
	log.Debug.Printf("workbench: invalidated %s", key)
}

// Reindex rebuilds the index sidecar of the FASTA file at path and drops
// the cached state of the file.
func (w *Workbench) Reindex(ctx context.Context, path string) error {
	e := w.entry(path)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fasta.BuildIndexFile(ctx, path); err != nil {
		return err
	}
	e.indexed, e.content = nil, nil
	return nil
}

// Reset drops all cached state.
func (w *Workbench) Reset() {
	w.mu.Lock()
	w.entries = map[string]*entry{}
	w.mu.Unlock()
}

// Fetch reads bases [start, end) of sequence name in the FASTA file at
// path.  See fasta.Indexed.Fetch.
func (w *Workbench) Fetch(ctx context.Context, path, name string, start, end int64) (string, error) {
	x, err := w.Indexed(ctx, path)
	if err != nil {
		return "", err
	}
	return x.Fetch(ctx, name, start, end)
}

// Preload opens the indexed stores of the given files in parallel.
func (w *Workbench) Preload(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	n := w.opts.Parallelism
	if n <= 0 || n > len(paths) {
		n = len(paths)
	}
	return traverse.Limit(n).Each(len(paths), func(i int) error {
		_, err := w.Indexed(ctx, paths[i])
		return err
	})
}

// Align runs the workbench's aligner.
func (w *Workbench) Align(ctx context.Context, req align.Request) (align.Result, error) {
	return w.aligner.Align(ctx, req)
}

// Records reads the alignments of query against target from a PAF file.
func (w *Workbench) Records(ctx context.Context, pafPath, query, target string) ([]paf.Record, error) {
	return paf.ReadFile(ctx, pafPath, query, target)
}

// Suggest returns the limit largest alignments of query against target.
func (w *Workbench) Suggest(ctx context.Context, pafPath, query, target string, limit int) ([]paf.Record, error) {
	return paf.SuggestFile(ctx, pafPath, query, target, limit)
}

// Mapping is the outcome of mapping a query position through one record.
type Mapping struct {
	Record paf.Record
	Result coord.Result
}

// MapQuery maps the query position qpos through every alignment of query
// against target in the PAF file, in file order.
func (w *Workbench) MapQuery(ctx context.Context, pafPath, query, target string, qpos int) ([]Mapping, error) {
	recs, err := w.Records(ctx, pafPath, query, target)
	if err != nil {
		return nil, err
	}
	mappings := make([]Mapping, len(recs))
	for i := range recs {
		mappings[i] = Mapping{Record: recs[i], Result: coord.Map(&recs[i], qpos)}
	}
	return mappings, nil
}

// Stitch runs stitch.Stitch, reading the sources through the workbench's
// caches unless req has its own Loader.
func (w *Workbench) Stitch(ctx context.Context, req stitch.Request) (stitch.Result, error) {
	if req.Loader == nil {
		req.Loader = w.Load
		if w.opts.IndexedSources {
			req.Loader = w.LoadIndexed
		}
	}
	return stitch.Stitch(ctx, req)
}

// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/gapneedle/encoding/fasta"
	"v.io/x/lib/envvar"
	"v.io/x/lib/lookpath"
)

// Opener returns the indexed store of a FASTA file.
type Opener func(ctx context.Context, path string) (*fasta.Indexed, error)

// Minimap2 is an Aligner that runs the minimap2 executable.
//
// The two sequences are first copied out of their FASTA files into a
// temporary directory, so that minimap2 does not index whole assemblies.
// The PAF output is buffered and written only after minimap2 succeeds.
type Minimap2 struct {
	// Binary is the minimap2 executable.  If empty, "minimap2" is looked up
	// in $PATH.
	Binary string
	// Env is the environment of the command, as "KEY=value" pairs.  If nil,
	// os.Environ() is used.
	Env []string
	// ExtraArgs are appended to the minimap2 options.
	ExtraArgs []string
	// Open opens the input FASTA files.  If nil, fasta.OpenIndexed is used.
	Open Opener
}

func (m *Minimap2) binary() (string, error) {
	env := m.Env
	if env == nil {
		env = os.Environ()
	}
	name := m.Binary
	if name == "" {
		name = "minimap2"
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return name, nil
	}
	path, err := lookpath.Look(envvar.SliceToMap(env), name)
	if err != nil {
		return "", errors.E(errors.NotExist, err, "minimap2 executable")
	}
	return path, nil
}

// extract writes sequence seqName of the FASTA file at path to dst,
// reverse-complemented if reverse is set.
func (m *Minimap2) extract(ctx context.Context, dst, path, seqName string, reverse bool) error {
	open := m.Open
	if open == nil {
		open = fasta.OpenIndexed
	}
	fa, err := open(ctx, path)
	if err != nil {
		return err
	}
	ent, err := fa.Entry(seqName)
	if err != nil {
		return errors.E(err, path)
	}
	seq, err := fa.Fetch(ctx, seqName, 0, ent.Length)
	if err != nil {
		return err
	}
	if reverse {
		seq = fasta.ReverseComplement(seq)
	}
	return fasta.WriteFile(ctx, dst, fasta.Record{Name: seqName, Seq: seq})
}

// Align implements Aligner.
func (m *Minimap2) Align(ctx context.Context, req Request) (Result, error) {
	if req.TargetSeq == "" || req.QuerySeq == "" {
		return Result{}, errors.E(errors.Invalid, "align: target and query sequence names are required")
	}
	pafPath := PAFPath(req)
	if req.ReuseExisting && exists(ctx, pafPath) {
		log.Printf("align: reusing %s", pafPath)
		return Result{PAFPath: pafPath, Skipped: true, Warnings: []string{"reused existing paf"}}, nil
	}
	bin, err := m.binary()
	if err != nil {
		return Result{}, err
	}

	tmpDir, err := ioutil.TempDir("", "gapneedle_")
	if err != nil {
		return Result{}, errors.E(err, "align: tempdir")
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			log.Error.Printf("align: remove %s: %v", tmpDir, err)
		}
	}()
	targetFA := filepath.Join(tmpDir, "target.fa")
	queryFA := filepath.Join(tmpDir, "query.fa")
	if err := m.extract(ctx, targetFA, req.TargetPath, req.TargetSeq, false); err != nil {
		return Result{}, errors.E(err, "align: extract target")
	}
	if err := m.extract(ctx, queryFA, req.QueryPath, req.QuerySeq, req.ReverseQuery); err != nil {
		return Result{}, errors.E(err, "align: extract query")
	}

	threads := req.Threads
	if threads <= 0 {
		threads = DefaultRequest.Threads
	}
	args := []string{"-c"}
	if req.Preset != "" {
		args = append(args, "-x", req.Preset)
	}
	args = append(args, "-t", strconv.Itoa(threads))
	args = append(args, m.ExtraArgs...)
	args = append(args, targetFA, queryFA)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = m.Env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.Debug.Printf("align: %s %s", bin, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return Result{}, errors.E(err, fmt.Sprintf("minimap2 failed: %s", strings.TrimSpace(stderr.String())))
	}

	if !strings.Contains(pafPath, "://") {
		if err := os.MkdirAll(filepath.Dir(pafPath), 0777); err != nil {
			return Result{}, errors.E(err, "create PAF directory", pafPath)
		}
	}
	out, err := file.Create(ctx, pafPath)
	if err != nil {
		return Result{}, errors.E(err, "create PAF", pafPath)
	}
	if _, err := out.Writer(ctx).Write(stdout.Bytes()); err != nil {
		_ = out.Close(ctx)
		_ = file.Remove(ctx, pafPath)
		return Result{}, errors.E(err, "write PAF", pafPath)
	}
	if err := out.Close(ctx); err != nil {
		return Result{}, errors.E(err, "close PAF", pafPath)
	}
	log.Printf("align: wrote %s (%d bytes)", pafPath, stdout.Len())
	return Result{PAFPath: pafPath}, nil
}

// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/gapneedle/align"
	"github.com/grailbio/gapneedle/coord"
	"github.com/grailbio/gapneedle/encoding/fasta"
	"github.com/grailbio/gapneedle/encoding/paf"
	"github.com/grailbio/gapneedle/stitch"
	"github.com/grailbio/gapneedle/workbench"
	"v.io/x/lib/cmdline"
)

// sourceFlags collects repeated -x key=path flags.
type sourceFlags map[string]string

func (f sourceFlags) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f[k]
	}
	return strings.Join(parts, ",")
}

func (f sourceFlags) Set(v string) error {
	eq := strings.IndexByte(v, '=')
	if eq <= 0 || eq == len(v)-1 {
		return fmt.Errorf("%q: want key=path", v)
	}
	key := v[:eq]
	if key == stitch.SourceTarget || key == stitch.SourceQuery {
		return fmt.Errorf("%q: key %q is reserved, use -t or -q", v, key)
	}
	f[key] = v[eq+1:]
	return nil
}

// parseRegion parses "name" or "name:start-end".  The name may contain
// colons; only a trailing start-end is treated as a range.
func parseRegion(str string) (name string, start, end int64, err error) {
	colon := strings.LastIndexByte(str, ':')
	if colon < 0 {
		return str, 0, -1, nil
	}
	rng := str[colon+1:]
	dash := strings.IndexByte(rng, '-')
	if dash < 0 {
		return str, 0, -1, nil
	}
	if start, err = strconv.ParseInt(rng[:dash], 10, 64); err != nil {
		return "", 0, 0, errors.E(errors.Invalid, err, fmt.Sprintf("region %q", str))
	}
	if end, err = strconv.ParseInt(rng[dash+1:], 10, 64); err != nil {
		return "", 0, 0, errors.E(errors.Invalid, err, fmt.Sprintf("region %q", str))
	}
	return str[:colon], start, end, nil
}

// indexSummary returns the number of sequences and the total number of
// bases listed in the index of the FASTA file at path.
func indexSummary(ctx context.Context, path string) (nseq int, bases uint64, err error) {
	in, err := file.Open(ctx, fasta.IndexPath(path))
	if err != nil {
		return 0, 0, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	lengths, err := fasta.FaiToReferenceLengths(in.Reader(ctx))
	if err != nil {
		return 0, 0, err
	}
	for _, n := range lengths {
		bases += n
	}
	return len(lengths), bases, nil
}

func newCmdFaidx() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "faidx",
		Short:    "Rebuild the .fai index of FASTA files",
		ArgsName: "fasta...",
		Long: `
For each file, prints the index path, the number of sequences and the total
number of bases.`,
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("faidx takes at least one FASTA path")
		}
		ctx := vcontext.Background()
		wb := workbench.New(workbench.Opts{})
		var (
			nseqs = make([]int, len(argv))
			bases = make([]uint64, len(argv))
		)
		err := traverse.Each(len(argv), func(i int) (err error) {
			if err = wb.Reindex(ctx, argv[i]); err != nil {
				return err
			}
			nseqs[i], bases[i], err = indexSummary(ctx, argv[i])
			return err
		})
		if err != nil {
			return err
		}
		out := tsv.NewWriter(env.Stdout)
		for i, path := range argv {
			out.WriteString(fasta.IndexPath(path))
			out.WriteInt64(int64(nseqs[i]))
			out.WriteInt64(int64(bases[i]))
			if err := out.EndLine(); err != nil {
				return err
			}
		}
		return out.Flush()
	})
	return cmd
}

func newCmdFetch() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "fetch",
		Short:    "Print sequences or sequence ranges of an indexed FASTA file",
		ArgsName: "fasta name[:start-end]...",
		Long: `
Ranges are 0-based and half-open, and are clamped to the sequence.  A name
without a range prints the whole sequence.`,
	}
	rc := cmd.Flags.Bool("rc", false, "Print the reverse complement of each range")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) < 2 {
			return fmt.Errorf("fetch takes a FASTA path and at least one region, but got %v", argv)
		}
		ctx := vcontext.Background()
		x, err := fasta.OpenIndexed(ctx, argv[0])
		if err != nil {
			return err
		}
		for _, region := range argv[1:] {
			name, start, end, err := parseRegion(region)
			if err != nil {
				return err
			}
			if end < 0 {
				n, err := x.Len(name)
				if err != nil {
					return err
				}
				end = int64(n)
			}
			seq, err := x.Fetch(ctx, name, start, end)
			if err != nil {
				return err
			}
			if *rc {
				seq = fasta.ReverseComplement(seq)
				region += ":rc"
			}
			if err := fasta.Write(env.Stdout, region, seq); err != nil {
				return err
			}
		}
		return nil
	})
	return cmd
}

func newCmdAlign() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "align",
		Short: "Align one query sequence against one target sequence with minimap2",
		Long: `
The PAF file is written to -o, or by default under -dir in a path derived
from the inputs.  An existing PAF is reused unless -force is given.  With
-cache-only, minimap2 is never run.`,
	}
	req := align.DefaultRequest
	cmd.Flags.StringVar(&req.TargetPath, "t", "", "Target FASTA file")
	cmd.Flags.StringVar(&req.QueryPath, "q", "", "Query FASTA file")
	cmd.Flags.StringVar(&req.TargetSeq, "tseq", "", "Target sequence name")
	cmd.Flags.StringVar(&req.QuerySeq, "qseq", "", "Query sequence name")
	cmd.Flags.StringVar(&req.Preset, "preset", req.Preset, "minimap2 -x preset. Empty means none")
	cmd.Flags.IntVar(&req.Threads, "threads", req.Threads, "minimap2 threads")
	cmd.Flags.BoolVar(&req.ReverseQuery, "rc", false, "Align the reverse complement of the query")
	cmd.Flags.StringVar(&req.OutputPath, "o", "", "Output PAF path")
	cmd.Flags.StringVar(&req.OutputDir, "dir", align.DefaultOutputDir, "Directory of the derived PAF path")
	force := cmd.Flags.Bool("force", false, "Run minimap2 even if the PAF exists")
	cacheOnly := cmd.Flags.Bool("cache-only", false, "Only look for an existing PAF")
	binary := cmd.Flags.String("minimap2", "", "minimap2 binary. By default it is looked up in PATH")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("align takes no arguments, but got %v", argv)
		}
		req.ReuseExisting = !*force
		var aligner align.Aligner = align.CacheOnly{}
		m := &align.Minimap2{Binary: *binary}
		if !*cacheOnly {
			aligner = m
		}
		wb := workbench.New(workbench.Opts{Aligner: aligner})
		m.Open = wb.Indexed
		res, err := wb.Align(vcontext.Background(), req)
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(env.Stderr, "warning: %s\n", w)
		}
		fmt.Fprintln(env.Stdout, res.PAFPath)
		return nil
	})
	return cmd
}

func newCmdSuggest() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "suggest",
		Short:    "Print the largest alignments of a query against a target",
		ArgsName: "paf query target",
	}
	limit := cmd.Flags.Int("limit", paf.DefaultSuggestLimit, "Maximum number of alignments printed")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("suggest takes paf query target, but got %v", argv)
		}
		recs, err := paf.SuggestFile(vcontext.Background(), argv[0], argv[1], argv[2], *limit)
		if err != nil {
			return err
		}
		out := tsv.NewWriter(env.Stdout)
		out.WriteString("OVERLAP\tSTRAND\tQUERY\tTARGET\tMAPQ")
		if err := out.EndLine(); err != nil {
			return err
		}
		for _, r := range recs {
			out.WriteInt64(int64(r.Overlap()))
			out.WriteString(string(r.Strand))
			out.WriteString(fmt.Sprintf("%d-%d", r.QueryStart, r.QueryEnd))
			out.WriteString(fmt.Sprintf("%d-%d", r.TargetStart, r.TargetEnd))
			out.WriteInt64(int64(r.MapQ))
			if err := out.EndLine(); err != nil {
				return err
			}
		}
		return out.Flush()
	})
	return cmd
}

type jsonMapping struct {
	Record string       `json:"record"`
	Result coord.Result `json:"result"`
}

func printMappings(w io.Writer, ms []workbench.Mapping, asJSON bool) error {
	if asJSON {
		out := make([]jsonMapping, len(ms))
		for i, m := range ms {
			out[i] = jsonMapping{Record: m.Record.String(), Result: m.Result}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	for i, m := range ms {
		if _, err := fmt.Fprintf(w, "%d\t%c\t%d-%d\t%s\n", i, m.Record.Strand,
			m.Record.TargetStart, m.Record.TargetEnd, m.Result); err != nil {
			return err
		}
	}
	return nil
}

func newCmdMap() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "map",
		Short:    "Map a query position onto the target through every alignment",
		ArgsName: "paf query target qpos",
	}
	asJSON := cmd.Flags.Bool("json", false, "Print full results as JSON")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 4 {
			return fmt.Errorf("map takes paf query target qpos, but got %v", argv)
		}
		qpos, err := strconv.Atoi(argv[3])
		if err != nil {
			return errors.E(errors.Invalid, err, "qpos")
		}
		wb := workbench.New(workbench.Opts{Aligner: align.CacheOnly{}})
		ms, err := wb.MapQuery(vcontext.Background(), argv[0], argv[1], argv[2], qpos)
		if err != nil {
			return err
		}
		if len(ms) == 0 {
			log.Printf("map: no alignments of %s against %s in %s", argv[1], argv[2], argv[0])
		}
		return printMappings(env.Stdout, ms, *asJSON)
	})
	return cmd
}

func newCmdStitch() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "stitch",
		Short:    "Join FASTA segments into one sequence",
		ArgsName: "segment...",
		Long: `
Each segment is source:name:start-end[:rc].  The merged FASTA is written to
-o and the session log to the same path plus .session.json.  With -resume,
segments, sources and options come from a session log unless given on the
command line.`,
	}
	var (
		opts    = stitch.DefaultOpts
		extras  = sourceFlags{}
		req     stitch.Request
		resume  string
		verbose bool
		indexed bool
	)
	cmd.Flags.StringVar(&req.TargetPath, "t", "", "FASTA file of source t")
	cmd.Flags.StringVar(&req.QueryPath, "q", "", "FASTA file of source q")
	cmd.Flags.Var(extras, "x", "Additional source, as key=path. May be repeated")
	cmd.Flags.StringVar(&req.OutputPath, "o", "", "Output FASTA path")
	cmd.Flags.StringVar(&opts.OutputName, "name", opts.OutputName, "Name of the merged sequence")
	cmd.Flags.IntVar(&opts.ContextBp, "context", opts.ContextBp, "Bases shown on each side of a junction")
	cmd.Flags.StringVar(&resume, "resume", "", "Session log to replay")
	cmd.Flags.BoolVar(&verbose, "preview", false, "Print the junction previews")
	cmd.Flags.BoolVar(&indexed, "indexed", false, "Read sources through their .fai indexes instead of loading whole files")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		ctx := vcontext.Background()
		for _, arg := range argv {
			seg, err := stitch.ParseSegment(arg)
			if err != nil {
				return err
			}
			req.Segments = append(req.Segments, seg)
		}
		req.Extras = extras
		req.Opts = opts
		if resume != "" {
			s, err := stitch.LoadSession(ctx, resume)
			if err != nil {
				return err
			}
			set := map[string]bool{}
			cmd.Flags.Visit(func(f *flag.Flag) { set[f.Name] = true })
			if !set["name"] {
				req.Opts.OutputName = ""
			}
			req = stitch.Resume(s, req)
			if set["context"] {
				req.Opts.ContextBp = opts.ContextBp
			}
		}
		wb := workbench.New(workbench.Opts{Aligner: align.CacheOnly{}, IndexedSources: indexed})
		res, err := wb.Stitch(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "%s\t%s\t%d\t%016x\n", res.OutputPath, res.OutputName, res.MergedLength, res.Fingerprint)
		for _, bp := range res.Breakpoints {
			fmt.Fprintf(env.Stdout, "junction %d\tleft_flank_match=%v\tright_flank_match=%v\n",
				bp.Index, bp.LeftFlankMatch, bp.RightFlankMatch)
			if verbose {
				fmt.Fprintf(env.Stdout, "  %s\n", bp.Preview)
			}
		}
		return nil
	})
	return cmd
}

// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/gapneedle/encoding/fasta"
	"github.com/grailbio/gapneedle/stitch"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
	"v.io/x/lib/cmdline"
)

func run(t *testing.T, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	env := &cmdline.Env{Stdout: &stdout, Stderr: &stderr, Vars: map[string]string{}}
	err := cmdline.ParseAndRun(newRoot(), env, args)
	return stdout.String(), err
}

func setup(t *testing.T) (dir, target, query string, cleanup func()) {
	dir, cleanup = testutil.TempDir(t, "", "")
	ctx := vcontext.Background()
	target = filepath.Join(dir, "t.fa")
	query = filepath.Join(dir, "q.fa")
	require.NoError(t, fasta.WriteFile(ctx, target,
		fasta.Record{Name: "c1", Seq: "AAAACCCCGGGGTTTT"},
		fasta.Record{Name: "c:2", Seq: "ACGTACGT"}))
	require.NoError(t, fasta.WriteFile(ctx, query, fasta.Record{Name: "p", Seq: "TTGCA"}))
	return
}

func TestParseRegion(t *testing.T) {
	for _, test := range []struct {
		in         string
		name       string
		start, end int64
	}{
		{"c1", "c1", 0, -1},
		{"c1:2-5", "c1", 2, 5},
		{"c:2", "c:2", 0, -1},
		{"c:2:0-3", "c:2", 0, 3},
	} {
		name, start, end, err := parseRegion(test.in)
		require.NoError(t, err, test.in)
		expect.EQ(t, name, test.name, test.in)
		expect.EQ(t, start, test.start, test.in)
		expect.EQ(t, end, test.end, test.in)
	}
	_, _, _, err := parseRegion("c1:x-3")
	expect.NotNil(t, err)
}

func TestSourceFlags(t *testing.T) {
	f := sourceFlags{}
	require.NoError(t, f.Set("b=/x/b.fa"))
	require.NoError(t, f.Set("a=a.fa"))
	expect.EQ(t, f.String(), "a=a.fa,b=/x/b.fa")
	expect.NotNil(t, f.Set("t=t.fa"))
	expect.NotNil(t, f.Set("noequals"))
	expect.NotNil(t, f.Set("k="))
}

func TestFaidxAndFetch(t *testing.T) {
	_, target, _, cleanup := setup(t)
	defer cleanup()

	out, err := run(t, "faidx", target)
	require.NoError(t, err)
	expect.EQ(t, out, fasta.IndexPath(target)+"\t2\t24\n")
	_, err = os.Stat(fasta.IndexPath(target))
	require.NoError(t, err)

	gz := target + ".gz"
	require.NoError(t, fasta.WriteFile(vcontext.Background(), gz, fasta.Record{Name: "z", Seq: "ACGT"}))
	_, err = run(t, "faidx", gz)
	expect.NotNil(t, err)
	_, err = os.Stat(fasta.IndexPath(gz))
	expect.True(t, os.IsNotExist(err))

	out, err = run(t, "fetch", target, "c1:2-6", "c:2")
	require.NoError(t, err)
	expect.EQ(t, out, ">c1:2-6\nAACC\n>c:2\nACGTACGT\n")

	out, err = run(t, "fetch", "-rc", target, "c1:0-6")
	require.NoError(t, err)
	expect.EQ(t, out, ">c1:0-6:rc\nGGTTTT\n")

	_, err = run(t, "fetch", target, "nope")
	expect.NotNil(t, err)
	_, err = run(t, "fetch", target)
	expect.NotNil(t, err)
}

const testPAF = "p\t100\t10\t40\t+\tc1\t120\t20\t50\t25\t30\t60\tcg:Z:30M\n" +
	"p\t100\t0\t90\t-\tc1\t120\t0\t90\t90\t90\t7\tcg:Z:90M\n" +
	"other\t100\t0\t90\t+\tc1\t120\t0\t90\t90\t90\t60\n"

func TestSuggestAndMap(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	pafPath := filepath.Join(dir, "x.paf")
	assert.NoError(t, ioutil.WriteFile(pafPath, []byte(testPAF), 0644))

	out, err := run(t, "suggest", "-limit", "1", pafPath, "p", "c1")
	require.NoError(t, err)
	expect.EQ(t, out, "OVERLAP\tSTRAND\tQUERY\tTARGET\tMAPQ\n90\t-\t0-90\t0-90\t7\n")

	out, err = run(t, "map", pafPath, "p", "c1", "15")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	expect.HasSubstr(t, lines[0], "-> target 25")
	expect.HasSubstr(t, lines[1], "-> target 74")

	out, err = run(t, "map", "-json", pafPath, "p", "c1", "5")
	require.NoError(t, err)
	var ms []struct {
		Record string `json:"record"`
		Result struct {
			Reason    string `json:"reason"`
			TargetPos int    `json:"target_pos"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &ms))
	require.Len(t, ms, 2)
	expect.EQ(t, ms[0].Result.Reason, "out_of_range")
	expect.EQ(t, ms[0].Result.TargetPos, -1)
	expect.EQ(t, ms[1].Result.Reason, "ok")

	_, err = run(t, "map", pafPath, "p", "c1", "x")
	expect.NotNil(t, err)
}

func TestStitchAndResume(t *testing.T) {
	dir, target, query, cleanup := setup(t)
	defer cleanup()
	ctx := vcontext.Background()

	extra := filepath.Join(dir, "e.fa")
	require.NoError(t, fasta.WriteFile(ctx, extra, fasta.Record{Name: "e", Seq: "CCCCCC"}))
	outPath := filepath.Join(dir, "out.fa")
	out, err := run(t, "stitch", "-t", target, "-q", query, "-x", "e="+extra,
		"-o", outPath, "-name", "m", "-context", "2",
		"t:c1:0-4", "q:p:0-5:rc", "e:e:0-2")
	require.NoError(t, err)
	expect.HasSubstr(t, out, outPath+"\tm\t11\t")
	expect.HasSubstr(t, out, "junction 1\t")

	fa, err := fasta.ReadFile(ctx, outPath)
	require.NoError(t, err)
	seq, err := fasta.Seq(fa, "m")
	require.NoError(t, err)
	expect.EQ(t, seq, "AAAATGCAACC")

	s, err := stitch.LoadSession(ctx, outPath+stitch.SessionSuffix)
	require.NoError(t, err)
	expect.EQ(t, s.ContextBp, 2)
	expect.EQ(t, len(s.Segments()), 3)
	expect.EQ(t, s.Sources["e"], extra)

	// Replay into a new output, keeping the recorded name and context.
	outPath2 := filepath.Join(dir, "out2.fa")
	_, err = run(t, "stitch", "-resume", outPath+stitch.SessionSuffix, "-o", outPath2)
	require.NoError(t, err)
	s2, err := stitch.LoadSession(ctx, outPath2+stitch.SessionSuffix)
	require.NoError(t, err)
	expect.EQ(t, s2.OutputName, "m")
	expect.EQ(t, s2.ContextBp, 2)
	expect.EQ(t, s2.Fingerprint, s.Fingerprint)

	outPath3 := filepath.Join(dir, "out3.fa")
	out, err = run(t, "stitch", "-indexed", "-t", target, "-q", query, "-x", "e="+extra,
		"-o", outPath3, "-name", "m", "-context", "2",
		"t:c1:0-4", "q:p:0-5:rc", "e:e:0-2")
	require.NoError(t, err)
	expect.HasSubstr(t, out, outPath3+"\tm\t11\t")
	s3, err := stitch.LoadSession(ctx, outPath3+stitch.SessionSuffix)
	require.NoError(t, err)
	expect.EQ(t, s3.Fingerprint, s.Fingerprint)

	_, err = run(t, "stitch", "-t", target, "-o", filepath.Join(dir, "bad.fa"), "q:p:0-5")
	expect.NotNil(t, err)
	_, err = os.Stat(filepath.Join(dir, "bad.fa"))
	expect.True(t, os.IsNotExist(err))
}

func TestAlignCacheOnly(t *testing.T) {
	dir, target, query, cleanup := setup(t)
	defer cleanup()

	pafPath := filepath.Join(dir, "x.paf")
	args := []string{"align", "-cache-only", "-t", target, "-q", query, "-tseq", "c1", "-qseq", "p", "-o", pafPath}
	_, err := run(t, args...)
	expect.NotNil(t, err)

	require.NoError(t, ioutil.WriteFile(pafPath, []byte(testPAF), 0644))
	out, err := run(t, args...)
	require.NoError(t, err)
	expect.EQ(t, out, pafPath+"\n")
}

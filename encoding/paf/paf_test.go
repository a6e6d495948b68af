// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package paf_test

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/gapneedle/encoding/paf"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

const testPAF = "q1\t100\t10\t40\t+\tt1\t120\t20\t50\t25\t30\t60\ttp:A:P\tcg:Z:30M\n" +
	"q1\t100\t0\t5\t-\tt1\t120\t0\t80\t5\t80\t3\n" +
	"q2\t100\t0\t90\t+\tt1\t120\t0\t90\t90\t90\t60\tcg:Z:90M\n" +
	"short\tline\n" +
	"\n" +
	"q1\t100\t50\t99\t-\tt1\t120\t60\t110\t40\t50\t11\tcg:Z:20M1I28M1D\n" +
	"q1\t100\t0\t10\t+\tt2\t120\t0\t10\t10\t10\t60\n"

func TestRead(t *testing.T) {
	recs, err := paf.Read(strings.NewReader(testPAF), "q1", "t1")
	assert.NoError(t, err)
	assert.EQ(t, len(recs), 3)

	expect.EQ(t, recs[0], paf.Record{
		QueryName: "q1", QueryLen: 100, QueryStart: 10, QueryEnd: 40, Strand: '+',
		TargetName: "t1", TargetLen: 120, TargetStart: 20, TargetEnd: 50,
		Matches: 25, BlockLen: 30, MapQ: 60,
		Tags: []string{"tp:A:P", "cg:Z:30M"},
	})
	expect.EQ(t, recs[0].Cigar(), "30M")
	v, ok := recs[0].Tag("tp")
	expect.True(t, ok)
	expect.EQ(t, v, "P")
	_, ok = recs[0].Tag("t")
	expect.False(t, ok)

	expect.EQ(t, recs[1].Strand, byte('-'))
	expect.EQ(t, len(recs[1].Tags), 0)
	expect.EQ(t, recs[1].Cigar(), "")
	expect.EQ(t, recs[2].Cigar(), "20M1I28M1D")
	expect.EQ(t, recs[2].String(), "q1\t100\t50\t99\t-\tt1\t120\t60\t110\t40\t50\t11\tcg:Z:20M1I28M1D")
}

func TestReadNoMatch(t *testing.T) {
	recs, err := paf.Read(strings.NewReader(testPAF), "t1", "q1")
	assert.NoError(t, err)
	expect.EQ(t, len(recs), 0)
}

func TestReadRequiresNames(t *testing.T) {
	_, err := paf.Read(strings.NewReader(testPAF), "", "t1")
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = paf.Read(strings.NewReader(testPAF), "q1", "")
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestReadBadNumber(t *testing.T) {
	data := testPAF + "q1\t100\t0\tforty\t+\tt1\t120\t0\t40\t40\t40\t60\n"
	_, err := paf.Read(strings.NewReader(data), "q1", "t1")
	expect.True(t, errors.Is(errors.Integrity, err), "err: %v", err)
	assert.Regexp(t, err, "line 8")

	// Malformed lines for other pairs are never parsed.
	recs, err := paf.Read(strings.NewReader(data), "q2", "t1")
	assert.NoError(t, err)
	expect.EQ(t, len(recs), 1)
}

func TestSuggest(t *testing.T) {
	recs, err := paf.Read(strings.NewReader(testPAF), "q1", "t1")
	assert.NoError(t, err)
	got := paf.Suggest(recs, 0)
	assert.EQ(t, len(got), 3)
	// Overlaps are 30, 5 and 49.
	expect.EQ(t, got[0].Overlap(), 49)
	expect.EQ(t, got[1].Overlap(), 30)
	expect.EQ(t, got[2].Overlap(), 5)
	// The input is left alone.
	expect.EQ(t, recs[0].Overlap(), 30)

	got = paf.Suggest(recs, 1)
	assert.EQ(t, len(got), 1)
	expect.EQ(t, got[0].QueryStart, 50)
}

func TestSuggestStableAndDefaultLimit(t *testing.T) {
	var recs []paf.Record
	for i := 0; i < 15; i++ {
		recs = append(recs, paf.Record{QueryStart: 0, QueryEnd: 10, TargetStart: 0, TargetEnd: 10, MapQ: i})
	}
	got := paf.Suggest(recs, -1)
	assert.EQ(t, len(got), paf.DefaultSuggestLimit)
	for i, r := range got {
		expect.EQ(t, r.MapQ, i)
	}
}

func TestReadFile(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()

	plain := filepath.Join(tmpDir, "x.paf")
	assert.NoError(t, ioutil.WriteFile(plain, []byte(testPAF), 0644))

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(testPAF))
	assert.NoError(t, err)
	assert.NoError(t, gz.Close())
	gzPath := filepath.Join(tmpDir, "x.paf.gz")
	assert.NoError(t, ioutil.WriteFile(gzPath, buf.Bytes(), 0644))

	for _, path := range []string{plain, gzPath} {
		recs, err := paf.ReadFile(ctx, path, "q1", "t1")
		assert.NoError(t, err, path)
		expect.EQ(t, len(recs), 3, path)

		recs, err = paf.SuggestFile(ctx, path, "q1", "t1", 2)
		assert.NoError(t, err, path)
		assert.EQ(t, len(recs), 2, path)
		expect.EQ(t, recs[0].Overlap(), 49)
	}

	_, err = paf.ReadFile(ctx, filepath.Join(tmpDir, "missing.paf"), "q1", "t1")
	expect.True(t, errors.Is(errors.NotExist, err), "err: %v", err)
}

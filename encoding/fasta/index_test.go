package fasta_test

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/hts/fai"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/gapneedle/encoding/fasta"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func generateIndex(t *testing.T, fa string) (faidx string) {
	idx := bytes.Buffer{}
	assert.NoError(t, fasta.GenerateIndex(&idx, strings.NewReader(fa)))
	return idx.String()
}

func TestGenerateIndex(t *testing.T) {
	fa := `>E0
GGTGAAATC
CCTGAAATC
AAAATTGCT
>E1
GTCCCTCCCCAGACATGGCCCTGGGAGGC
>E2
CCGCGCCCGCGCCCCCGCCGCC
>E3
GTCAAGGTTGCACAG
>E4
ATGAATCATGTGGTAAAA
`
	fai := generateIndex(t, fa)
	assert.EQ(t, fai, `E0	27	4	9	10
E1	29	38	29	30
E2	22	72	22	23
E3	15	99	15	16
E4	18	119	18	19
`)
	x, err := fasta.ReadIndex(strings.NewReader(fai))
	assert.NoError(t, err)
	e, ok := x.Lookup("E3")
	assert.True(t, ok)
	assert.EQ(t, e, fasta.IndexEntry{Name: "E3", Length: 15, Offset: 99, LineBases: 15, LineWidth: 16})

	// MO-DOS newline encodinng.
	assert.EQ(t, generateIndex(t, ">E0\r\nGGGG\r\n>E1\r\nAAAAA\r\n"),
		`E0	4	5	4	6
E1	5	16	5	7
`)

	// No newline at the end.
	assert.EQ(t, generateIndex(t, ">E0\nGGGG\n>E1\nCCCCC\nAAAAA"),
		`E0	4	4	4	5
E1	10	13	5	6
`)
	assert.EQ(t, generateIndex(t, ">E0\nGGGG\n>E1\nAAAAA"),
		`E0	4	4	4	5
E1	5	13	5	5
`)

	// Descriptions are dropped, records without bases are skipped, and the
	// offset points at the first line carrying bases.
	assert.EQ(t, generateIndex(t, ">E0 first\tone\n>E1\n\nACGT\nAC\n\n>E2\nTT\n"),
		`E1	6	19	4	5
E2	2	32	2	3
`)

	idx := bytes.Buffer{}
	assert.Regexp(t, fasta.GenerateIndex(&idx, strings.NewReader("")), "empty FASTA")
}

func TestReadIndexMalformed(t *testing.T) {
	for _, fai := range []string{
		"",
		"\n\n",
		"chr1\t10\t6\n",
		"chr1\tten\t6\t60\t61\n",
		"chr1\t10\t6\t0\t61\n",
		"chr1\t10\t6\t60\t61\nchr2\t-1\t6\t60\t61\n",
	} {
		_, err := fasta.ReadIndex(strings.NewReader(fai))
		expect.True(t, errors.Is(errors.Integrity, err), "fai %q: %v", fai, err)
	}
}

func TestLoadIndexRebuild(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()

	const fa = ">a\nACGT\nAC\n>b\nGGG\n"
	const want = "a\t6\t3\t4\t5\nb\t3\t14\t3\t4\n"
	path := filepath.Join(tmpDir, "x.fa")
	writeFile(t, path, fa)

	for _, corrupt := range []string{"", "garbage\n", "a\t6\t3\n", "a\t6\t3\t0\t5\n"} {
		if corrupt == "" {
			_ = os.Remove(fasta.IndexPath(path))
		} else {
			writeFile(t, fasta.IndexPath(path), corrupt)
		}
		x, err := fasta.LoadIndex(ctx, path)
		assert.NoError(t, err)
		expect.EQ(t, x.SeqNames(), []string{"a", "b"})
		data, err := ioutil.ReadFile(fasta.IndexPath(path))
		assert.NoError(t, err)
		expect.EQ(t, string(data), want)
	}

	// A valid index is used as is, even if it disagrees with the FASTA.
	writeFile(t, fasta.IndexPath(path), "b\t3\t14\t3\t4\n")
	x, err := fasta.LoadIndex(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, x.SeqNames(), []string{"b"})
}

func TestLoadIndexNoSequences(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	path := filepath.Join(tmpDir, "empty.fa")
	writeFile(t, path, ">a\n>b\n")
	_, err := fasta.LoadIndex(vcontext.Background(), path)
	expect.True(t, errors.Is(errors.Integrity, err), "err: %v", err)

	_, err = fasta.LoadIndex(vcontext.Background(), filepath.Join(tmpDir, "missing.fa"))
	expect.NotNil(t, err)
}

func TestBuildIndexFileRejectsCompressed(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()

	path := filepath.Join(tmpDir, "x.fa.gz")
	assert.NoError(t, fasta.WriteFile(ctx, path, fasta.Record{Name: "a", Seq: "ACGT"}))
	err := fasta.BuildIndexFile(ctx, path)
	expect.True(t, errors.Is(errors.Invalid, err), "err: %v", err)
	_, err = os.Stat(fasta.IndexPath(path))
	expect.True(t, os.IsNotExist(err), "err: %v", err)
}

// The generated index must be readable by other faidx implementations.
func TestIndexFaiCompatible(t *testing.T) {
	fa := ">chr1 desc\nACGTACGTAC\nACGTAC\n>chr2\nGG\n"
	idx, err := fai.ReadFrom(strings.NewReader(generateIndex(t, fa)))
	assert.NoError(t, err)
	rec, ok := idx["chr1"]
	assert.True(t, ok)
	expect.EQ(t, rec.Length, 16)
	expect.EQ(t, rec.Start, int64(11))
	expect.EQ(t, rec.BasesPerLine, 10)
	expect.EQ(t, rec.BytesPerLine, 11)
	rec, ok = idx["chr2"]
	assert.True(t, ok)
	expect.EQ(t, rec.Start, int64(35))
}

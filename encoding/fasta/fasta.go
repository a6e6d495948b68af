// Package fasta contains code for parsing (optionally indexed) FASTA files.
// See http://www.htslib.org/doc/faidx.html.  Briefly, FASTA files consist of a
// number of named sequences that may be interrupted by newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Note: Sequence names are defined to be the stretch of non-whitespace
// characters immediately after '>'.  Any text after the first whitespace is
// ignored.  For example, '>chr1 A viral sequence' becomes 'chr1'.
//
// Bases are upper-cased and whitespace inside sequence lines is dropped by
// every reader in this package, so the whole-file loader and the indexed
// store always agree on the bytes of a sequence.
package fasta

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Fasta represents FASTA-formatted data, consisting of a set of named
// sequences.
type Fasta interface {
	// Get returns a substring of the given sequence name at the given
	// coordinates, which are treated as a 0-based half-open interval
	// [start, end). Get is thread-safe.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of the given sequence.
	Len(seqName string) (uint64, error)

	// SeqNames returns the names of all sequences, in the order of appearance in
	// the FASTA file.
	SeqNames() []string
}

type opts struct {
	selected map[string]bool
}

// Opt is an optional argument to New and ReadFile.
type Opt func(*opts)

// OptSelect restricts the loader to the named sequences. Other records are
// skipped without being buffered. Names that do not appear in the input are
// silently absent from the result.
func OptSelect(names ...string) Opt {
	return func(o *opts) {
		if o.selected == nil {
			o.selected = map[string]bool{}
		}
		for _, n := range names {
			o.selected[n] = true
		}
	}
}

type fasta struct {
	seqs     map[string]string
	seqNames []string
}

// SeqName extracts the sequence name from a header line, with or without
// the leading '>'.
func SeqName(header string) string {
	header = strings.TrimPrefix(header, ">")
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// appendBases appends the non-whitespace bytes of line to dst, upper-casing
// them.
func appendBases(dst *strings.Builder, line []byte) {
	for _, ch := range line {
		if isSpace(ch) {
			continue
		}
		dst.WriteByte(upper(ch))
	}
}

func isSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func upper(ch byte) byte {
	if 'a' <= ch && ch <= 'z' {
		return ch - ('a' - 'A')
	}
	return ch
}

// New creates a new Fasta that holds the FASTA data from the given reader in
// memory.  Lines before the first header are ignored. If a name appears
// more than once, the last record wins.
func New(r io.Reader, options ...Opt) (Fasta, error) {
	var o opts
	for _, opt := range options {
		opt(&o)
	}
	f := &fasta{seqs: make(map[string]string)}
	var (
		br      = bufio.NewReader(r)
		seqName string
		keep    bool
		seq     strings.Builder
	)
	flush := func() {
		if seqName == "" || !keep {
			return
		}
		if _, ok := f.seqs[seqName]; !ok {
			f.seqNames = append(f.seqNames, seqName)
		}
		f.seqs[seqName] = seq.String()
	}
	// Lines are read whole, however long: an unwrapped chromosome is a single
	// line.
	for eof := false; !eof; {
		line, err := br.ReadBytes('\n')
		if err == io.EOF {
			eof = true
		} else if err != nil {
			return nil, errors.E(err, "couldn't read FASTA data")
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			flush()
			seq.Reset()
			seqName = SeqName(string(line))
			keep = o.selected == nil || o.selected[seqName]
			continue
		}
		if seqName == "" || !keep {
			continue
		}
		appendBases(&seq, line)
	}
	flush()
	return f, nil
}

// ReadFile reads the FASTA file at path into memory.  Files with a
// compression suffix (e.g. ".gz") are decompressed transparently.
func ReadFile(ctx context.Context, path string, options ...Opt) (_ Fasta, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open FASTA", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, path); u != nil {
		r = u
	}
	fa, err := New(r, options...)
	if err != nil {
		return nil, errors.E(err, path)
	}
	log.Debug.Printf("fasta: loaded %d sequences from %s", len(fa.SeqNames()), path)
	return fa, nil
}

// Get implements Fasta.Get().
func (f *fasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.E(errors.NotExist, fmt.Sprintf("sequence not found: %s", seqName))
	}
	if end <= start {
		return "", errors.E(errors.Invalid, "start must be less than end")
	}
	if end > uint64(len(s)) {
		return "", errors.E(errors.Invalid, fmt.Sprintf("invalid query range %d - %d for sequence %s with length %d",
			start, end, seqName, len(s)))
	}
	return s[start:end], nil
}

// Len implements Fasta.Len().
func (f *fasta) Len(seq string) (uint64, error) {
	s, ok := f.seqs[seq]
	if !ok {
		return 0, errors.E(errors.NotExist, fmt.Sprintf("sequence not found: %s", seq))
	}
	return uint64(len(s)), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *fasta) SeqNames() []string {
	return f.seqNames
}

// Seq returns the whole sequence with the given name.
func Seq(f Fasta, seqName string) (string, error) {
	n, err := f.Len(seqName)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	return f.Get(seqName, 0, n)
}

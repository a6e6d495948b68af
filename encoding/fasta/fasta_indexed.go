package fasta

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
)

// Seekable FASTA access is impossible through a decompressor.
var compressedSuffixes = []string{".gz", ".bgz", ".bz2", ".zst"}

const fetchBufSize = 64 << 10

// checkUncompressed fails with errors.Invalid if path names a compressed
// file, whose byte offsets an index cannot describe.
func checkUncompressed(path string) error {
	for _, suffix := range compressedSuffixes {
		if strings.HasSuffix(path, suffix) {
			return errors.E(errors.Invalid, "indexed access requires an uncompressed FASTA file", path)
		}
	}
	return nil
}

// Indexed provides random access to a FASTA file through its index, without
// reading the data into memory.  The index is shared by all callers; every
// fetch opens its own handle, so an Indexed is safe for concurrent use.
type Indexed struct {
	path  string
	index *Index
}

// OpenIndexed loads (or builds, see LoadIndex) the index of the FASTA file at
// path and returns a store reading from it.
func OpenIndexed(ctx context.Context, path string) (*Indexed, error) {
	if err := checkUncompressed(path); err != nil {
		return nil, err
	}
	x, err := LoadIndex(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewIndexed(path, x), nil
}

// NewIndexed creates a store for the FASTA file at path using an already
// loaded index.
func NewIndexed(path string, index *Index) *Indexed {
	return &Indexed{path: path, index: index}
}

// Path returns the FASTA path.
func (f *Indexed) Path() string { return f.path }

// Index returns the index backing f.
func (f *Indexed) Index() *Index { return f.index }

// Entry returns the index entry of the named sequence.
func (f *Indexed) Entry(seqName string) (IndexEntry, error) {
	ent, ok := f.index.Lookup(seqName)
	if !ok {
		return IndexEntry{}, errors.E(errors.NotExist, fmt.Sprintf("sequence not found in index: %s", seqName))
	}
	return ent, nil
}

// Fetch reads bases [start, end) of the named sequence, upper-cased.  The
// range is clamped to the sequence; an empty range yields "".  If the file
// ends before the requested bases are read, the index does not describe the
// file and an errors.Integrity error is returned.
func (f *Indexed) Fetch(ctx context.Context, seqName string, start, end int64) (_ string, err error) {
	ent, ok := f.index.Lookup(seqName)
	if !ok {
		return "", errors.E(errors.NotExist, fmt.Sprintf("sequence not found in index: %s", seqName))
	}
	if start < 0 {
		start = 0
	}
	if end > ent.Length {
		end = ent.Length
	}
	if end <= start {
		return "", nil
	}

	in, err := file.Open(ctx, f.path)
	if err != nil {
		return "", errors.E(err, "open FASTA", f.path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	rs := in.Reader(ctx)
	offset := ent.seekOffset(start)
	newOffset, err := rs.Seek(offset, io.SeekStart)
	if err != nil {
		return "", errors.E(err, fmt.Sprintf("failed to seek to offset %d", offset), f.path)
	}
	if newOffset != offset {
		return "", errors.E(errors.Integrity, fmt.Sprintf("failed to seek to offset %d: %d", offset, newOffset), f.path)
	}

	want := int(end - start)
	bufSize := fetchBufSize
	if n := want + int(ent.LineWidth); n < bufSize {
		bufSize = n
	}
	var (
		r   = bufio.NewReaderSize(rs, bufSize)
		buf = make([]byte, 0, want)
	)
	for len(buf) < want {
		ch, err := r.ReadByte()
		if err == io.EOF {
			return "", errors.E(errors.Integrity,
				fmt.Sprintf("incomplete read of %s:%d-%d in %s: got %d of %d bases (bad index?)",
					seqName, start, end, f.path, len(buf), want))
		}
		if err != nil {
			return "", errors.E(err, "read", f.path)
		}
		if ch == '\n' || ch == '\r' {
			continue
		}
		buf = append(buf, upper(ch))
	}
	return string(buf), nil
}

// Get implements Fasta.Get(). Unlike Fetch, the range is not clamped: it
// must satisfy start < end <= Len(seqName).
func (f *Indexed) Get(seqName string, start, end uint64) (string, error) {
	if end <= start {
		return "", errors.E(errors.Invalid, "start must be less than end")
	}
	ent, ok := f.index.Lookup(seqName)
	if !ok {
		return "", errors.E(errors.NotExist, fmt.Sprintf("sequence not found in index: %s", seqName))
	}
	if end > uint64(ent.Length) {
		return "", errors.E(errors.Invalid, fmt.Sprintf("end is past end of sequence %s: %d", seqName, ent.Length))
	}
	return f.Fetch(vcontext.Background(), seqName, int64(start), int64(end))
}

// Len implements Fasta.Len().
func (f *Indexed) Len(seqName string) (uint64, error) {
	ent, ok := f.index.Lookup(seqName)
	if !ok {
		return 0, errors.E(errors.NotExist, fmt.Sprintf("sequence not found in index: %s", seqName))
	}
	return uint64(ent.Length), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *Indexed) SeqNames() []string {
	return f.index.SeqNames()
}

// FaiToReferenceLengths reads in a fasta fai file and returns a map of
// reference name to reference length. This doesn't require reading in the fasta
// itself.
func FaiToReferenceLengths(index io.Reader) (map[string]uint64, error) {
	x, err := ReadIndex(index)
	if err != nil {
		return nil, err
	}
	newMap := make(map[string]uint64, len(x.entries))
	for _, ent := range x.entries {
		newMap[ent.Name] = uint64(ent.Length)
	}
	return newMap, nil
}

package fasta

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// IndexSuffix is appended to a FASTA path to form the path of its index.
const IndexSuffix = ".fai"

// Index files consist of one tab-separated line per sequence in the associated
// FASTA file.  The format is: "<sequence name>\t<length>\t<byte
// offset>\t<bases per line>\t<bytes per line>".
// For example: "chr3\t12345\t9000\t80\t81".  Trailing columns (e.g. the
// quality offset of a FASTQ index) are ignored.
var indexRegExp = regexp.MustCompile(`^(\S+)\t(\d+)\t(\d+)\t(\d+)\t(\d+)`)

// IndexEntry describes the layout of one sequence in a FASTA file.
type IndexEntry struct {
	// Name is the sequence name, up to the first whitespace of the header.
	Name string
	// Length is the number of bases in the sequence.
	Length int64
	// Offset is the byte offset of the first base.
	Offset int64
	// LineBases is the number of bases on each full line.
	LineBases int64
	// LineWidth is the number of bytes on each full line, including the line
	// terminator.
	LineWidth int64
}

func (e IndexEntry) valid() bool {
	return e.Name != "" && e.Length >= 0 && e.Offset >= 0 && e.LineBases > 0 && e.LineWidth > 0
}

// seekOffset computes the byte offset of base pos.
func (e IndexEntry) seekOffset(pos int64) int64 {
	return e.Offset + (pos/e.LineBases)*e.LineWidth + pos%e.LineBases
}

// Index is an immutable set of IndexEntries, in order of appearance in the
// FASTA file. It is safe to share across goroutines.
type Index struct {
	entries []IndexEntry
	byName  map[string]int
}

// Lookup finds the entry for the given sequence.
func (x *Index) Lookup(seqName string) (IndexEntry, bool) {
	i, ok := x.byName[seqName]
	if !ok {
		return IndexEntry{}, false
	}
	return x.entries[i], true
}

// Entries returns all the entries in file order. The caller must not modify
// the slice.
func (x *Index) Entries() []IndexEntry { return x.entries }

// SeqNames lists the sequence names in file order.
func (x *Index) SeqNames() []string {
	names := make([]string, len(x.entries))
	for i, e := range x.entries {
		names[i] = e.Name
	}
	return names
}

// IndexPath returns the conventional index path for the given FASTA file.
func IndexPath(fastaPath string) string { return fastaPath + IndexSuffix }

// GenerateIndex generates an index (*.fai) from FASTA.  The index can be later
// passed to ReadIndex() to random-access the FASTA file quickly.
//
// The index format is defined by "samtool faidx"
// (http://www.htslib.org/doc/faidx.html).  The layout of a sequence is taken
// from its first line that has any bases on it; whitespace inside a line is
// not counted as bases.  Sequences without any bases are omitted.
func GenerateIndex(out io.Writer, in io.Reader) (err error) {
	var (
		tsvOut  = tsv.NewWriter(out)
		r       = bufio.NewReader(in)
		ent     IndexEntry
		cumByte int64
		eof     bool
	)

	setErr := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	flush := func() {
		if ent.Name == "" {
			return
		}
		if ent.Offset <= 0 || ent.Length <= 0 || ent.LineBases <= 0 || ent.LineWidth <= 0 {
			log.Debug.Printf("fasta: index: skipping sequence %q without bases", ent.Name)
			return
		}
		tsvOut.WriteString(ent.Name)
		tsvOut.WriteInt64(ent.Length)
		tsvOut.WriteInt64(ent.Offset)
		tsvOut.WriteInt64(ent.LineBases)
		tsvOut.WriteInt64(ent.LineWidth)
		setErr(tsvOut.EndLine())
	}
	for !eof && err == nil {
		fullLine, e := r.ReadBytes('\n')
		if e == io.EOF { // Process fullLine, then exit the loop
			eof = true
		} else if e != nil {
			setErr(e)
		}
		lineStart := cumByte
		cumByte += int64(len(fullLine))
		line := bytes.TrimRight(fullLine, "\r\n")
		if len(line) > 0 && line[0] == '>' { // Start a new sequence.
			flush()
			ent = IndexEntry{Name: SeqName(string(line)), Offset: -1}
			continue
		}
		if ent.Name == "" {
			continue
		}
		var bases int64
		for _, ch := range line {
			if !isSpace(ch) {
				bases++
			}
		}
		if bases == 0 {
			continue
		}
		if ent.Offset < 0 {
			ent.Offset = lineStart
			ent.LineBases = bases
			ent.LineWidth = int64(len(fullLine))
		}
		ent.Length += bases
	}
	flush()
	setErr(tsvOut.Flush())
	if cumByte == 0 {
		setErr(errors.E(errors.Integrity, "empty FASTA file"))
	}
	return
}

// ReadIndex parses an index produced by GenerateIndex or "samtools faidx".
// Any malformed row, or an index without rows, is an error of kind
// errors.Integrity.  If a name is listed more than once, the first row wins.
func ReadIndex(r io.Reader) (*Index, error) {
	x := &Index{byName: map[string]int{}}
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanLines)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		matches := indexRegExp.FindStringSubmatch(line)
		if len(matches) != 6 {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("invalid index line %d: %q", lineno, line))
		}
		var (
			ent  = IndexEntry{Name: matches[1]}
			errs [4]error
		)
		ent.Length, errs[0] = strconv.ParseInt(matches[2], 10, 64)
		ent.Offset, errs[1] = strconv.ParseInt(matches[3], 10, 64)
		ent.LineBases, errs[2] = strconv.ParseInt(matches[4], 10, 64)
		ent.LineWidth, errs[3] = strconv.ParseInt(matches[5], 10, 64)
		for _, e := range errs {
			if e != nil {
				return nil, errors.E(errors.Integrity, e, fmt.Sprintf("invalid index line %d", lineno))
			}
		}
		if !ent.valid() {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("invalid index entry at line %d: %+v", lineno, ent))
		}
		if _, ok := x.byName[ent.Name]; ok {
			log.Debug.Printf("fasta: index: duplicate sequence %q at line %d", ent.Name, lineno)
			continue
		}
		x.byName[ent.Name] = len(x.entries)
		x.entries = append(x.entries, ent)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(errors.Integrity, err, "read index")
	}
	if len(x.entries) == 0 {
		return nil, errors.E(errors.Integrity, "no valid entries in index")
	}
	return x, nil
}

// BuildIndexFile generates the index of the FASTA file at fastaPath and
// stores it at IndexPath(fastaPath), replacing any existing index.
// Compressed files are rejected with errors.Invalid.
func BuildIndexFile(ctx context.Context, fastaPath string) (err error) {
	if err := checkUncompressed(fastaPath); err != nil {
		return err
	}
	in, err := file.Open(ctx, fastaPath)
	if err != nil {
		return errors.E(err, "open FASTA", fastaPath)
	}
	defer file.CloseAndReport(ctx, in, &err)

	indexPath := IndexPath(fastaPath)
	out, err := file.Create(ctx, indexPath)
	if err != nil {
		return errors.E(err, "create index", indexPath)
	}
	if err = GenerateIndex(out.Writer(ctx), in.Reader(ctx)); err != nil {
		_ = out.Close(ctx)
		_ = file.Remove(ctx, indexPath)
		return errors.E(err, "generate index", fastaPath)
	}
	if err = out.Close(ctx); err != nil {
		return errors.E(err, "close index", indexPath)
	}
	return nil
}

func readIndexFile(ctx context.Context, indexPath string) (_ *Index, err error) {
	in, err := file.Open(ctx, indexPath)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	return ReadIndex(in.Reader(ctx))
}

// LoadIndex reads the index of the given FASTA file. If the index is missing
// or cannot be parsed, it is rebuilt from the FASTA file and read again. The
// rebuild is attempted exactly once.
func LoadIndex(ctx context.Context, fastaPath string) (*Index, error) {
	indexPath := IndexPath(fastaPath)
	x, err := readIndexFile(ctx, indexPath)
	if err == nil {
		return x, nil
	}
	log.Printf("fasta: rebuilding index %s: %v", indexPath, err)
	if err := BuildIndexFile(ctx, fastaPath); err != nil {
		return nil, err
	}
	if x, err = readIndexFile(ctx, indexPath); err != nil {
		return nil, errors.E(err, "read rebuilt index", indexPath)
	}
	return x, nil
}

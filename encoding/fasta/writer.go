package fasta

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
)

// LineWidth is the number of bases per line written by Write.
const LineWidth = 80

// Record is a named sequence to be written.
type Record struct {
	Name string
	Seq  string
}

// Write writes one FASTA record, wrapping the sequence at LineWidth bases.
// Every line, including the last, is newline-terminated.
func Write(w io.Writer, name, seq string) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	er := errors.Once{}
	_, err := bw.WriteString(">" + name + "\n")
	er.Set(err)
	for i := 0; i < len(seq); i += LineWidth {
		end := i + LineWidth
		if end > len(seq) {
			end = len(seq)
		}
		_, err = bw.WriteString(seq[i:end])
		er.Set(err)
		er.Set(bw.WriteByte('\n'))
	}
	if !ok {
		er.Set(bw.Flush())
	}
	return er.Err()
}

// WriteFile writes the records to path.  If path ends in ".gz", the output
// is gzip-compressed.  On error, the partially written file is removed.
func WriteFile(ctx context.Context, path string, records ...Record) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create FASTA", path)
	}
	var (
		w  io.Writer = out.Writer(ctx)
		gz *gzip.Writer
		er = errors.Once{}
	)
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(w)
		w = gz
	}
	bw := bufio.NewWriterSize(w, 1<<20)
	for _, r := range records {
		er.Set(Write(bw, r.Name, r.Seq))
	}
	er.Set(bw.Flush())
	if gz != nil {
		er.Set(gz.Close())
	}
	if er.Err() != nil {
		_ = out.Close(ctx)
		_ = file.Remove(ctx, path)
		return errors.E(er.Err(), "write FASTA", path)
	}
	if err := out.Close(ctx); err != nil {
		return errors.E(err, "close FASTA", path)
	}
	return nil
}

package fastq

import (
	"context"
	"io"

	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Open opens path (a local path or any scheme grailbio/base/file supports,
// e.g. s3://) for reading, transparently gzip-decompressing it if its
// first two bytes are the gzip magic number. The returned ReadCloser's
// Close also closes the underlying file.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening fastq file %s", path)
	}
	r := f.Reader(ctx)

	magic := make([]byte, 2)
	n, _ := io.ReadFull(r, magic)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "seeking fastq file %s", path)
	}

	if n == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(readSeekerAsReader{r})
		if err != nil {
			return nil, errors.Wrapf(err, "opening gzip fastq file %s", path)
		}
		return &gzipReadCloser{gz: gz, underlying: f}, nil
	}
	return &plainReadCloser{r: readSeekerAsReader{r}, underlying: f}, nil
}

// readSeekerAsReader narrows an io.ReadSeeker (what file.File.Reader
// returns) to a plain io.Reader for handing to gzip.NewReader.
type readSeekerAsReader struct {
	io.ReadSeeker
}

type gzipReadCloser struct {
	gz         *gzip.Reader
	underlying file.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzipReadCloser) Close() error {
	if err := g.gz.Close(); err != nil {
		return err
	}
	return g.underlying.Close(context.Background())
}

type plainReadCloser struct {
	r          io.Reader
	underlying file.File
}

func (p *plainReadCloser) Read(buf []byte) (int, error) { return p.r.Read(buf) }
func (p *plainReadCloser) Close() error                 { return p.underlying.Close(context.Background()) }

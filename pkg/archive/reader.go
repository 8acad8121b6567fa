package archive

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/ulikunitz/xz"
)

// Reader decompresses an underlying stream.
type Reader struct {
	compression Format
	r           io.Reader
	closers     []io.Closer
}

// NewReader wraps r with transparent decompression, sniffing the format from
// its leading bytes. hint is consulted only when sniffing finds nothing: pass
// FormatBrotli when the source name implies a brotli stream, FormatNone
// otherwise. A stream with no recognizable compression reads through as-is.
func NewReader(r io.Reader, hint Format) (*Reader, error) {
	br := bufio.NewReader(r)

	header, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peeking header: %w", err)
	}

	format := Detect(header)
	if format == FormatNone && hint == FormatBrotli {
		format = FormatBrotli
	}

	switch format {
	case FormatGzip:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return &Reader{compression: format, r: gzr, closers: []io.Closer{gzr}}, nil

	case FormatBzip2:
		return &Reader{compression: format, r: bzip2.NewReader(br)}, nil

	case FormatXZ:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		return &Reader{compression: format, r: xzr}, nil

	case FormatBrotli:
		return &Reader{compression: format, r: brotli.NewReader(br)}, nil

	default:
		return &Reader{compression: FormatNone, r: br}, nil
	}
}

// OpenFile opens path with transparent decompression, combining the file
// extension with content sniffing. Closing the Reader closes the file.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	r, err := NewReader(f, FormatForPath(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closers = append(r.closers, f)
	return r, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

// Compression returns the detected compression format.
func (r *Reader) Compression() Format {
	return r.compression
}

// Close closes the decompressor and any underlying file.
func (r *Reader) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ io.ReadCloser = (*Reader)(nil)

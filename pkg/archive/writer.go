package archive

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

// Writer compresses into an underlying stream.
type Writer struct {
	compression Format
	w           io.Writer
	closers     []io.Closer
}

// NewWriter wraps w with compression in the given format. FormatNone writes
// through uncompressed.
func NewWriter(w io.Writer, format Format) (*Writer, error) {
	switch format {
	case FormatNone:
		return &Writer{compression: format, w: w}, nil

	case FormatGzip:
		gzw := gzip.NewWriter(w)
		return &Writer{compression: format, w: gzw, closers: []io.Closer{gzw}}, nil

	case FormatBzip2:
		bzw, err := bzip2.NewWriter(w, nil)
		if err != nil {
			return nil, fmt.Errorf("creating bzip2 writer: %w", err)
		}
		return &Writer{compression: format, w: bzw, closers: []io.Closer{bzw}}, nil

	case FormatXZ:
		xzw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("creating xz writer: %w", err)
		}
		return &Writer{compression: format, w: xzw, closers: []io.Closer{xzw}}, nil

	case FormatBrotli:
		brw := brotli.NewWriter(w)
		return &Writer{compression: format, w: brw, closers: []io.Closer{brw}}, nil

	default:
		return nil, fmt.Errorf("unsupported compression format %d", format)
	}
}

// CreateFile creates path, compressing per its file extension. Closing the
// Writer flushes the compressor and closes the file.
func CreateFile(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	w, err := NewWriter(f, FormatForPath(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closers = append(w.closers, f)
	return w, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

// Compression returns the compression format being written.
func (w *Writer) Compression() Format {
	return w.compression
}

// Close flushes and closes the compressor, then any underlying file. A
// compressed stream is unreadable until Close returns.
func (w *Writer) Close() error {
	var firstErr error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ io.WriteCloser = (*Writer)(nil)

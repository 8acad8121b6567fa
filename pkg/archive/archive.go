// Package archive provides transparent compression for state export files.
// Readers auto-detect gzip, bzip2, and xz from magic bytes; brotli carries
// no magic number and is selected by file extension or explicit format.
package archive

import (
	"path/filepath"
	"strings"
)

// Format identifies a compression format.
type Format int

const (
	// FormatNone is an uncompressed stream.
	FormatNone Format = iota
	// FormatGzip is RFC 1952 gzip.
	FormatGzip
	// FormatBzip2 is bzip2.
	FormatBzip2
	// FormatXZ is xz/LZMA2.
	FormatXZ
	// FormatBrotli is brotli. Not detectable from content.
	FormatBrotli
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatGzip:
		return "gzip"
	case FormatBzip2:
		return "bzip2"
	case FormatXZ:
		return "xz"
	case FormatBrotli:
		return "brotli"
	default:
		return "none"
	}
}

// Ext returns the conventional file extension for the format, including the
// leading dot. FormatNone has no extension.
func (f Format) Ext() string {
	switch f {
	case FormatGzip:
		return ".gz"
	case FormatBzip2:
		return ".bz2"
	case FormatXZ:
		return ".xz"
	case FormatBrotli:
		return ".br"
	default:
		return ""
	}
}

// FormatForPath returns the compression format implied by a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return FormatGzip
	case ".bz2":
		return FormatBzip2
	case ".xz":
		return FormatXZ
	case ".br":
		return FormatBrotli
	default:
		return FormatNone
	}
}

// Detect returns the compression format of the header bytes. Formats without
// a magic number (brotli, plain text) detect as FormatNone.
func Detect(header []byte) Format {
	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		return FormatGzip
	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		return FormatBzip2
	case len(header) >= 6 && header[0] == 0xfd && header[1] == '7' && header[2] == 'z' && header[3] == 'X' && header[4] == 'Z' && header[5] == 0x00:
		return FormatXZ
	default:
		return FormatNone
	}
}

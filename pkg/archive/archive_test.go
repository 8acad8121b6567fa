package archive

import (
	"bytes"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payload := strings.Repeat("the quick brown fox jumps over the lazy dog\n", 100)

	formats := []Format{FormatNone, FormatGzip, FormatBzip2, FormatXZ, FormatBrotli}
	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer

			w, err := NewWriter(&buf, format)
			require.NoError(t, err)
			_, err = io.WriteString(w, payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			if format != FormatNone {
				assert.Less(t, buf.Len(), len(payload), "compressed output should shrink")
			}

			// Brotli is not sniffable; everything else must be.
			r, err := NewReader(bytes.NewReader(buf.Bytes()), format)
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, format, r.Compression())

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, string(got))
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Format
	}{
		{"gzip", []byte{0x1f, 0x8b, 0x08, 0x00, 0x00, 0x00}, FormatGzip},
		{"bzip2", []byte("BZh91AY"), FormatBzip2},
		{"xz", []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, FormatXZ},
		{"plain text", []byte("{\"a\":1}"), FormatNone},
		{"empty", nil, FormatNone},
		{"short", []byte{0x1f}, FormatNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.header))
		})
	}
}

func TestMagicBytesWinOverHint(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatGzip)
	require.NoError(t, err)
	_, err = io.WriteString(w, "mislabeled")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// A gzip stream behind a .br name still reads as gzip.
	r, err := NewReader(bytes.NewReader(buf.Bytes()), FormatBrotli)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, FormatGzip, r.Compression())

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "mislabeled", string(got))
}

func TestPlainStreamReadsThrough(t *testing.T) {
	r, err := NewReader(strings.NewReader("no compression here"), FormatNone)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, FormatNone, r.Compression())

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "no compression here", string(got))
}

func TestShortStream(t *testing.T) {
	// Shorter than the 6-byte sniff window.
	r, err := NewReader(strings.NewReader("hi"), FormatNone)
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"export.jsonl.gz", FormatGzip},
		{"export.jsonl.GZ", FormatGzip},
		{"export.jsonl.bz2", FormatBzip2},
		{"export.jsonl.xz", FormatXZ},
		{"export.jsonl.br", FormatBrotli},
		{"export.jsonl", FormatNone},
		{"export", FormatNone},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatForPath(tt.path))
		})
	}
}

func TestFileRoundTripByExtension(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"state.jsonl", "state.jsonl.gz", "state.jsonl.xz", "state.jsonl.br"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)

			w, err := CreateFile(path)
			require.NoError(t, err)
			_, err = io.WriteString(w, "line one\nline two\n")
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := OpenFile(path)
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, FormatForPath(path), r.Compression())

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "line one\nline two\n", string(got))
		})
	}
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "absent.jsonl.gz"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

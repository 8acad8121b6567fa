// Package storage provides sandboxed file operations for pipeline artifacts.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
)

// ObjectStore is the artifact persistence contract stages write through.
// Artifacts live under {date}/{stage}/{filename}; refs carry a public URL so
// downstream stages and review tooling never touch the filesystem layout.
type ObjectStore interface {
	Upload(ctx context.Context, date, stage, filename string, data []byte) (models.ArtifactRef, error)
	UploadStream(ctx context.Context, date, stage, filename string, r io.Reader) (models.ArtifactRef, error)
	Download(ctx context.Context, date, stage, filename string) ([]byte, error)
	Exists(ctx context.Context, date, stage, filename string) (bool, error)
	PublicURL(date, stage, filename string) string
}

// BufferDir holds pre-rendered emergency videos outside the per-date layout.
const BufferDir = "buffer"

// FileStore is a filesystem-backed ObjectStore rooted in a Sandbox. The
// production deployment fronts this directory with the artifact file server;
// swapping in a bucket-backed implementation only requires satisfying
// ObjectStore.
type FileStore struct {
	sandbox *Sandbox
	baseURL string
	clock   clock.Clock
}

// NewFileStore creates a FileStore rooted at baseDir. baseURL is prepended
// to artifact paths when building public URLs, e.g. "http://host/artifacts".
func NewFileStore(baseDir, baseURL string, clk clock.Clock) (*FileStore, error) {
	sandbox, err := NewSandbox(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &FileStore{
		sandbox: sandbox,
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clk,
	}, nil
}

// BaseDir returns the absolute path to the artifact root.
func (s *FileStore) BaseDir() string {
	return s.sandbox.BaseDir()
}

// ArtifactPath builds the relative {date}/{stage}/{filename} path after
// validating each segment.
func ArtifactPath(date, stage, filename string) (string, error) {
	if err := models.ValidatePipelineID(date); err != nil {
		return "", fmt.Errorf("artifact date %q: %w", date, err)
	}
	if !validArtifactDir(stage) {
		return "", fmt.Errorf("artifact stage %q: %w", stage, models.ErrInvalidStage)
	}
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("artifact filename %q is not a plain file name", filename)
	}
	return path.Join(date, stage, filename), nil
}

// ParseArtifactPath splits a relative artifact path back into its segments.
// Used by the artifact file server to validate request paths.
func ParseArtifactPath(p string) (date, stage, filename string, err error) {
	parts := strings.Split(path.Clean(strings.Trim(p, "/")), "/")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("artifact path %q: want date/stage/filename", p)
	}
	if _, err := ArtifactPath(parts[0], parts[1], parts[2]); err != nil {
		return "", "", "", err
	}
	return parts[0], parts[1], parts[2], nil
}

func validArtifactDir(stage string) bool {
	if stage == BufferDir {
		return true
	}
	return models.IsValidStage(stage)
}

// Upload implements ObjectStore.
func (s *FileStore) Upload(_ context.Context, date, stage, filename string, data []byte) (models.ArtifactRef, error) {
	rel, err := ArtifactPath(date, stage, filename)
	if err != nil {
		return models.ArtifactRef{}, err
	}
	if err := s.sandbox.AtomicWrite(rel, data); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("writing artifact: %w", err)
	}
	return s.refFor(rel, date, stage, filename, int64(len(data))), nil
}

// UploadStream implements ObjectStore.
func (s *FileStore) UploadStream(_ context.Context, date, stage, filename string, r io.Reader) (models.ArtifactRef, error) {
	rel, err := ArtifactPath(date, stage, filename)
	if err != nil {
		return models.ArtifactRef{}, err
	}
	if err := s.sandbox.AtomicWriteReader(rel, r); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("writing artifact: %w", err)
	}
	size, err := s.sandbox.Size(rel)
	if err != nil {
		return models.ArtifactRef{}, fmt.Errorf("getting artifact size: %w", err)
	}
	return s.refFor(rel, date, stage, filename, size), nil
}

// Download implements ObjectStore.
func (s *FileStore) Download(_ context.Context, date, stage, filename string) ([]byte, error) {
	rel, err := ArtifactPath(date, stage, filename)
	if err != nil {
		return nil, err
	}
	return s.sandbox.ReadFile(rel)
}

// Exists implements ObjectStore.
func (s *FileStore) Exists(_ context.Context, date, stage, filename string) (bool, error) {
	rel, err := ArtifactPath(date, stage, filename)
	if err != nil {
		return false, err
	}
	return s.sandbox.Exists(rel)
}

// PublicURL implements ObjectStore.
func (s *FileStore) PublicURL(date, stage, filename string) string {
	return s.baseURL + "/" + path.Join(date, stage, filename)
}

// Open opens an artifact for serving. The caller owns the returned file.
func (s *FileStore) Open(date, stage, filename string) (*os.File, os.FileInfo, error) {
	rel, err := ArtifactPath(date, stage, filename)
	if err != nil {
		return nil, nil, err
	}
	file, err := s.sandbox.OpenFile(rel, os.O_RDONLY, 0)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("getting file info: %w", err)
	}
	return file, info, nil
}

// Delete removes a single artifact.
func (s *FileStore) Delete(date, stage, filename string) error {
	rel, err := ArtifactPath(date, stage, filename)
	if err != nil {
		return err
	}
	return s.sandbox.Remove(rel)
}

// ListStage returns the filenames stored for one date and stage. Missing
// directories list as empty rather than erroring.
func (s *FileStore) ListStage(date, stage string) ([]string, error) {
	if err := models.ValidatePipelineID(date); err != nil {
		return nil, fmt.Errorf("artifact date %q: %w", date, err)
	}
	if !validArtifactDir(stage) {
		return nil, fmt.Errorf("artifact stage %q: %w", stage, models.ErrInvalidStage)
	}
	rel := path.Join(date, stage)
	exists, err := s.sandbox.Exists(rel)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	entries, err := s.sandbox.List(rel)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (s *FileStore) refFor(rel, date, stage, filename string, size int64) models.ArtifactRef {
	contentType := ContentTypeFromPath(rel)
	return models.ArtifactRef{
		Type:        artifactTypeFor(contentType),
		URL:         s.PublicURL(date, stage, filename),
		SizeBytes:   size,
		ContentType: contentType,
		GeneratedAt: s.clock.Now().UTC(),
		Stage:       stage,
	}
}

var _ ObjectStore = (*FileStore)(nil)

// ContentTypeFromPath guesses the content type from a file path extension.
func ContentTypeFromPath(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".json":
		return "application/json"
	case ".srt", ".vtt", ".txt", ".md":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func artifactTypeFor(contentType string) models.ArtifactType {
	base := strings.TrimSpace(strings.Split(contentType, ";")[0])
	switch {
	case strings.HasPrefix(base, "audio/"):
		return models.ArtifactTypeAudio
	case strings.HasPrefix(base, "video/"):
		return models.ArtifactTypeVideo
	case strings.HasPrefix(base, "image/"):
		return models.ArtifactTypeImage
	case base == "application/json":
		return models.ArtifactTypeJSON
	default:
		return models.ArtifactTypeText
	}
}

package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/store"
	"github.com/zerodaily/nexus/pkg/archive"
)

// maxImportLine bounds one export line. Pipeline state documents carry full
// stage records and error logs but stay far below this.
const maxImportLine = 4 * 1024 * 1024

// ImportService restores a document-store export produced by ExportService.
type ImportService struct {
	docs   store.DocumentStore
	logger *slog.Logger
}

// NewImportService creates an import service.
func NewImportService(docs store.DocumentStore, logger *slog.Logger) *ImportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportService{docs: docs, logger: logger}
}

// ImportOptions configures import behavior.
type ImportOptions struct {
	// Overwrite replaces documents that already exist. The default keeps
	// existing documents and counts incoming duplicates as skipped.
	Overwrite bool

	// DryRun reports what would happen without writing anything.
	DryRun bool
}

// Import restores documents from a JSON-lines export stream. Each document
// is written independently; a bad line is recorded in the result and the
// rest of the file still imports. Re-running an import is safe: existing
// documents are skipped unless Overwrite is set.
func (s *ImportService) Import(ctx context.Context, r io.Reader, opts ImportOptions) (*models.ImportResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLine)

	meta, err := readExportHeader(scanner)
	if err != nil {
		return nil, err
	}
	if err := checkFormatVersion(meta.Version); err != nil {
		return nil, err
	}

	s.logger.Info("importing document store",
		slog.String("format_version", meta.Version),
		slog.String("exported_by", meta.NexusVersion),
		slog.Int("item_count", meta.ItemCount),
		slog.Bool("dry_run", opts.DryRun))

	known := make(map[string]bool)
	for _, collection := range store.Collections() {
		known[collection] = true
	}

	result := &models.ImportResult{}
	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		result.TotalItems++

		var rec models.ExportRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.recordError(result, fmt.Sprintf("line %d", lineNum), err)
			continue
		}

		path := store.Path{Collection: rec.Collection, DocID: rec.DocID}
		if err := validateRecord(rec, known); err != nil {
			s.recordError(result, path.String(), err)
			continue
		}

		exists := true
		if _, err := s.docs.Get(ctx, path, nil); err != nil {
			if !errors.Is(err, models.ErrDocumentNotFound) {
				s.recordError(result, path.String(), err)
				continue
			}
			exists = false
		}

		if exists && !opts.Overwrite {
			result.Skipped++
			continue
		}

		if !opts.DryRun {
			if err := s.docs.Set(ctx, path, rec.Data); err != nil {
				s.recordError(result, path.String(), err)
				continue
			}
		}
		if exists {
			result.Overwritten++
		} else {
			result.Imported++
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("reading export: %w", err)
	}

	s.logger.Info("import finished",
		slog.Int("imported", result.Imported),
		slog.Int("overwritten", result.Overwritten),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors))
	return result, nil
}

// ImportFromFile restores documents from an export file, decompressing per
// its content (gzip, bzip2, xz) or .br extension.
func (s *ImportService) ImportFromFile(ctx context.Context, path string, opts ImportOptions) (*models.ImportResult, error) {
	r, err := archive.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return s.Import(ctx, r, opts)
}

func (s *ImportService) recordError(result *models.ImportResult, item string, err error) {
	result.Errors++
	result.ErrorDetails = append(result.ErrorDetails, models.ImportError{
		Item:  item,
		Error: err.Error(),
	})
}

func validateRecord(rec models.ExportRecord, known map[string]bool) error {
	if !known[rec.Collection] {
		return fmt.Errorf("unknown collection %q", rec.Collection)
	}
	if rec.DocID == "" {
		return errors.New("doc_id is required")
	}
	if len(rec.Data) == 0 || !json.Valid(rec.Data) {
		return errors.New("document data is not valid JSON")
	}
	return nil
}

func readExportHeader(scanner *bufio.Scanner) (*models.ExportMetadata, error) {
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var header models.ExportHeader
		if err := json.Unmarshal(line, &header); err != nil {
			return nil, fmt.Errorf("parsing export header: %w", err)
		}
		if header.Metadata == nil {
			return nil, errors.New("export file missing metadata header")
		}
		return header.Metadata, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	return nil, errors.New("export file is empty")
}

func checkFormatVersion(v string) error {
	got := majorVersion(v)
	if got < 0 {
		return fmt.Errorf("unrecognized export format version %q", v)
	}
	if got > majorVersion(models.ExportFormatVersion) {
		return fmt.Errorf("export format %s is newer than supported %s", v, models.ExportFormatVersion)
	}
	return nil
}

func majorVersion(v string) int {
	head, _, _ := strings.Cut(v, ".")
	n, err := strconv.Atoi(head)
	if err != nil {
		return -1
	}
	return n
}

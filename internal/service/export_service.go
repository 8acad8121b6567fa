package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/store"
	"github.com/zerodaily/nexus/internal/version"
	"github.com/zerodaily/nexus/pkg/archive"
)

// ExportService dumps the document store as a JSON-lines stream: one
// metadata header line followed by one line per document.
type ExportService struct {
	docs   store.DocumentStore
	clock  clock.Clock
	logger *slog.Logger
}

// NewExportService creates an export service.
func NewExportService(docs store.DocumentStore, clk clock.Clock, logger *slog.Logger) *ExportService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportService{docs: docs, clock: clk, logger: logger}
}

// Export writes every persisted collection to w.
func (s *ExportService) Export(ctx context.Context, w io.Writer) (*models.ExportMetadata, error) {
	collections := store.Collections()

	var records []models.ExportRecord
	for _, collection := range collections {
		snaps, err := s.docs.Query(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", collection, err)
		}
		for _, snap := range snaps {
			records = append(records, models.ExportRecord{
				Collection: snap.Path.Collection,
				DocID:      snap.Path.DocID,
				Version:    snap.Version,
				Data:       snap.Data,
			})
		}
	}

	meta := models.ExportMetadata{
		Version:      models.ExportFormatVersion,
		NexusVersion: version.Version,
		ExportedAt:   s.clock.Now().UTC(),
		Collections:  collections,
		ItemCount:    len(records),
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(models.ExportHeader{Metadata: &meta}); err != nil {
		return nil, fmt.Errorf("writing export header: %w", err)
	}
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("writing %s/%s: %w", rec.Collection, rec.DocID, err)
		}
	}

	s.logger.Info("exported document store", slog.Int("documents", len(records)))
	return &meta, nil
}

// ExportToFile writes the export to path, compressed per its extension
// (.gz, .bz2, .xz, .br; anything else is plain JSON lines).
func (s *ExportService) ExportToFile(ctx context.Context, path string) (*models.ExportMetadata, error) {
	w, err := archive.CreateFile(path)
	if err != nil {
		return nil, err
	}

	meta, err := s.Export(ctx, w)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("closing %s: %w", path, cerr)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("wrote export file",
		slog.String("path", path),
		slog.String("compression", w.Compression().String()))
	return meta, nil
}

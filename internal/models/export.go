package models

import (
	"encoding/json"
	"time"
)

// ExportFormatVersion is the current version of the export file format.
// Imports reject files written with a newer major version.
const ExportFormatVersion = "1.0.0"

// ExportMetadata is the header line of a document-store export file.
type ExportMetadata struct {
	Version      string    `json:"version"`
	NexusVersion string    `json:"nexus_version"`
	ExportedAt   time.Time `json:"exported_at"`
	Collections  []string  `json:"collections"`
	ItemCount    int       `json:"item_count"`
}

// ExportHeader wraps the metadata so the header line is distinguishable from
// document lines when scanning an export file.
type ExportHeader struct {
	Metadata *ExportMetadata `json:"metadata"`
}

// ExportRecord is one document line in an export file. Version is the stored
// CAS token at export time; it is diagnostic only and not restored on import.
type ExportRecord struct {
	Collection string          `json:"collection"`
	DocID      string          `json:"doc_id"`
	Version    int64           `json:"version"`
	Data       json.RawMessage `json:"data"`
}

// ImportResult summarises an import run.
type ImportResult struct {
	TotalItems   int           `json:"total_items"`
	Imported     int           `json:"imported"`
	Overwritten  int           `json:"overwritten"`
	Skipped      int           `json:"skipped"`
	Errors       int           `json:"errors"`
	ErrorDetails []ImportError `json:"error_details,omitempty"`
}

// ImportError describes a single document that could not be imported.
type ImportError struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// Package store provides the persistent document store: a small
// Firestore-shaped contract over a gorm documents table, pure path builders
// for every collection the orchestrator uses, and typed stores layered on
// top for the domain documents.
package store

import (
	"context"
	"encoding/json"
)

// Path identifies one document as collection plus document id.
type Path struct {
	Collection string
	DocID      string
}

// String renders the path in collection/id form for logs.
func (p Path) String() string {
	return p.Collection + "/" + p.DocID
}

// Collection names. The document id layouts under them are produced by the
// path builders below and nowhere else.
const (
	CollectionPipelines = "pipelines"
	CollectionBuffers   = "buffer-videos"
	CollectionIncidents = "incidents"
	CollectionReviews   = "review-queue"
	CollectionBudget    = "budget"
	CollectionQuota     = "youtube-quota"
)

// Collections returns every collection the orchestrator persists, in a
// stable order. Used by export.
func Collections() []string {
	return []string{
		CollectionPipelines,
		CollectionBuffers,
		CollectionIncidents,
		CollectionReviews,
		CollectionBudget,
		CollectionQuota,
	}
}

// PipelineStatePath locates the run state document for a pipeline id.
func PipelineStatePath(pipelineID string) Path {
	return Path{CollectionPipelines, pipelineID + "/state"}
}

// PipelineArtifactsPath locates the artifact index for a pipeline id.
func PipelineArtifactsPath(pipelineID string) Path {
	return Path{CollectionPipelines, pipelineID + "/artifacts"}
}

// PipelineCostsPath locates the cost sheet for a pipeline id.
func PipelineCostsPath(pipelineID string) Path {
	return Path{CollectionPipelines, pipelineID + "/costs"}
}

// PipelineQualityPath locates the quality report for a pipeline id.
func PipelineQualityPath(pipelineID string) Path {
	return Path{CollectionPipelines, pipelineID + "/quality"}
}

// BufferVideoPath locates one buffer video document.
func BufferVideoPath(bufferID string) Path {
	return Path{CollectionBuffers, bufferID}
}

// IncidentPath locates one incident record.
func IncidentPath(incidentID string) Path {
	return Path{CollectionIncidents, incidentID}
}

// ReviewItemPath locates one review-queue item.
func ReviewItemPath(reviewID string) Path {
	return Path{CollectionReviews, reviewID}
}

// BudgetPath locates the single mutable budget document.
func BudgetPath() Path {
	return Path{CollectionBudget, "current"}
}

// QuotaPath locates the publish-quota counter for a date.
func QuotaPath(date string) Path {
	return Path{CollectionQuota, date}
}

// Snapshot is one document read back from a query: the raw payload plus the
// version token needed for a subsequent CompareAndSet.
type Snapshot struct {
	Path    Path
	Version int64
	Data    json.RawMessage
}

// Decode unmarshals the snapshot payload into out.
func (s Snapshot) Decode(out any) error {
	return json.Unmarshal(s.Data, out)
}

// DocumentStore is the persistence contract the orchestrator core depends
// on. Implementations must make Set/CompareAndSet durable before returning:
// the stage executor relies on write-then-proceed ordering.
type DocumentStore interface {
	// Get decodes the document at path into out and returns its version.
	// Returns models.ErrDocumentNotFound when absent.
	Get(ctx context.Context, path Path, out any) (int64, error)

	// Set upserts the document at path, bumping its version.
	Set(ctx context.Context, path Path, value any) error

	// Update merges fields into the existing document's top-level JSON
	// object. Returns models.ErrDocumentNotFound when absent.
	Update(ctx context.Context, path Path, fields map[string]any) error

	// Query returns the documents of a collection matching every filter.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error)

	// CompareAndSet writes value only when the stored version still equals
	// expectedVersion. expectedVersion 0 means "create new"; an existing
	// document then fails the swap. Version mismatch returns
	// models.ErrVersionConflict.
	CompareAndSet(ctx context.Context, path Path, value any, expectedVersion int64) error

	// Delete removes the document at path. Deleting an absent document is
	// not an error.
	Delete(ctx context.Context, path Path) error
}

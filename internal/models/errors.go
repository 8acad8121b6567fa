package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
// Validation errors map to exit code 2 and HTTP 400.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common domain errors.
var (
	// ErrPipelineIDRequired indicates a required pipeline id is empty.
	ErrPipelineIDRequired = errors.New("pipeline id is required")

	// ErrInvalidPipelineID indicates a pipeline id that is not a YYYY-MM-DD date.
	ErrInvalidPipelineID = errors.New("pipeline id must be a date in YYYY-MM-DD form")

	// ErrInvalidStage indicates a stage name outside the registry.
	ErrInvalidStage = errors.New("unknown stage name")

	// ErrPipelineNotFound indicates no state exists for the pipeline id.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrPipelineNotFailed indicates a retry against a pipeline that is not
	// in the failed state.
	ErrPipelineNotFailed = errors.New("pipeline is not in failed state")

	// ErrPipelineAlreadyRunning indicates a duplicate trigger for an id with
	// an in-flight run.
	ErrPipelineAlreadyRunning = errors.New("pipeline is already running")

	// ErrPipelineAlreadyCompleted indicates a trigger for an id that already
	// reached a terminal state. Failed runs are re-entered through retry,
	// never through a fresh trigger.
	ErrPipelineAlreadyCompleted = errors.New("pipeline already completed for this date")

	// ErrCollectionRequired indicates a document with no collection.
	ErrCollectionRequired = errors.New("collection is required")

	// ErrDocIDRequired indicates a document with no id.
	ErrDocIDRequired = errors.New("document id is required")

	// ErrInvalidDocumentData indicates a document payload that is not valid JSON.
	ErrInvalidDocumentData = errors.New("document data must be valid JSON")

	// ErrDocumentNotFound indicates a missing document at a store path.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrVersionConflict indicates a compare-and-set lost the race.
	ErrVersionConflict = errors.New("document version conflict")

	// ErrBufferAlreadyUsed indicates a deployment attempt on a consumed buffer.
	ErrBufferAlreadyUsed = errors.New("buffer video already used")

	// ErrBufferNotFound indicates a missing buffer video document.
	ErrBufferNotFound = errors.New("buffer video not found")

	// ErrIncidentNotFound indicates a missing incident record.
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrInvalidDate indicates a date string that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("date must be in YYYY-MM-DD form")

	// ErrInvalidArtifactStage indicates an artifact path outside the stage enum.
	ErrInvalidArtifactStage = errors.New("invalid artifact stage")
)

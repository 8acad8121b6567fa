package models

import (
	"encoding/json"

	"gorm.io/gorm"
)

// Document is a single row in the document store. Every persisted domain
// object (pipeline state, buffer video, incident, cost sheet, budget, quota,
// review item) is stored as one JSON document keyed by (collection, doc_id).
//
// Version increments on every write and is the token used for optimistic
// compare-and-set updates.
type Document struct {
	BaseModel
	Collection string `gorm:"not null;size:100;uniqueIndex:idx_documents_coll_doc;index" json:"collection"`
	DocID      string `gorm:"not null;size:200;uniqueIndex:idx_documents_coll_doc" json:"doc_id"`
	Version    int64  `gorm:"not null;default:1" json:"version"`
	Data       []byte `gorm:"type:text;not null" json:"data"`
}

// Validate checks the document for required fields and well-formed payload.
func (d *Document) Validate() error {
	if d.Collection == "" {
		return ErrCollectionRequired
	}
	if d.DocID == "" {
		return ErrDocIDRequired
	}
	if len(d.Data) == 0 || !json.Valid(d.Data) {
		return ErrInvalidDocumentData
	}
	return nil
}

// BeforeCreate validates the document and assigns its ULID. Updates are
// column maps written by the store against an empty model receiver, so
// validation must not hook the update path.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if err := d.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return d.Validate()
}

// Decode unmarshals the document payload into out.
func (d *Document) Decode(out any) error {
	return json.Unmarshal(d.Data, out)
}

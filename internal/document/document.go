// Package document manages editor documents, their modification secrets,
// ownership, and retention.
package document

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/inkpad/service/internal/image"
)

// Field names understood by query predicates over documents.
const (
	FieldID                 = "id"
	FieldModificationSecret = "modificationSecret"
	FieldOwnerExternalID    = "ownerExternalId"
	FieldCreatedAt          = "createdAt"
	FieldUpdatedAt          = "updatedAt"
	FieldLastAccessedAt     = "lastAccessedAt"
)

// ErrNotFound is returned when a document does not exist or the id is malformed.
var ErrNotFound = errors.New("document not found")

// Document is an editor document. Data is the editor state and is never
// interpreted by the service.
type Document struct {
	ID                 string          `json:"id"`
	ModificationSecret string          `json:"modificationSecret,omitempty"`
	OwnerExternalID    *string         `json:"ownerExternalId"`
	Data               json.RawMessage `json:"data" swaggertype:"object"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	LastAccessedAt     time.Time       `json:"lastAccessedAt"`
	Images             []*image.Image  `json:"images,omitempty"`
}

// Public returns a copy of d without the modification secret.
func (d *Document) Public() *Document {
	cp := *d
	cp.ModificationSecret = ""
	return &cp
}

// Field implements query.Record.
func (d *Document) Field(name string) (any, bool) {
	switch name {
	case FieldID:
		return d.ID, true
	case FieldModificationSecret:
		return d.ModificationSecret, true
	case FieldOwnerExternalID:
		return d.OwnerExternalID, true
	case FieldCreatedAt:
		return d.CreatedAt, true
	case FieldUpdatedAt:
		return d.UpdatedAt, true
	case FieldLastAccessedAt:
		return d.LastAccessedAt, true
	}
	return nil, false
}

// Patch lists the columns an update changes. Nil fields are left alone.
// Setting Data also bumps UpdatedAt.
type Patch struct {
	Data           *json.RawMessage
	LastAccessedAt *time.Time
}

type findOptions struct {
	includeImages bool
}

// FindOption tunes FindOne and FindMany.
type FindOption func(*findOptions)

// WithImages loads each document's images, oldest first.
func WithImages() FindOption {
	return func(o *findOptions) { o.includeImages = true }
}

func applyFindOptions(opts []FindOption) findOptions {
	var o findOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

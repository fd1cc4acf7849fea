// Package image manages images embedded in documents: their metadata rows
// and the encrypted objects holding their bytes.
package image

import (
	"errors"
	"path"
	"strings"
	"time"
)

// AnonymizedBaseName replaces every uploaded file name so that user-supplied
// names never reach storage or response headers.
const AnonymizedBaseName = "image"

// Field names understood by query predicates over images.
const (
	FieldID         = "id"
	FieldDocumentID = "documentId"
	FieldName       = "name"
	FieldMimetype   = "mimetype"
	FieldCreatedAt  = "createdAt"
	FieldUpdatedAt  = "updatedAt"
)

var (
	// ErrNotFound is returned when an image does not exist or the id is malformed.
	ErrNotFound = errors.New("image not found")
	// ErrDocumentNotFound is returned when creating an image for an unknown document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrUnsupportedMediaType is returned for uploads outside the allow-list.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// Image is the metadata of an image attached to a document.
type Image struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Mimetype   string    `json:"mimetype"`
	DocumentID string    `json:"documentId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Field implements query.Record.
func (i *Image) Field(name string) (any, bool) {
	switch name {
	case FieldID:
		return i.ID, true
	case FieldDocumentID:
		return i.DocumentID, true
	case FieldName:
		return i.Name, true
	case FieldMimetype:
		return i.Mimetype, true
	case FieldCreatedAt:
		return i.CreatedAt, true
	case FieldUpdatedAt:
		return i.UpdatedAt, true
	}
	return nil, false
}

// ObjectKey is the storage key holding the image bytes.
func (i *Image) ObjectKey() string {
	return i.DocumentID + "/" + i.ID
}

// NormalizeName returns AnonymizedBaseName plus the lower-cased extension of
// original, e.g. "Holiday Photo.JPG" -> "image.jpg".
func NormalizeName(original string) string {
	// Clients on Windows send backslash-separated paths.
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := strings.ToLower(path.Ext(base))
	if ext == "." || ext == base {
		ext = ""
	}
	return AnonymizedBaseName + ext
}

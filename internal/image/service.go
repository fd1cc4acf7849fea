package image

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inkpad/service/internal/metrics"
	"github.com/inkpad/service/internal/query"
	"github.com/inkpad/service/internal/storage"
)

// DocumentChecker reports whether a document exists.
type DocumentChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Service contains business logic for image metadata and image bytes.
//
// Row operations (Create, Get, Delete) never touch object storage. Callers
// that need both use Upload and Remove, which order the two stores so that a
// failure leaves either nothing or a retryable row behind.
type Service struct {
	repo  Repository
	store storage.Storage
	docs  DocumentChecker
	log   zerolog.Logger
}

// NewService creates a new image Service.
func NewService(repo Repository, store storage.Storage, docs DocumentChecker, log zerolog.Logger) *Service {
	return &Service{repo: repo, store: store, docs: docs, log: log}
}

// Create registers an image for documentID under an anonymized name.
func (s *Service) Create(ctx context.Context, documentID, mimetype, originalName string) (*Image, error) {
	docID, ok := parseID(documentID)
	if !ok {
		return nil, ErrDocumentNotFound
	}
	exists, err := s.docs.Exists(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("check document: %w", err)
	}
	if !exists {
		return nil, ErrDocumentNotFound
	}

	img := &Image{
		ID:         uuid.NewString(),
		Name:       NormalizeName(originalName),
		Mimetype:   mimetype,
		DocumentID: docID,
	}
	if err := s.repo.Create(ctx, img); err != nil {
		return nil, err
	}
	return img, nil
}

// Get returns an image by id. Empty or malformed ids yield ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Image, error) {
	imgID, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}
	return s.repo.FindOne(ctx, query.Equals(FieldID, imgID))
}

// ListByDocument returns the images of a document, oldest first.
func (s *Service) ListByDocument(ctx context.Context, documentID string) ([]*Image, error) {
	docID, ok := parseID(documentID)
	if !ok {
		return []*Image{}, nil
	}
	return s.repo.FindMany(ctx, query.Equals(FieldDocumentID, docID), query.Asc(FieldCreatedAt))
}

// Delete removes the image row belonging to documentID and returns it.
// The stored object is left alone; see Remove.
func (s *Service) Delete(ctx context.Context, documentID, id string) (*Image, error) {
	img, err := s.owned(ctx, documentID, id)
	if err != nil {
		return nil, err
	}
	return s.repo.Delete(ctx, img.ID)
}

// Store writes the image bytes to object storage.
func (s *Service) Store(ctx context.Context, img *Image, r io.Reader, size int64) error {
	if err := s.store.Upload(ctx, img.ObjectKey(), r, size, img.Mimetype); err != nil {
		return fmt.Errorf("store image %s: %w", img.ID, err)
	}
	return nil
}

// Open returns the decrypted image bytes. The caller must close the reader.
func (s *Service) Open(ctx context.Context, img *Image) (io.ReadCloser, error) {
	rc, err := s.store.Download(ctx, img.ObjectKey())
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", img.ID, err)
	}
	return rc, nil
}

// RemoveObject deletes the image bytes from object storage.
func (s *Service) RemoveObject(ctx context.Context, img *Image) error {
	if err := s.store.Delete(ctx, img.ObjectKey()); err != nil {
		return fmt.Errorf("remove image object %s: %w", img.ID, err)
	}
	return nil
}

// Upload creates the image row and stores its bytes. When the object write
// fails the row is deleted again so no image points at missing bytes.
func (s *Service) Upload(ctx context.Context, documentID, mimetype, originalName string, r io.Reader, size int64) (*Image, error) {
	img, err := s.Create(ctx, documentID, mimetype, originalName)
	if err != nil {
		return nil, err
	}

	if err := s.Store(ctx, img, r, size); err != nil {
		// The request context may already be cancelled; compensate regardless.
		if _, derr := s.repo.Delete(context.WithoutCancel(ctx), img.ID); derr != nil {
			s.log.Error().Err(derr).Str("image_id", img.ID).Msg("image: rollback of failed upload left a row behind")
		}
		return nil, err
	}

	metrics.ImagesUploaded.Inc()
	return img, nil
}

// Remove deletes the stored object first and the row second. A storage
// failure aborts before the row is touched so the delete can be retried.
func (s *Service) Remove(ctx context.Context, documentID, id string) error {
	img, err := s.owned(ctx, documentID, id)
	if err != nil {
		return err
	}
	if err := s.RemoveObject(ctx, img); err != nil {
		return err
	}
	if _, err := s.repo.Delete(ctx, img.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// IsNotFound returns true when the error indicates an image was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func (s *Service) owned(ctx context.Context, documentID, id string) (*Image, error) {
	docID, ok := parseID(documentID)
	if !ok {
		return nil, ErrNotFound
	}
	imgID, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}
	return s.repo.FindOne(ctx, query.And(
		query.Equals(FieldID, imgID),
		query.Equals(FieldDocumentID, docID),
	))
}

// parseID returns the canonical form of a UUID string.
func parseID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

package document

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inkpad/service/internal/image"
	"github.com/inkpad/service/internal/metrics"
	"github.com/inkpad/service/internal/query"
)

// ImageRemover is the part of the image service a document delete cascades through.
type ImageRemover interface {
	ListByDocument(ctx context.Context, documentID string) ([]*image.Image, error)
	Remove(ctx context.Context, documentID, id string) error
}

// Service contains business logic for documents.
type Service struct {
	repo   Repository
	images ImageRemover
	log    zerolog.Logger
	now    func() time.Time
}

// NewService creates a new document Service.
func NewService(repo Repository, images ImageRemover, log zerolog.Logger) *Service {
	return &Service{repo: repo, images: images, log: log, now: time.Now}
}

// Create stores a new document with a fresh id and modification secret.
// owner is stored verbatim; nil means anonymous.
func (s *Service) Create(ctx context.Context, owner *string) (*Document, error) {
	d := &Document{
		ID:                 uuid.NewString(),
		ModificationSecret: uuid.NewString(),
	}
	if owner != nil {
		o := *owner
		d.OwnerExternalID = &o
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	metrics.DocumentsCreated.Inc()
	return d, nil
}

// Fetch returns a document with its images. It does not refresh the last
// access time; callers that serve the document call TouchLastAccessed.
func (s *Service) Fetch(ctx context.Context, id string) (*Document, error) {
	docID, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}
	return s.repo.FindOne(ctx, query.Equals(FieldID, docID), WithImages())
}

// Exists reports whether a document with id exists.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return exists(ctx, s.repo, id)
}

// IsValidModificationSecret reports whether secret belongs to document id.
func (s *Service) IsValidModificationSecret(ctx context.Context, id, secret string) (bool, error) {
	docID, ok := parseID(id)
	if !ok || secret == "" {
		return false, nil
	}
	d, err := s.repo.FindOne(ctx, query.Equals(FieldID, docID))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check modification secret: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(d.ModificationSecret), []byte(secret)) == 1, nil
}

// Update overwrites the document data. The caller must have checked the
// modification secret.
func (s *Service) Update(ctx context.Context, id string, data json.RawMessage) (*Document, error) {
	docID, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}
	return s.repo.Update(ctx, docID, Patch{Data: &data})
}

// TouchLastAccessed sets the last access time to now.
func (s *Service) TouchLastAccessed(ctx context.Context, id string) error {
	docID, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}
	now := s.now().UTC()
	_, err := s.repo.Update(ctx, docID, Patch{LastAccessedAt: &now})
	return err
}

// Delete removes the document and its images when secret matches. It
// returns false for unknown ids and wrong secrets.
func (s *Service) Delete(ctx context.Context, id, secret string) (bool, error) {
	valid, err := s.IsValidModificationSecret(ctx, id, secret)
	if err != nil || !valid {
		return false, err
	}
	docID, _ := parseID(id)
	if err := s.purge(ctx, docID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	metrics.DocumentsDeleted.WithLabelValues(metrics.ReasonExplicit).Inc()
	return true, nil
}

// ListByOwner returns the documents of owner, oldest first. A nil owner
// yields an empty list.
func (s *Service) ListByOwner(ctx context.Context, owner *string) ([]*Document, error) {
	if owner == nil {
		return []*Document{}, nil
	}
	return s.repo.FindMany(ctx,
		query.Equals(FieldOwnerExternalID, *owner),
		[]query.Order{query.Asc(FieldCreatedAt)},
	)
}

// DeleteOlderThan removes every document last accessed before cutoff,
// regardless of modification secret. Documents that vanish concurrently
// are skipped. It returns how many documents it deleted.
func (s *Service) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.repo.FindMany(ctx,
		query.LessThan(FieldLastAccessedAt, cutoff),
		[]query.Order{query.Asc(FieldLastAccessedAt)},
	)
	if err != nil {
		return 0, fmt.Errorf("find stale documents: %w", err)
	}

	var (
		deleted int
		errs    []error
	)
	for _, d := range stale {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := s.purge(ctx, d.ID)
		switch {
		case err == nil:
			deleted++
			metrics.DocumentsDeleted.WithLabelValues(metrics.ReasonRetention).Inc()
		case errors.Is(err, ErrNotFound):
		default:
			s.log.Warn().Err(err).Str("document_id", d.ID).Msg("retention: failed to delete document")
			errs = append(errs, fmt.Errorf("document %s: %w", d.ID, err))
		}
	}
	return deleted, errors.Join(errs...)
}

// IsNotFound returns true when the error indicates a document was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// purge removes every image (object first, then row) and finally the
// document row. Any failure stops before the document row is deleted, so
// the purge can be repeated.
func (s *Service) purge(ctx context.Context, id string) error {
	imgs, err := s.images.ListByDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}
	for _, img := range imgs {
		if err := s.images.Remove(ctx, id, img.ID); err != nil && !errors.Is(err, image.ErrNotFound) {
			return fmt.Errorf("remove image %s: %w", img.ID, err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete document: %w", err)
	}
	s.log.Debug().Str("document_id", id).Int("images", len(imgs)).Msg("document deleted")
	return nil
}

// ExistenceChecker adapts a Repository to image.DocumentChecker without a
// full Service.
func ExistenceChecker(repo Repository) image.DocumentChecker {
	return existence{repo: repo}
}

type existence struct {
	repo Repository
}

func (e existence) Exists(ctx context.Context, id string) (bool, error) {
	return exists(ctx, e.repo, id)
}

func exists(ctx context.Context, repo Repository, id string) (bool, error) {
	docID, ok := parseID(id)
	if !ok {
		return false, nil
	}
	_, err := repo.FindOne(ctx, query.Equals(FieldID, docID))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check document: %w", err)
	}
	return true, nil
}

// parseID returns the canonical form of a UUID string.
func parseID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

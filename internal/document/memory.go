package document

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/inkpad/service/internal/image"
	"github.com/inkpad/service/internal/query"
)

// MemoryRepository keeps documents in process memory. Images are resolved
// through the given image repository when WithImages is requested.
type MemoryRepository struct {
	mu     sync.RWMutex
	store  map[string]*Document
	order  []string
	images image.Repository
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository(images image.Repository) *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*Document), images: images}
}

func (m *MemoryRepository) Create(ctx context.Context, d *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[d.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range m.store {
		if existing.ModificationSecret == d.ModificationSecret {
			return ErrDuplicate
		}
	}

	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.LastAccessedAt = now
	m.store[d.ID] = clone(d)
	m.order = append(m.order, d.ID)
	return nil
}

func (m *MemoryRepository) FindOne(ctx context.Context, pred query.Predicate, opts ...FindOption) (*Document, error) {
	found, err := m.FindMany(ctx, pred, []query.Order{query.Asc(FieldCreatedAt)}, opts...)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (m *MemoryRepository) FindMany(ctx context.Context, pred query.Predicate, orders []query.Order, opts ...FindOption) ([]*Document, error) {
	m.mu.RLock()
	out := []*Document{}
	for _, id := range m.order {
		if d, ok := m.store[id]; ok && pred.Match(d) {
			out = append(out, clone(d))
		}
	}
	m.mu.RUnlock()
	query.Sort(out, orders...)

	if applyFindOptions(opts).includeImages {
		for _, d := range out {
			imgs, err := m.images.FindMany(ctx, query.Equals(image.FieldDocumentID, d.ID), query.Asc(image.FieldCreatedAt))
			if err != nil {
				return nil, err
			}
			d.Images = imgs
		}
	}
	return out, nil
}

func (m *MemoryRepository) Update(ctx context.Context, id string, patch Patch) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Data != nil {
		d.Data = append([]byte(nil), (*patch.Data)...)
		d.UpdatedAt = time.Now().UTC()
	}
	if patch.LastAccessedAt != nil {
		d.LastAccessedAt = patch.LastAccessedAt.UTC()
	}
	return clone(d), nil
}

// Delete refuses to remove a document that still has images, mirroring the
// foreign key on images.document_id.
func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	if _, err := m.images.FindOne(ctx, query.Equals(image.FieldDocumentID, id)); err == nil {
		return ErrHasImages
	} else if !errors.Is(err, image.ErrNotFound) {
		return err
	}

	delete(m.store, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func clone(d *Document) *Document {
	cp := *d
	if d.OwnerExternalID != nil {
		owner := *d.OwnerExternalID
		cp.OwnerExternalID = &owner
	}
	if d.Data != nil {
		cp.Data = append([]byte(nil), d.Data...)
	}
	cp.Images = nil
	return &cp
}

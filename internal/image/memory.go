package image

import (
	"context"
	"sync"
	"time"

	"github.com/inkpad/service/internal/query"
)

// MemoryRepository keeps images in process memory. It backs tests and the
// STORE_DRIVER=memory mode.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*Image
	order []string // insertion order, used to break createdAt ties
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*Image)}
}

func (m *MemoryRepository) Create(ctx context.Context, img *Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	img.CreatedAt = now
	img.UpdatedAt = now
	cp := *img
	m.store[img.ID] = &cp
	m.order = append(m.order, img.ID)
	return nil
}

func (m *MemoryRepository) FindOne(ctx context.Context, pred query.Predicate) (*Image, error) {
	found, err := m.FindMany(ctx, pred, query.Asc(FieldCreatedAt))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (m *MemoryRepository) FindMany(ctx context.Context, pred query.Predicate, orders ...query.Order) ([]*Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Image{}
	for _, id := range m.order {
		img, ok := m.store[id]
		if ok && pred.Match(img) {
			cp := *img
			out = append(out, &cp)
		}
	}
	query.Sort(out, orders...)
	return out, nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id string) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.store, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return img, nil
}

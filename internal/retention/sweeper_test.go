package retention

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpad/service/internal/document"
	"github.com/inkpad/service/internal/image"
	"github.com/inkpad/service/internal/storage"
)

const day = 24 * time.Hour

// recordingDeleter counts calls and remembers the last cutoff.
type recordingDeleter struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	err     error
	called  chan struct{}
}

func newRecordingDeleter() *recordingDeleter {
	return &recordingDeleter{called: make(chan struct{}, 16)}
}

func (d *recordingDeleter) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	d.mu.Lock()
	d.calls++
	d.cutoffs = append(d.cutoffs, cutoff)
	d.mu.Unlock()
	select {
	case d.called <- struct{}{}:
	default:
	}
	return 0, d.err
}

func TestCutoff(t *testing.T) {
	s := NewSweeper(newRecordingDeleter(), Config{MaxAge: 730 * day}, zerolog.Nop())
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	assert.Equal(t, now.Add(-730*day), s.Cutoff())
}

func TestSweepReturnsDeleterError(t *testing.T) {
	d := newRecordingDeleter()
	d.err = errors.New("db down")
	s := NewSweeper(d, Config{MaxAge: day}, zerolog.Nop())

	_, err := s.Sweep(context.Background())
	assert.ErrorIs(t, err, d.err)
}

func TestSweepDeletesOnlyStaleDocuments(t *testing.T) {
	ctx := context.Background()
	imgRepo := image.NewMemoryRepository()
	docRepo := document.NewMemoryRepository(imgRepo)
	store := storage.NewMemoryStorage()
	imgs := image.NewService(imgRepo, store, document.ExistenceChecker(docRepo), zerolog.Nop())
	docs := document.NewService(docRepo, imgs, zerolog.Nop())

	stale, err := docs.Create(ctx, nil)
	require.NoError(t, err)
	old := time.Now().Add(-731 * day)
	_, err = docRepo.Update(ctx, stale.ID, document.Patch{LastAccessedAt: &old})
	require.NoError(t, err)
	content := []byte("bytes")
	_, err = imgs.Upload(ctx, stale.ID, "image/png", "a.png", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	fresh, err := docs.Create(ctx, nil)
	require.NoError(t, err)

	s := NewSweeper(docs, Config{Enabled: true, Interval: time.Hour, MaxAge: 730 * day}, zerolog.Nop())
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = docs.Fetch(ctx, stale.ID)
	assert.ErrorIs(t, err, document.ErrNotFound)
	_, err = docs.Fetch(ctx, fresh.ID)
	assert.NoError(t, err)
	assert.Empty(t, store.Keys())

	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunDisabledReturnsImmediately(t *testing.T) {
	d := newRecordingDeleter()
	s := NewSweeper(d, Config{Enabled: false, Interval: time.Millisecond, MaxAge: day}, zerolog.Nop())

	s.Run(context.Background())
	assert.Zero(t, d.calls)
}

func TestRunSweepsImmediatelyAndStopsOnCancel(t *testing.T) {
	d := newRecordingDeleter()
	s := NewSweeper(d, Config{Enabled: true, Interval: time.Hour, MaxAge: day}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-d.called:
	case <-time.After(5 * time.Second):
		t.Fatal("no initial sweep")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, 1, d.calls)
}

// Package retention deletes documents that have not been accessed for a
// configured number of days.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkpad/service/internal/metrics"
)

// Deleter removes every document last accessed before cutoff and reports how
// many were deleted.
type Deleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Config controls the sweeper.
type Config struct {
	Enabled  bool
	Interval time.Duration
	MaxAge   time.Duration
}

// Sweeper periodically deletes stale documents.
type Sweeper struct {
	docs Deleter
	cfg  Config
	log  zerolog.Logger
	now  func() time.Time
}

// NewSweeper creates a Sweeper over docs.
func NewSweeper(docs Deleter, cfg Config, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		docs: docs,
		cfg:  cfg,
		log:  log.With().Str("service", "retention").Logger(),
		now:  time.Now,
	}
}

// Cutoff returns the instant before which documents are considered stale.
func (s *Sweeper) Cutoff() time.Time {
	return s.now().Add(-s.cfg.MaxAge)
}

// Sweep runs one retention pass. The candidate set is recomputed on every
// call, so repeating a partially failed sweep is safe.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	cutoff := s.Cutoff()

	deleted, err := s.docs.DeleteOlderThan(ctx, cutoff)
	metrics.RetentionSweepDuration.Observe(time.Since(start).Seconds())

	ev := s.log.Info()
	result := "ok"
	if err != nil {
		ev = s.log.Error().Err(err)
		result = "error"
	}
	metrics.RetentionSweeps.WithLabelValues(result).Inc()
	ev.Time("cutoff", cutoff).
		Int("deleted", deleted).
		Dur("duration", time.Since(start)).
		Msg("sweep complete")
	return deleted, err
}

// Run sweeps once immediately and then every Interval until ctx is done.
// It returns at once when the sweeper is disabled.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info().Msg("disabled")
		return
	}

	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Dur("max_age", s.cfg.MaxAge).
		Msg("starting")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("shutting down")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep discards the result; Sweep logs failures and the next tick retries.
func (s *Sweeper) sweep(ctx context.Context) {
	_, _ = s.Sweep(ctx)
}

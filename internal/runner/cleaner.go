package runner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// CleanupConfig tunes a Cleaner.
type CleanupConfig struct {
	// Retention is how long finished actions are kept.
	Retention time.Duration
	// BatchSize limits deletions per run.
	BatchSize int
	// ClaimTimeout is how long a claim or a started action may stay open.
	ClaimTimeout time.Duration
}

// CleanupStats counts what a cleanup run changed.
type CleanupStats struct {
	Deleted int64
	Reset   int64
	Failed  int64
}

// Cleaner keeps the claim store tidy: it drops old finished actions and
// recovers actions stranded by runners that died.
type Cleaner struct {
	store CleanupStore
	cfg   CleanupConfig
	now   func() time.Time
}

func NewCleaner(store CleanupStore, cfg CleanupConfig) *Cleaner {
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 5 * time.Minute
	}
	return &Cleaner{store: store, cfg: cfg, now: time.Now}
}

// WithRetention returns a copy of c that keeps finished actions for d.
func (c *Cleaner) WithRetention(d time.Duration) *Cleaner {
	cp := *c
	if d > 0 {
		cp.cfg.Retention = d
	}
	return &cp
}

// Clean runs every step and returns the joined errors of the failed ones.
func (c *Cleaner) Clean(ctx context.Context) (CleanupStats, error) {
	var (
		stats CleanupStats
		errs  []error
		err   error
	)
	now := c.now()

	stats.Deleted, err = c.store.DeleteFinishedBefore(ctx, now.Add(-c.cfg.Retention), c.cfg.BatchSize)
	errs = append(errs, err)

	stats.Reset, err = c.store.ResetStaleClaims(ctx, now.Add(-c.cfg.ClaimTimeout))
	errs = append(errs, err)

	stats.Failed, err = c.store.FailStaleInProgress(ctx, now.Add(-c.cfg.ClaimTimeout))
	errs = append(errs, err)

	if stats.Deleted > 0 || stats.Reset > 0 || stats.Failed > 0 {
		log.Info().
			Int64("deleted", stats.Deleted).
			Int64("reset", stats.Reset).
			Int64("failed", stats.Failed).
			Msg("queue cleaned")
	}
	return stats, errors.Join(errs...)
}

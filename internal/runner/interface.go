package runner

import (
	"context"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/models"
)

// Store is the claim store as seen by the execution side.
type Store interface {
	Get(ctx context.Context, id uint) (*models.Action, error)
	StakeClaim(ctx context.Context, limit int, hooks []string, group string, now time.Time) (*models.StakedClaim, error)
	ReleaseClaim(ctx context.Context, claimID uint) error
	ClaimIDOf(ctx context.Context, actionID uint) (uint, error)
	ClaimCount(ctx context.Context) (int64, error)

	MarkInProgress(ctx context.Context, id uint, now time.Time) error
	MarkComplete(ctx context.Context, id uint, now time.Time) error
	MarkFailure(ctx context.Context, id uint, reason string, now time.Time) error
	Log(ctx context.Context, id uint, message string) error
}

// CleanupStore is the subset used by the Cleaner.
type CleanupStore interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	ResetStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error)
	FailStaleInProgress(ctx context.Context, startedBefore time.Time) (int64, error)
}

package scheduler

import (
	"context"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/models"
)

// Scheduler is implemented by both backends. Operations report success as a
// boolean; ordinary operational problems are logged, never returned.
//
// args is a value-equality key. UnscheduleAll treats a nil args as "any
// arguments" and a non-nil empty args as "only the empty argument list";
// every other operation treats nil like an empty list. An empty group means
// config.DefaultGroup.
type Scheduler interface {
	Name() string
	Available(ctx context.Context) bool

	ScheduleRecurring(ctx context.Context, hook string, firstRun time.Time, interval time.Duration, args models.Args, group string) bool
	ScheduleSingle(ctx context.Context, hook string, runAt time.Time, args models.Args, group string) bool
	NextScheduled(ctx context.Context, hook string, args models.Args, group string) (time.Time, bool)
	Unschedule(ctx context.Context, hook string, args models.Args, group string) bool
	UnscheduleAll(ctx context.Context, hook string, args models.Args, group string) bool
	HasScheduled(ctx context.Context, hook string, args models.Args, group string) bool
	ScheduledHooks(ctx context.Context, prefix string, limit int, group string) []string

	// Search and SearchIDs are the two return formats of a search.
	Search(ctx context.Context, q models.ActionQuery) []models.Summary
	SearchIDs(ctx context.Context, q models.ActionQuery) []string
}

// ActionStore is the claim store as seen by the scheduling side.
type ActionStore interface {
	// Ready reports whether the store finished its own initialization.
	Ready() bool
	Create(ctx context.Context, action *models.Action) error
	Find(ctx context.Context, q models.ActionQuery) ([]models.Action, error)
	Count(ctx context.Context, q models.ActionQuery) (int64, error)
	Delete(ctx context.Context, id uint) error
	DeleteAll(ctx context.Context, hook string, args models.Args, group string) (int64, error)
	DeleteUnclaimed(ctx context.Context, hook string, args models.Args, group string) (int64, error)
	Cancel(ctx context.Context, id uint) error
	Hooks(ctx context.Context, prefix, group string, limit int) ([]string, error)
}

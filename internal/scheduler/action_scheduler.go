package scheduler

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/joshu-sajeev/goqueue/internal/schedule"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// ActionScheduler schedules into the claim store.
type ActionScheduler struct {
	store    ActionStore
	registry *schedule.Registry
}

func NewActionScheduler(store ActionStore, registry *schedule.Registry) *ActionScheduler {
	if registry == nil {
		registry = schedule.Default()
	}
	return &ActionScheduler{store: store, registry: registry}
}

var _ Scheduler = (*ActionScheduler)(nil)

func (s *ActionScheduler) Name() string { return config.BackendClaimStore }

// Available reports whether the store exists and finished its migrations.
func (s *ActionScheduler) Available(_ context.Context) bool {
	return s.store != nil && s.store.Ready()
}

func (s *ActionScheduler) unavailable(ctx context.Context, op, hook string) bool {
	if s.Available(ctx) {
		return false
	}
	log.Warn().Str("backend", s.Name()).Str("op", op).Str("hook", hook).Msg("claim store unavailable")
	return true
}

func pendingQuery(hook string, args models.Args, group string, limit int) models.ActionQuery {
	return models.ActionQuery{
		Hook:   hook,
		Args:   exactArgs(args),
		Group:  config.GroupOrDefault(group),
		Status: config.ActionStatusPending,
		Limit:  limit,
	}
}

// ScheduleRecurring registers a recurring action once per (hook, args, group).
// A single pending match is left alone so its next run does not shift; two or
// more are collapsed into one fresh action. Claimed duplicates are never
// removed: when one survives the collapse it stands in for the fresh action.
func (s *ActionScheduler) ScheduleRecurring(ctx context.Context, hook string, firstRun time.Time, interval time.Duration, args models.Args, group string) bool {
	if s.unavailable(ctx, "schedule_recurring", hook) {
		return false
	}
	if interval < time.Second {
		log.Error().Str("hook", hook).Dur("interval", interval).Msg("recurring interval must be at least one second")
		return false
	}

	logger := log.With().Str("hook", hook).Str("group", config.GroupOrDefault(group)).Logger()

	pending, err := s.store.Find(ctx, pendingQuery(hook, args, group, 2))
	if err != nil {
		logger.Error().Err(err).Msg("failed to look up pending actions")
		return false
	}

	switch {
	case len(pending) == 1:
		return true
	case len(pending) >= 2:
		deleted, err := s.store.DeleteUnclaimed(ctx, hook, exactArgs(args), group)
		if err != nil {
			logger.Error().Err(err).Msg("failed to remove duplicate recurring actions")
			return false
		}
		logger.Warn().Int64("deleted", deleted).Msg("collapsed duplicate recurring actions")

		left, err := s.store.Count(ctx, pendingQuery(hook, args, group, 0))
		if err != nil {
			logger.Error().Err(err).Msg("failed to look up pending actions")
			return false
		}
		if left > 0 {
			return true
		}
	}

	return s.insert(ctx, hook, firstRun, interval, args, group)
}

// ScheduleSingle ensures one pending occurrence of hook with args exists.
func (s *ActionScheduler) ScheduleSingle(ctx context.Context, hook string, runAt time.Time, args models.Args, group string) bool {
	if s.unavailable(ctx, "schedule_single", hook) {
		return false
	}

	n, err := s.store.Count(ctx, pendingQuery(hook, args, group, 0))
	if err != nil {
		log.Error().Err(err).Str("hook", hook).Msg("failed to look up pending actions")
		return false
	}
	if n > 0 {
		return true
	}
	return s.insert(ctx, hook, runAt, 0, args, group)
}

// insert creates the action and then removes any twin a concurrent caller
// inserted in the meantime, keeping the first in due order.
func (s *ActionScheduler) insert(ctx context.Context, hook string, runAt time.Time, interval time.Duration, args models.Args, group string) bool {
	raw, err := exactArgs(args).Encode()
	if err != nil {
		log.Error().Err(err).Str("hook", hook).Msg("failed to encode args")
		return false
	}

	action := &models.Action{
		Hook:            hook,
		Args:            datatypes.JSON(raw),
		Group:           group,
		ScheduledAt:     runAt,
		IntervalSeconds: int64(interval / time.Second),
	}
	if err := s.store.Create(ctx, action); err != nil {
		log.Error().Err(err).Str("hook", hook).Msg("failed to create action")
		return false
	}
	log.Debug().Str("hook", hook).Uint("action_id", action.ID).Time("scheduled_at", action.ScheduledAt).Msg("action scheduled")

	twins, err := s.store.Find(ctx, pendingQuery(hook, args, group, 0))
	if err != nil {
		log.Warn().Err(err).Str("hook", hook).Msg("failed to check for duplicate actions")
		return true
	}
	for _, twin := range twins[min(1, len(twins)):] {
		if err := s.store.Delete(ctx, twin.ID); err != nil {
			log.Warn().Err(err).Uint("action_id", twin.ID).Msg("failed to remove duplicate action")
		}
	}
	return true
}

// NextScheduled returns the due time of the next pending occurrence, or of
// the running one when nothing is pending.
func (s *ActionScheduler) NextScheduled(ctx context.Context, hook string, args models.Args, group string) (time.Time, bool) {
	if s.store == nil || !s.store.Ready() {
		log.Error().
			Str("hook", hook).
			Str("stack", string(debug.Stack())).
			Msg("next scheduled action queried before the claim store was initialized")
		return time.Time{}, false
	}

	for _, status := range []string{config.ActionStatusPending, config.ActionStatusInProgress} {
		q := pendingQuery(hook, args, group, 1)
		q.Status = status
		found, err := s.store.Find(ctx, q)
		if err != nil {
			log.Error().Err(err).Str("hook", hook).Msg("failed to look up next action")
			return time.Time{}, false
		}
		if len(found) > 0 {
			return found[0].ScheduledAt.UTC(), true
		}
	}
	return time.Time{}, false
}

// Unschedule cancels the next pending occurrence.
func (s *ActionScheduler) Unschedule(ctx context.Context, hook string, args models.Args, group string) bool {
	if s.unavailable(ctx, "unschedule", hook) {
		return false
	}

	found, err := s.store.Find(ctx, pendingQuery(hook, args, group, 1))
	if err != nil {
		log.Error().Err(err).Str("hook", hook).Msg("failed to look up pending action")
		return false
	}
	if len(found) == 0 {
		return false
	}
	if err := s.store.Cancel(ctx, found[0].ID); err != nil {
		log.Error().Err(err).Uint("action_id", found[0].ID).Msg("failed to cancel action")
		return false
	}
	return true
}

// UnscheduleAll removes pending occurrences; nil args means any arguments.
func (s *ActionScheduler) UnscheduleAll(ctx context.Context, hook string, args models.Args, group string) bool {
	if s.unavailable(ctx, "unschedule_all", hook) {
		return false
	}

	deleted, err := s.store.DeleteAll(ctx, hook, args, group)
	if err != nil {
		log.Error().Err(err).Str("hook", hook).Msg("failed to unschedule actions")
		return false
	}
	log.Debug().Str("hook", hook).Int64("deleted", deleted).Msg("actions unscheduled")
	return true
}

func (s *ActionScheduler) HasScheduled(ctx context.Context, hook string, args models.Args, group string) bool {
	if !s.Available(ctx) {
		return false
	}
	_, ok := s.NextScheduled(ctx, hook, args, group)
	return ok
}

func (s *ActionScheduler) ScheduledHooks(ctx context.Context, prefix string, limit int, group string) []string {
	if s.unavailable(ctx, "scheduled_hooks", prefix) {
		return nil
	}
	hooks, err := s.store.Hooks(ctx, prefix, group, limit)
	if err != nil {
		log.Error().Err(err).Str("prefix", prefix).Msg("failed to list hooks")
		return nil
	}
	return hooks
}

func (s *ActionScheduler) Search(ctx context.Context, q models.ActionQuery) []models.Summary {
	if s.unavailable(ctx, "search", q.Hook) {
		return nil
	}
	actions, err := s.store.Find(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("search failed")
		return nil
	}

	out := make([]models.Summary, 0, len(actions))
	for _, a := range actions {
		args, err := a.DecodeArgs()
		if err != nil {
			log.Warn().Err(err).Uint("action_id", a.ID).Msg("stored args are not a JSON list")
		}
		sum := models.Summary{
			ID:          strconv.FormatUint(uint64(a.ID), 10),
			Hook:        a.Hook,
			Args:        args,
			Group:       a.Group,
			ScheduledAt: a.ScheduledAt.UTC(),
			Interval:    a.IntervalSeconds,
			Status:      a.Status,
		}
		if a.Recurring() {
			sum.Schedule, _ = s.registry.NameFor(a.Interval())
		}
		out = append(out, sum)
	}
	return out
}

func (s *ActionScheduler) SearchIDs(ctx context.Context, q models.ActionQuery) []string {
	sums := s.Search(ctx, q)
	ids := make([]string, 0, len(sums))
	for _, sum := range sums {
		ids = append(ids, sum.ID)
	}
	return ids
}

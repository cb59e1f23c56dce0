package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/crontable"
	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/joshu-sajeev/goqueue/internal/schedule"
	"github.com/rs/zerolog/log"
)

// FallbackSchedule is used for recurring events whose interval has no name.
const FallbackSchedule = "daily"

// CronScheduler schedules into the host cron table. The table has no groups
// and no statuses: every event lives in config.DefaultGroup and is pending
// until it runs. Calls naming any other group neither see nor change the
// table.
type CronScheduler struct {
	table    crontable.Table
	registry *schedule.Registry
}

func NewCronScheduler(table crontable.Table, registry *schedule.Registry) *CronScheduler {
	if registry == nil {
		registry = schedule.Default()
	}
	return &CronScheduler{table: table, registry: registry}
}

var _ Scheduler = (*CronScheduler)(nil)

func (s *CronScheduler) Name() string { return config.BackendHostCron }

// Available is always true; the host table is the fallback backend.
func (s *CronScheduler) Available(_ context.Context) bool { return true }

func hostGroup(group string) bool {
	return config.GroupOrDefault(group) == config.DefaultGroup
}

// ScheduleRecurring adds a recurring event unless one is already scheduled.
// Intervals without an exact schedule name run daily.
func (s *CronScheduler) ScheduleRecurring(ctx context.Context, hook string, firstRun time.Time, interval time.Duration, args models.Args, group string) bool {
	if !hostGroup(group) {
		log.Warn().Str("hook", hook).Str("group", group).Msg("host cron only schedules into the default group")
		return false
	}
	name, ok := s.registry.NameFor(interval)
	if !ok {
		log.Warn().
			Str("hook", hook).
			Dur("interval", interval).
			Str("schedule", FallbackSchedule).
			Msg("no schedule matches the interval, falling back")
		name = FallbackSchedule
		d, err := s.registry.Resolve(FallbackSchedule)
		if err != nil {
			log.Error().Err(err).Msg("fallback schedule missing from registry")
			return false
		}
		interval = d
	}

	return s.add(ctx, crontable.Event{
		Timestamp: firstRun.Unix(),
		Hook:      hook,
		Args:      exactArgs(args),
		Schedule:  name,
		Interval:  int64(interval / time.Second),
	})
}

// ScheduleSingle adds a one-off event unless one is already scheduled.
func (s *CronScheduler) ScheduleSingle(ctx context.Context, hook string, runAt time.Time, args models.Args, group string) bool {
	if !hostGroup(group) {
		log.Warn().Str("hook", hook).Str("group", group).Msg("host cron only schedules into the default group")
		return false
	}
	return s.add(ctx, crontable.Event{
		Timestamp: runAt.Unix(),
		Hook:      hook,
		Args:      exactArgs(args),
	})
}

func (s *CronScheduler) add(ctx context.Context, e crontable.Event) bool {
	_, exists, err := s.table.Next(ctx, e.Hook, e.Args)
	if err != nil {
		log.Error().Err(err).Str("hook", e.Hook).Msg("failed to read cron table")
		return false
	}
	if exists {
		return true
	}
	if err := s.table.Schedule(ctx, e); err != nil {
		log.Error().Err(err).Str("hook", e.Hook).Msg("failed to schedule event")
		return false
	}
	log.Debug().Str("hook", e.Hook).Time("scheduled_at", e.Time()).Str("schedule", e.Schedule).Msg("event scheduled")
	return true
}

func (s *CronScheduler) NextScheduled(ctx context.Context, hook string, args models.Args, group string) (time.Time, bool) {
	if !hostGroup(group) {
		return time.Time{}, false
	}
	e, ok, err := s.table.Next(ctx, hook, exactArgs(args))
	if err != nil {
		log.Error().Err(err).Str("hook", hook).Msg("failed to read cron table")
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	return e.Time(), true
}

// Unschedule removes the next occurrence.
func (s *CronScheduler) Unschedule(ctx context.Context, hook string, args models.Args, group string) bool {
	if !hostGroup(group) {
		return false
	}
	e, ok, err := s.table.Next(ctx, hook, exactArgs(args))
	if err != nil || !ok {
		if err != nil {
			log.Error().Err(err).Str("hook", hook).Msg("failed to read cron table")
		}
		return false
	}
	removed, err := s.table.Unschedule(ctx, e.Timestamp, hook, e.Args)
	if err != nil {
		log.Error().Err(err).Str("hook", hook).Msg("failed to unschedule event")
		return false
	}
	return removed
}

// UnscheduleAll reports false for groups the host table does not hold.
func (s *CronScheduler) UnscheduleAll(ctx context.Context, hook string, args models.Args, group string) bool {
	if !hostGroup(group) {
		return false
	}
	n, err := clearEvents(ctx, s.table, hook, args)
	if err != nil {
		log.Error().Err(err).Str("hook", hook).Msg("failed to unschedule events")
		return false
	}
	log.Debug().Str("hook", hook).Int("deleted", n).Msg("events unscheduled")
	return true
}

func (s *CronScheduler) HasScheduled(ctx context.Context, hook string, args models.Args, group string) bool {
	_, ok := s.NextScheduled(ctx, hook, args, group)
	return ok
}

func (s *CronScheduler) ScheduledHooks(ctx context.Context, prefix string, limit int, group string) []string {
	if !hostGroup(group) {
		return nil
	}
	events, err := s.table.Events(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read cron table")
		return nil
	}
	hooks := make([]string, 0, len(events))
	for _, e := range events {
		hooks = append(hooks, e.Hook)
	}
	return prefixedHooks(hooks, prefix, limit)
}

func (s *CronScheduler) Search(ctx context.Context, q models.ActionQuery) []models.Summary {
	events, err := s.table.Events(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read cron table")
		return nil
	}

	var out []models.Summary
	for _, e := range events {
		if !matchEvent(e, q) {
			continue
		}
		out = append(out, models.Summary{
			ID:          PseudoID(e),
			Hook:        e.Hook,
			Args:        e.Args,
			Group:       config.DefaultGroup,
			ScheduledAt: e.Time(),
			Interval:    e.Interval,
			Schedule:    e.Schedule,
			Status:      config.ActionStatusPending,
		})
	}

	if q.Desc {
		sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	}
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (s *CronScheduler) SearchIDs(ctx context.Context, q models.ActionQuery) []string {
	sums := s.Search(ctx, q)
	ids := make([]string, 0, len(sums))
	for _, sum := range sums {
		ids = append(ids, sum.ID)
	}
	return ids
}

func matchEvent(e crontable.Event, q models.ActionQuery) bool {
	if q.Hook != "" && e.Hook != q.Hook {
		return false
	}
	if len(q.Hooks) > 0 {
		found := false
		for _, h := range q.Hooks {
			if h == e.Hook {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Args != nil && !e.Args.Equal(q.Args) {
		return false
	}
	if !hostGroup(q.Group) {
		return false
	}
	if q.Status != "" && q.Status != config.ActionStatusPending {
		return false
	}
	if q.Claimed != nil && *q.Claimed {
		return false
	}
	if q.DueBy != nil && e.Time().After(*q.DueBy) {
		return false
	}
	return true
}

// PseudoID derives a stable identifier for an event, which the host table
// does not have, from its hook, arguments and timestamp.
func PseudoID(e crontable.Event) string {
	raw, err := e.Args.Encode()
	if err != nil {
		raw = []byte(fmt.Sprint(e.Args))
	}
	name := fmt.Sprintf("%s|%s|%d", e.Hook, raw, e.Timestamp)
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(name)).String()
}

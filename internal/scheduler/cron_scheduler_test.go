package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/crontable"
	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cronAt = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func TestCronScheduler_ScheduleRecurringNamedInterval(t *testing.T) {
	table := crontable.NewMemoryTable()
	s := NewCronScheduler(table, nil)
	ctx := context.Background()

	require.True(t, s.ScheduleRecurring(ctx, "h", cronAt, time.Hour, nil, ""))
	require.True(t, s.ScheduleRecurring(ctx, "app", cronAt, 5*time.Minute, nil, ""))

	events, err := table.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "app", events[0].Hook)
	assert.Equal(t, "every_five_minutes", events[0].Schedule)
	assert.Equal(t, "hourly", events[1].Schedule)
	assert.Equal(t, int64(3600), events[1].Interval)
}

func TestCronScheduler_ScheduleRecurringFallsBackToDaily(t *testing.T) {
	table := crontable.NewMemoryTable()
	s := NewCronScheduler(table, nil)
	ctx := context.Background()

	require.True(t, s.ScheduleRecurring(ctx, "h", cronAt, 7*time.Minute, models.Args{1}, ""))

	e, ok, err := table.Next(ctx, "h", models.Args{1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, FallbackSchedule, e.Schedule)
	assert.Equal(t, int64(86400), e.Interval)
}

func TestCronScheduler_ScheduleSingleIdempotent(t *testing.T) {
	table := crontable.NewMemoryTable()
	s := NewCronScheduler(table, nil)
	ctx := context.Background()

	assert.True(t, s.ScheduleSingle(ctx, "h", cronAt, models.Args{"x"}, ""))
	assert.True(t, s.ScheduleSingle(ctx, "h", cronAt.Add(time.Hour), models.Args{"x"}, ""))

	events, err := table.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, cronAt.Unix(), events[0].Timestamp)

	next, ok := s.NextScheduled(ctx, "h", models.Args{"x"}, "")
	assert.True(t, ok)
	assert.True(t, next.Equal(cronAt))
	assert.True(t, s.HasScheduled(ctx, "h", models.Args{"x"}, ""))
	assert.False(t, s.HasScheduled(ctx, "h", models.Args{"y"}, ""))
}

func TestCronScheduler_UnscheduleAllNilVersusEmpty(t *testing.T) {
	tests := []struct {
		name      string
		args      models.Args
		remaining int
	}{
		{name: "nil walks every bucket", args: nil, remaining: 0},
		{name: "empty removes only argument-less events", args: models.Args{}, remaining: 2},
		{name: "exact args", args: models.Args{1}, remaining: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := crontable.NewMemoryTable()
			s := NewCronScheduler(table, nil)
			ctx := context.Background()

			require.True(t, s.ScheduleSingle(ctx, "h", cronAt, models.Args{}, ""))
			require.True(t, s.ScheduleSingle(ctx, "h", cronAt.Add(time.Hour), models.Args{1}, ""))
			require.True(t, s.ScheduleSingle(ctx, "h", cronAt.Add(2*time.Hour), models.Args{"a", 2}, ""))
			require.True(t, s.ScheduleSingle(ctx, "keep", cronAt, nil, ""))

			assert.True(t, s.UnscheduleAll(ctx, "h", tt.args, ""))

			left := s.Search(ctx, models.ActionQuery{Hook: "h"})
			assert.Len(t, left, tt.remaining)
			assert.True(t, s.HasScheduled(ctx, "keep", nil, ""))
		})
	}
}

func TestCronScheduler_Unschedule(t *testing.T) {
	table := crontable.NewMemoryTable()
	s := NewCronScheduler(table, nil)
	ctx := context.Background()

	assert.False(t, s.Unschedule(ctx, "h", nil, ""))
	require.True(t, s.ScheduleSingle(ctx, "h", cronAt, nil, ""))
	assert.True(t, s.Unschedule(ctx, "h", nil, ""))
	assert.False(t, s.HasScheduled(ctx, "h", nil, ""))
}

func TestCronScheduler_SearchPseudoIDs(t *testing.T) {
	table := crontable.NewMemoryTable()
	s := NewCronScheduler(table, nil)
	ctx := context.Background()

	require.True(t, s.ScheduleSingle(ctx, "h", cronAt, models.Args{1}, ""))
	require.True(t, s.ScheduleSingle(ctx, "h", cronAt, models.Args{"1"}, ""))
	require.True(t, s.ScheduleRecurring(ctx, "r", cronAt.Add(time.Hour), 24*time.Hour, nil, ""))

	ids := s.SearchIDs(ctx, models.ActionQuery{})
	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1], "args are type sensitive")
	assert.Equal(t, ids, s.SearchIDs(ctx, models.ActionQuery{}), "ids are stable")

	sums := s.Search(ctx, models.ActionQuery{Hook: "r"})
	require.Len(t, sums, 1)
	assert.Equal(t, "daily", sums[0].Schedule)
	assert.Equal(t, config.DefaultGroup, sums[0].Group)
	assert.Equal(t, config.ActionStatusPending, sums[0].Status)

	due := cronAt
	assert.Len(t, s.Search(ctx, models.ActionQuery{DueBy: &due}), 2)
	assert.Len(t, s.Search(ctx, models.ActionQuery{Limit: 1, Offset: 2}), 1)
	assert.Empty(t, s.Search(ctx, models.ActionQuery{Offset: 5}))
	assert.Empty(t, s.Search(ctx, models.ActionQuery{Status: config.ActionStatusComplete}))
	assert.Empty(t, s.Search(ctx, models.ActionQuery{Group: "elsewhere"}))

	desc := s.Search(ctx, models.ActionQuery{Desc: true})
	assert.Equal(t, "r", desc[0].Hook)
}

func TestCronScheduler_ScheduledHooks(t *testing.T) {
	table := crontable.NewMemoryTable()
	s := NewCronScheduler(table, nil)
	ctx := context.Background()

	for _, hook := range []string{"goqueue_b", "goqueue_a", "goqueue_a", "misc"} {
		require.NoError(t, table.Schedule(ctx, crontable.Event{Timestamp: cronAt.Unix(), Hook: hook, Args: models.Args{hook}}))
	}

	assert.Equal(t, []string{"goqueue_a", "goqueue_b"}, s.ScheduledHooks(ctx, "goqueue_", 0, ""))
	assert.Equal(t, []string{"goqueue_a"}, s.ScheduledHooks(ctx, "", 1, ""))
	assert.Nil(t, s.ScheduledHooks(ctx, "", 0, "elsewhere"))
	assert.True(t, s.Available(ctx))
}

func TestCronScheduler_OtherGroupsLeaveTableAlone(t *testing.T) {
	table := crontable.NewMemoryTable()
	s := NewCronScheduler(table, nil)
	ctx := context.Background()

	require.True(t, s.ScheduleSingle(ctx, "h", cronAt, models.Args{2}, config.DefaultGroup))

	assert.False(t, s.ScheduleSingle(ctx, "h", cronAt, models.Args{1}, "billing"))
	assert.False(t, s.ScheduleRecurring(ctx, "h", cronAt, time.Hour, models.Args{1}, "billing"))
	assert.False(t, s.HasScheduled(ctx, "h", models.Args{1}, ""))
	assert.False(t, s.HasScheduled(ctx, "h", models.Args{2}, "billing"))
	_, ok := s.NextScheduled(ctx, "h", models.Args{2}, "billing")
	assert.False(t, ok)

	assert.False(t, s.Unschedule(ctx, "h", models.Args{2}, "other"))
	assert.False(t, s.UnscheduleAll(ctx, "h", nil, "other"))
	assert.Empty(t, s.Search(ctx, models.ActionQuery{Group: "billing"}))
	assert.Empty(t, s.ScheduledHooks(ctx, "", 10, "billing"))

	events, err := table.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, s.HasScheduled(ctx, "h", models.Args{2}, ""))
}

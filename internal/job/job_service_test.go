package job

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/joshu-sajeev/goqueue/common"
	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/crontable"
	"github.com/joshu-sajeev/goqueue/internal/dto"
	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/joshu-sajeev/goqueue/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type batchRunnerMock struct {
	mock.Mock
}

func (m *batchRunnerMock) BackendName(ctx context.Context) string {
	args := m.Called(ctx)
	return args.String(0)
}

func (m *batchRunnerMock) RunBatch(ctx context.Context, opts runner.Options) (runner.Result, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(runner.Result), args.Error(1)
}

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*JobService, *batchRunnerMock) {
	t.Helper()
	host := scheduler.NewCronScheduler(crontable.NewMemoryTable(), nil)
	sel := scheduler.NewSelector(scheduler.Policy{PreferClaimStore: true}, nil, host, nil)
	br := new(batchRunnerMock)
	svc := NewJobService(sel, br)
	svc.now = func() time.Time { return fixedNow }
	return svc, br
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr common.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, status, apiErr.Status)
}

func canceledCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestJobService_Backend(t *testing.T) {
	svc, _ := newTestService(t)
	resp := svc.Backend(context.Background())
	assert.Equal(t, config.BackendHostCron, resp.Backend)
	assert.False(t, resp.ClaimStoreActive)
}

func TestJobService_Interval(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Interval(context.Background(), "twicedaily")
	require.NoError(t, err)
	assert.Equal(t, int64(12*3600), resp.Seconds)

	_, err = svc.Interval(context.Background(), "fortnightly")
	assertStatus(t, err, http.StatusNotFound)

	_, err = svc.Interval(canceledCtx(), "daily")
	assertStatus(t, err, http.StatusRequestTimeout)
}

func TestJobService_Schedule(t *testing.T) {
	later := fixedNow.Add(time.Hour)

	tests := []struct {
		name          string
		req           *dto.ScheduleRequest
		ctx           context.Context
		wantStatus    int
		wantRecurring bool
		wantNext      time.Time
	}{
		{
			name:     "single run now",
			req:      &dto.ScheduleRequest{Hook: "goqueue_sync", Args: json.RawMessage(`[1]`)},
			wantNext: fixedNow,
		},
		{
			name:     "single run later",
			req:      &dto.ScheduleRequest{Hook: "goqueue_sync", RunAt: &later},
			wantNext: later,
		},
		{
			name:          "recurring by name",
			req:           &dto.ScheduleRequest{Hook: "goqueue_sync", Schedule: "hourly"},
			wantRecurring: true,
			wantNext:      fixedNow,
		},
		{
			name:          "recurring by seconds",
			req:           &dto.ScheduleRequest{Hook: "goqueue_sync", IntervalSeconds: 86400},
			wantRecurring: true,
			wantNext:      fixedNow,
		},
		{
			name:       "unknown schedule",
			req:        &dto.ScheduleRequest{Hook: "goqueue_sync", Schedule: "fortnightly"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "args not an array",
			req:        &dto.ScheduleRequest{Hook: "goqueue_sync", Args: json.RawMessage(`{"a":1}`)},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "built-in hook without args",
			req:        &dto.ScheduleRequest{Hook: config.HookEmailDigest},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "built-in hook with invalid args",
			req: &dto.ScheduleRequest{
				Hook: config.HookEmailDigest,
				Args: json.RawMessage(`[{"to":"not-an-email","subject":"s","period":"daily"}]`),
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "built-in hook with valid args",
			req: &dto.ScheduleRequest{
				Hook: config.HookEmailDigest,
				Args: json.RawMessage(`[{"to":"ops@example.com","subject":"s","period":"daily"}]`),
			},
			wantNext: fixedNow,
		},
		{
			name:       "canceled request",
			req:        &dto.ScheduleRequest{Hook: "goqueue_sync"},
			ctx:        canceledCtx(),
			wantStatus: http.StatusRequestTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			ctx := tt.ctx
			if ctx == nil {
				ctx = context.Background()
			}

			resp, err := svc.Schedule(ctx, tt.req)
			if tt.wantStatus != 0 {
				assertStatus(t, err, tt.wantStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, config.BackendHostCron, resp.Backend)
			assert.Equal(t, config.DefaultGroup, resp.Group)
			assert.Equal(t, tt.wantRecurring, resp.Recurring)
			require.NotNil(t, resp.NextRun)
			assert.True(t, tt.wantNext.Equal(*resp.NextRun))
		})
	}
}

func TestJobService_ScheduleIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	req := &dto.ScheduleRequest{Hook: "goqueue_sync", Schedule: "daily", Args: json.RawMessage(`["x"]`)}

	_, err := svc.Schedule(ctx, req)
	require.NoError(t, err)
	_, err = svc.Schedule(ctx, req)
	require.NoError(t, err)

	resp, err := svc.Search(ctx, &dto.SearchQuery{Hook: "goqueue_sync"})
	require.NoError(t, err)
	assert.Len(t, resp.Actions, 1)
}

func TestJobService_Unschedule(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, args := range []string{`[1]`, `[2]`, `[]`} {
		_, err := svc.Schedule(ctx, &dto.ScheduleRequest{Hook: "goqueue_sync", Args: json.RawMessage(args)})
		require.NoError(t, err)
	}

	require.NoError(t, svc.Unschedule(ctx, &dto.UnscheduleRequest{Hook: "goqueue_sync", Args: json.RawMessage(`[1]`)}))

	err := svc.Unschedule(ctx, &dto.UnscheduleRequest{Hook: "goqueue_sync", Args: json.RawMessage(`[1]`)})
	assertStatus(t, err, http.StatusNotFound)

	// empty list only removes the argument-less job
	require.NoError(t, svc.Unschedule(ctx, &dto.UnscheduleRequest{Hook: "goqueue_sync", Args: json.RawMessage(`[]`), All: true}))
	resp, err := svc.Search(ctx, &dto.SearchQuery{Hook: "goqueue_sync"})
	require.NoError(t, err)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, models.Args{float64(2)}, resp.Actions[0].Args)

	// no args removes the rest
	require.NoError(t, svc.Unschedule(ctx, &dto.UnscheduleRequest{Hook: "goqueue_sync", All: true}))
	resp, err = svc.Search(ctx, &dto.SearchQuery{Hook: "goqueue_sync"})
	require.NoError(t, err)
	assert.Empty(t, resp.Actions)

	err = svc.Unschedule(ctx, &dto.UnscheduleRequest{Hook: "goqueue_sync", Args: json.RawMessage(`nope`)})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestJobService_Search(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, hook := range []string{"goqueue_a", "goqueue_b"} {
		_, err := svc.Schedule(ctx, &dto.ScheduleRequest{Hook: hook, Args: json.RawMessage(`["k"]`)})
		require.NoError(t, err)
	}

	resp, err := svc.Search(ctx, &dto.SearchQuery{})
	require.NoError(t, err)
	assert.Len(t, resp.Actions, 2)
	assert.Nil(t, resp.IDs)

	resp, err = svc.Search(ctx, &dto.SearchQuery{Hook: "goqueue_b", Format: "ids"})
	require.NoError(t, err)
	assert.Len(t, resp.IDs, 1)

	resp, err = svc.Search(ctx, &dto.SearchQuery{Args: `["other"]`})
	require.NoError(t, err)
	assert.Empty(t, resp.Actions)
	assert.NotNil(t, resp.Actions)

	_, err = svc.Search(ctx, &dto.SearchQuery{Args: `{`})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestJobService_Run(t *testing.T) {
	tests := []struct {
		name       string
		result     runner.Result
		err        error
		wantStatus int
	}{
		{name: "batch runs", result: runner.Result{ClaimID: 3, Claimed: 2, Completed: 1, Failed: 1}},
		{name: "batch cap", err: runner.ErrTooManyBatches, wantStatus: http.StatusTooManyRequests},
		{name: "deadline", err: context.DeadlineExceeded, wantStatus: http.StatusRequestTimeout},
		{name: "store failure", err: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, br := newTestService(t)
			br.On("BackendName", mock.Anything).Return(config.BackendClaimStore)
			br.On("RunBatch", mock.Anything, runner.Options{BatchSize: 5, Hooks: []string{"goqueue_a"}, Force: true}).
				Return(tt.result, tt.err)

			resp, err := svc.Run(context.Background(), &dto.RunRequest{BatchSize: 5, Hooks: []string{"goqueue_a"}, Force: true})
			br.AssertExpectations(t)
			if tt.wantStatus != 0 {
				assertStatus(t, err, tt.wantStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, config.BackendClaimStore, resp.Backend)
			assert.Equal(t, "1 of 2 jobs completed", resp.Summary)
			assert.Equal(t, 1, resp.Failed)
		})
	}
}

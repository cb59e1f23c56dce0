package job

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/joshu-sajeev/goqueue/common"
	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/dto"
	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/joshu-sajeev/goqueue/internal/schedule"
)

type JobService struct {
	selector SelectorInterface
	runner   BatchRunnerInterface
	now      func() time.Time
}

func NewJobService(selector SelectorInterface, runner BatchRunnerInterface) *JobService {
	return &JobService{selector: selector, runner: runner, now: time.Now}
}

var _ JobServiceInterface = (*JobService)(nil)

func timeoutError(err error) (common.APIError, bool) {
	switch {
	case errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request was canceled"), true
	case errors.Is(err, context.DeadlineExceeded):
		return common.Errf(http.StatusRequestTimeout, "request timeout"), true
	}
	return common.APIError{}, false
}

func (s *JobService) Backend(ctx context.Context) dto.BackendResponse {
	active := s.selector.Active(ctx)
	return dto.BackendResponse{
		Backend:          active.Name(),
		ClaimStoreActive: s.selector.ClaimStoreActive(ctx),
	}
}

// Interval resolves a schedule name to seconds.
func (s *JobService) Interval(ctx context.Context, name string) (*dto.IntervalResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	d, err := s.selector.Interval(name)
	if err != nil {
		if errors.Is(err, schedule.ErrUnknownSchedule) {
			return nil, common.Errf(http.StatusNotFound, "unknown schedule %q", name)
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to resolve schedule")
	}
	return &dto.IntervalResponse{Name: name, Seconds: int64(d / time.Second)}, nil
}

// Search lists scheduled jobs on the active backend.
func (s *JobService) Search(ctx context.Context, q *dto.SearchQuery) (*dto.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	var args models.Args
	if q.Args != "" {
		var err error
		if args, err = parseArgs([]byte(q.Args)); err != nil {
			return nil, err
		}
	}

	query := models.ActionQuery{
		Hook:   q.Hook,
		Args:   args,
		Group:  q.Group,
		Status: q.Status,
		Desc:   q.Desc,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if query.Limit == 0 {
		query.Limit = 100
	}

	active := s.selector.Active(ctx)
	resp := &dto.SearchResponse{Backend: active.Name()}
	if q.Format == "ids" {
		resp.IDs = active.SearchIDs(ctx, query)
		if resp.IDs == nil {
			resp.IDs = []string{}
		}
		return resp, nil
	}
	resp.Actions = active.Search(ctx, query)
	if resp.Actions == nil {
		resp.Actions = []models.Summary{}
	}
	return resp, nil
}

// Schedule registers a single or recurring job. Registering the same job
// twice is not an error.
func (s *JobService) Schedule(ctx context.Context, req *dto.ScheduleRequest) (*dto.ScheduleResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	args, err := parseArgs(req.Args)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = models.Args{}
	}
	if err := validateHookArgs(req.Hook, args); err != nil {
		return nil, err
	}

	interval := time.Duration(req.IntervalSeconds) * time.Second
	if req.Schedule != "" {
		interval, err = s.selector.Interval(req.Schedule)
		if err != nil {
			return nil, common.NewAPIError(
				http.StatusBadRequest,
				"unknown schedule",
				map[string]any{"provided": req.Schedule},
			)
		}
	}

	runAt := s.now().UTC()
	if req.RunAt != nil {
		runAt = req.RunAt.UTC()
	}

	active := s.selector.Active(ctx)
	recurring := interval > 0
	var ok bool
	if recurring {
		ok = active.ScheduleRecurring(ctx, req.Hook, runAt, interval, args, req.Group)
	} else {
		ok = active.ScheduleSingle(ctx, req.Hook, runAt, args, req.Group)
	}
	if !ok {
		if apiErr, isTimeout := timeoutError(ctx.Err()); isTimeout {
			return nil, apiErr
		}
		return nil, common.NewAPIError(
			http.StatusServiceUnavailable,
			"failed to schedule job",
			map[string]any{"backend": active.Name()},
		)
	}

	resp := &dto.ScheduleResponse{
		Backend:   active.Name(),
		Hook:      req.Hook,
		Group:     config.GroupOrDefault(req.Group),
		Recurring: recurring,
	}
	if next, found := active.NextScheduled(ctx, req.Hook, args, req.Group); found {
		resp.NextRun = &next
	}
	return resp, nil
}

// Unschedule removes the next occurrence of a job, or every occurrence when
// req.All is set.
func (s *JobService) Unschedule(ctx context.Context, req *dto.UnscheduleRequest) error {
	if err := ctx.Err(); err != nil {
		return common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	args, err := parseArgs(req.Args)
	if err != nil {
		return err
	}

	active := s.selector.Active(ctx)
	if req.All {
		if !active.UnscheduleAll(ctx, req.Hook, args, req.Group) {
			return common.NewAPIError(
				http.StatusServiceUnavailable,
				"failed to unschedule jobs",
				map[string]any{"backend": active.Name()},
			)
		}
		return nil
	}

	if !active.Unschedule(ctx, req.Hook, args, req.Group) {
		return common.Errf(http.StatusNotFound, "no scheduled job for hook %q", req.Hook)
	}
	return nil
}

// Run processes one batch on the active backend.
func (s *JobService) Run(ctx context.Context, req *dto.RunRequest) (*dto.RunResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	backend := s.runner.BackendName(ctx)
	result, err := s.runner.RunBatch(ctx, runner.Options{
		BatchSize: req.BatchSize,
		Hooks:     req.Hooks,
		Group:     req.Group,
		Force:     req.Force,
	})
	if err != nil {
		if apiErr, ok := timeoutError(err); ok {
			return nil, apiErr
		}
		if errors.Is(err, runner.ErrTooManyBatches) {
			return nil, common.NewAPIError(
				http.StatusTooManyRequests,
				"too many concurrent batches",
				map[string]any{"hint": "retry later or set force"},
			)
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to run batch")
	}

	return &dto.RunResponse{
		Backend:   backend,
		ClaimID:   result.ClaimID,
		Claimed:   result.Claimed,
		Completed: result.Completed,
		Failed:    result.Failed,
		Lost:      result.Lost,
		Summary:   result.String(),
	}, nil
}

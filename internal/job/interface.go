package job

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/goqueue/internal/dto"
	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/joshu-sajeev/goqueue/internal/scheduler"
)

// SelectorInterface is the part of scheduler.Selector the service needs.
type SelectorInterface interface {
	Active(ctx context.Context) scheduler.Scheduler
	ClaimStoreActive(ctx context.Context) bool
	Interval(name string) (time.Duration, error)
}

// BatchRunnerInterface runs batches on demand.
type BatchRunnerInterface interface {
	BackendName(ctx context.Context) string
	RunBatch(ctx context.Context, opts runner.Options) (runner.Result, error)
}

// JobServiceInterface defines the contract for job business logic operations.
type JobServiceInterface interface {
	Backend(ctx context.Context) dto.BackendResponse
	Interval(ctx context.Context, name string) (*dto.IntervalResponse, error)
	Search(ctx context.Context, q *dto.SearchQuery) (*dto.SearchResponse, error)
	Schedule(ctx context.Context, req *dto.ScheduleRequest) (*dto.ScheduleResponse, error)
	Unschedule(ctx context.Context, req *dto.UnscheduleRequest) error
	Run(ctx context.Context, req *dto.RunRequest) (*dto.RunResponse, error)
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Health(c *gin.Context)
	Backend(c *gin.Context)
	Interval(c *gin.Context)
	Search(c *gin.Context)
	Schedule(c *gin.Context)
	Unschedule(c *gin.Context)
	Run(c *gin.Context)
}

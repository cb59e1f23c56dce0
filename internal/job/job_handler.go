package job

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/goqueue/internal/dto"
	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/joshu-sajeev/goqueue/middleware"
)

type JobHandler struct {
	service JobServiceInterface
}

func NewJobHandler(s JobServiceInterface) *JobHandler {
	return &JobHandler{service: s}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// Register mounts the ops routes on r.
func (h *JobHandler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/backend", h.Backend)
	r.GET("/schedules/:name", h.Interval)
	r.GET("/actions", h.Search)
	r.POST("/actions", h.Schedule)
	r.DELETE("/actions", h.Unschedule)
	r.POST("/runs", h.Run)
}

func (h *JobHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Backend reports which scheduling backend is active.
func (h *JobHandler) Backend(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Backend(c.Request.Context()))
}

// Interval resolves the schedule name in the path.
func (h *JobHandler) Interval(c *gin.Context) {
	resp, err := h.service.Interval(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Search lists scheduled jobs matching the query string.
func (h *JobHandler) Search(c *gin.Context) {
	var q dto.SearchQuery
	if !middleware.BindQuery(c, &q) {
		return
	}

	resp, err := h.service.Search(c.Request.Context(), &q)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Schedule registers a job and returns 201 with its next run.
func (h *JobHandler) Schedule(c *gin.Context) {
	var req dto.ScheduleRequest
	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	resp, err := h.service.Schedule(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Unschedule removes jobs and returns 204.
func (h *JobHandler) Unschedule(c *gin.Context) {
	var req dto.UnscheduleRequest
	if !middleware.Bind(c, &req) {
		return
	}

	if err := h.service.Unschedule(c.Request.Context(), &req); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Run processes one batch. A dropped connection or the request timeout does
// not interrupt it; a lost claim is reported as 409.
func (h *JobHandler) Run(c *gin.Context) {
	var req dto.RunRequest
	if !middleware.Bind(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), runner.BatchTimeout)
	defer cancel()

	resp, err := h.service.Run(ctx, &req)
	if err != nil {
		c.Error(err)
		return
	}
	if resp.Lost {
		c.JSON(http.StatusConflict, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

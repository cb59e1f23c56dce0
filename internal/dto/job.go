package dto

import (
	"encoding/json"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/models"
)

// ScheduleRequest registers a job. A Schedule name or IntervalSeconds makes
// it recurring; neither schedules a single run.
type ScheduleRequest struct {
	Hook            string          `json:"hook" validate:"required,max=191"`
	Args            json.RawMessage `json:"args,omitempty"`
	Group           string          `json:"group,omitempty" validate:"max=191"`
	RunAt           *time.Time      `json:"run_at,omitempty"`
	Schedule        string          `json:"schedule,omitempty" validate:"excluded_with=IntervalSeconds"`
	// IntervalSeconds is capped at ten years so the duration cannot overflow.
	IntervalSeconds int64           `json:"interval_seconds,omitempty" validate:"gte=0,lte=315360000"`
}

type ScheduleResponse struct {
	Backend   string     `json:"backend"`
	Hook      string     `json:"hook"`
	Group     string     `json:"group"`
	Recurring bool       `json:"recurring"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// UnscheduleRequest removes jobs. With All set, a missing Args removes every
// argument list of the hook.
type UnscheduleRequest struct {
	Hook  string          `json:"hook" validate:"required,max=191"`
	Args  json.RawMessage `json:"args,omitempty"`
	Group string          `json:"group,omitempty" validate:"max=191"`
	All   bool            `json:"all"`
}

type RunRequest struct {
	BatchSize int      `json:"batch_size" validate:"gte=0,lte=500"`
	Hooks     []string `json:"hooks,omitempty" validate:"dive,required"`
	Group     string   `json:"group,omitempty" validate:"max=191"`
	Force     bool     `json:"force"`
}

type RunResponse struct {
	Backend   string `json:"backend"`
	ClaimID   uint   `json:"claim_id,omitempty"`
	Claimed   int    `json:"claimed"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Lost      bool   `json:"lost"`
	Summary   string `json:"summary"`
}

// SearchQuery is bound from the query string of GET /actions.
type SearchQuery struct {
	Hook   string `form:"hook" validate:"max=191"`
	Args   string `form:"args"`
	Group  string `form:"group" validate:"max=191"`
	Status string `form:"status" validate:"omitempty,oneof=pending in-progress complete failed canceled"`
	Desc   bool   `form:"desc"`
	Limit  int    `form:"limit" validate:"gte=0,lte=1000"`
	Offset int    `form:"offset" validate:"gte=0"`
	Format string `form:"format" validate:"omitempty,oneof=objects ids"`
}

type SearchResponse struct {
	Backend string           `json:"backend"`
	Actions []models.Summary `json:"actions,omitempty"`
	IDs     []string         `json:"ids,omitempty"`
}

type BackendResponse struct {
	Backend          string `json:"backend"`
	ClaimStoreActive bool   `json:"claim_store_active"`
}

type IntervalResponse struct {
	Name    string `json:"name"`
	Seconds int64  `json:"seconds"`
}

package models

import "time"

// ActionQuery filters actions. Zero values mean "any": an empty Hook, Group or
// Status is not filtered on, and a nil Args matches every argument list
// while a non-nil empty Args matches only empty lists.
type ActionQuery struct {
	Hook    string
	Hooks   []string
	Args    Args
	Group   string
	Status  string
	Claimed *bool
	DueBy   *time.Time
	Desc    bool
	Limit   int
	Offset  int
}

// Summary is the diagnostic view of a scheduled job shared by both backends.
type Summary struct {
	ID          string    `json:"id"`
	Hook        string    `json:"hook"`
	Args        Args      `json:"args"`
	Group       string    `json:"group"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Interval    int64     `json:"interval_seconds"`
	Schedule    string    `json:"schedule,omitempty"`
	Status      string    `json:"status"`
}

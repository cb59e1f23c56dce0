// Package crontable implements the host cron table: a map of
// timestamp → hook → events with no per-event identity beyond its arguments.
package crontable

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/models"
)

// Event is one invocation in the table.
type Event struct {
	Timestamp int64       `json:"-"`
	Hook      string      `json:"-"`
	Args      models.Args `json:"args"`
	Schedule  string      `json:"schedule,omitempty"`
	Interval  int64       `json:"interval,omitempty"`
}

// Time returns the event timestamp as UTC time.
func (e Event) Time() time.Time { return time.Unix(e.Timestamp, 0).UTC() }

// Recurring reports whether the event carries a schedule.
func (e Event) Recurring() bool { return e.Schedule != "" && e.Interval > 0 }

// Table is the host cron table. Implementations must make each call atomic
// with respect to other calls on the same table.
type Table interface {
	// Schedule adds e. An event with the same timestamp, hook and args is
	// replaced.
	Schedule(ctx context.Context, e Event) error
	// Unschedule removes the event at ts with hook and args and reports
	// whether one was present.
	Unschedule(ctx context.Context, ts int64, hook string, args models.Args) (bool, error)
	// Next returns the earliest event for hook and args.
	Next(ctx context.Context, hook string, args models.Args) (Event, bool, error)
	// ClearHook removes the argument-less occurrences of hook.
	ClearHook(ctx context.Context, hook string) (int, error)
	// Events returns every event ordered by timestamp then hook.
	Events(ctx context.Context) ([]Event, error)
}

// Cron is the table layout shared by the implementations.
type Cron map[int64]map[string][]Event

func (c Cron) add(e Event) {
	if e.Args == nil {
		e.Args = models.Args{}
	}
	hooks, ok := c[e.Timestamp]
	if !ok {
		hooks = make(map[string][]Event)
		c[e.Timestamp] = hooks
	}
	list := hooks[e.Hook]
	for i := range list {
		if list[i].Args.Equal(e.Args) {
			list[i] = e
			return
		}
	}
	hooks[e.Hook] = append(list, e)
}

func (c Cron) remove(ts int64, hook string, args models.Args) bool {
	hooks, ok := c[ts]
	if !ok {
		return false
	}
	list := hooks[hook]
	for i := range list {
		if list[i].Args.Equal(args) {
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(hooks, hook)
			} else {
				hooks[hook] = list
			}
			if len(hooks) == 0 {
				delete(c, ts)
			}
			return true
		}
	}
	return false
}

func (c Cron) next(hook string, args models.Args) (Event, bool) {
	for _, e := range c.events() {
		if e.Hook == hook && e.Args.Equal(args) {
			return e, true
		}
	}
	return Event{}, false
}

func (c Cron) clearHook(hook string) int {
	n := 0
	for _, e := range c.events() {
		if e.Hook == hook && len(e.Args) == 0 && c.remove(e.Timestamp, hook, e.Args) {
			n++
		}
	}
	return n
}

func (c Cron) events() []Event {
	var out []Event
	for ts, hooks := range c {
		for hook, list := range hooks {
			for _, e := range list {
				e.Timestamp = ts
				e.Hook = hook
				out = append(out, e)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Hook < out[j].Hook
	})
	return out
}

// MemoryTable keeps the table in process memory.
type MemoryTable struct {
	mu   sync.Mutex
	cron Cron
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{cron: Cron{}}
}

var _ Table = (*MemoryTable)(nil)

func (t *MemoryTable) Schedule(_ context.Context, e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cron.add(e)
	return nil
}

func (t *MemoryTable) Unschedule(_ context.Context, ts int64, hook string, args models.Args) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cron.remove(ts, hook, args), nil
}

func (t *MemoryTable) Next(_ context.Context, hook string, args models.Args) (Event, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.cron.next(hook, args)
	return e, ok, nil
}

func (t *MemoryTable) ClearHook(_ context.Context, hook string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cron.clearHook(hook), nil
}

func (t *MemoryTable) Events(_ context.Context) ([]Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cron.events(), nil
}

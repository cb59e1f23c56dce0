// Package schedule maps named intervals such as "daily" to durations.
//
// A Registry has two layers. The host layer holds the intervals the host
// cron table understands natively; the application layer holds intervals
// defined by this application. Lookups consult the host layer first.
package schedule

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

var ErrUnknownSchedule = errors.New("unknown schedule")

// Schedule is a named interval.
type Schedule struct {
	Name     string
	Interval time.Duration
	Display  string
}

// HostSchedules are the intervals every host cron table supports.
func HostSchedules() []Schedule {
	return []Schedule{
		{Name: "hourly", Interval: time.Hour, Display: "Once Hourly"},
		{Name: "twicedaily", Interval: 12 * time.Hour, Display: "Twice Daily"},
		{Name: "daily", Interval: 24 * time.Hour, Display: "Once Daily"},
		{Name: "weekly", Interval: 7 * 24 * time.Hour, Display: "Once Weekly"},
	}
}

// AppSchedules are the application-defined defaults.
func AppSchedules() []Schedule {
	return []Schedule{
		{Name: "every_minute", Interval: time.Minute, Display: "Every Minute"},
		{Name: "every_five_minutes", Interval: 5 * time.Minute, Display: "Every 5 Minutes"},
		{Name: "every_fifteen_minutes", Interval: 15 * time.Minute, Display: "Every 15 Minutes"},
		{Name: "every_six_hours", Interval: 6 * time.Hour, Display: "Every 6 Hours"},
		{Name: "monthly", Interval: 30 * 24 * time.Hour, Display: "Once Monthly"},
	}
}

// Registry resolves schedule names. It is populated once at startup and is
// not safe for concurrent mutation.
type Registry struct {
	host map[string]Schedule
	app  map[string]Schedule
}

// NewRegistry builds a registry from the two layers.
func NewRegistry(host, app []Schedule) *Registry {
	r := &Registry{
		host: make(map[string]Schedule, len(host)),
		app:  make(map[string]Schedule, len(app)),
	}
	for _, s := range host {
		r.host[s.Name] = s
	}
	for _, s := range app {
		r.app[s.Name] = s
	}
	return r
}

// Default returns a registry with the built-in host and application schedules.
func Default() *Registry {
	return NewRegistry(HostSchedules(), AppSchedules())
}

// Add registers or replaces an application schedule.
func (r *Registry) Add(s Schedule) error {
	if s.Name == "" {
		return fmt.Errorf("add schedule: name is required")
	}
	if s.Interval < time.Second {
		return fmt.Errorf("add schedule %q: interval must be at least 1s", s.Name)
	}
	if s.Display == "" {
		s.Display = s.Name
	}
	r.app[s.Name] = s
	return nil
}

// Resolve returns the interval for name, host layer first.
func (r *Registry) Resolve(name string) (time.Duration, error) {
	if s, ok := r.host[name]; ok {
		return s.Interval, nil
	}
	if s, ok := r.app[name]; ok {
		return s.Interval, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
}

// NameFor returns a schedule name whose interval equals d exactly. Host names
// win over application names; ties within a layer resolve alphabetically.
func (r *Registry) NameFor(d time.Duration) (string, bool) {
	for _, layer := range []map[string]Schedule{r.host, r.app} {
		var names []string
		for name, s := range layer {
			if s.Interval == d {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			sort.Strings(names)
			return names[0], true
		}
	}
	return "", false
}

// All returns every schedule, host layer entries shadowing application ones,
// sorted by interval then name.
func (r *Registry) All() []Schedule {
	merged := make(map[string]Schedule, len(r.host)+len(r.app))
	for name, s := range r.app {
		merged[name] = s
	}
	for name, s := range r.host {
		merged[name] = s
	}
	out := make([]Schedule, 0, len(merged))
	for _, s := range merged {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Interval != out[j].Interval {
			return out[i].Interval < out[j].Interval
		}
		return out[i].Name < out[j].Name
	})
	return out
}

type fileSchedule struct {
	Interval string `yaml:"interval"`
	Display  string `yaml:"display"`
}

type fileFormat struct {
	Schedules map[string]fileSchedule `yaml:"schedules"`
}

// LoadFile adds the application schedules declared in a YAML file:
//
//	schedules:
//	  every_ten_minutes:
//	    interval: 10m
//	    display: Every 10 Minutes
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schedules file: %w", err)
	}
	return r.LoadYAML(data)
}

// LoadYAML is LoadFile for in-memory content.
func (r *Registry) LoadYAML(data []byte) error {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("yaml unmarshal: %w", err)
	}
	for name, fs := range f.Schedules {
		d, err := time.ParseDuration(fs.Interval)
		if err != nil {
			return fmt.Errorf("schedule %q: invalid interval %q: %w", name, fs.Interval, err)
		}
		if err := r.Add(Schedule{Name: name, Interval: d, Display: fs.Display}); err != nil {
			return err
		}
	}
	return nil
}

// NextRun returns the first occurrence after now on the grid that starts at
// scheduled and advances by interval.
func NextRun(scheduled time.Time, interval time.Duration, now time.Time) time.Time {
	next := scheduled.UTC().Add(interval)
	if interval <= 0 || next.After(now) {
		return next
	}
	missed := now.Sub(next)/interval + 1
	return next.Add(missed * interval)
}

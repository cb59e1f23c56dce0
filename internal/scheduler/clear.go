package scheduler

import (
	"context"
	"sort"
	"strings"

	"github.com/joshu-sajeev/goqueue/internal/crontable"
	"github.com/joshu-sajeev/goqueue/internal/models"
)

// exactArgs turns a nil argument list into the empty one for operations where
// nil has no "any arguments" meaning.
func exactArgs(args models.Args) models.Args {
	if args == nil {
		return models.Args{}
	}
	return args
}

// clearEvents removes the events of hook whose arguments match args. A nil
// args removes every event of hook; the table's own ClearHook only knows
// about argument-less events, so every instance is unscheduled with its
// actual arguments.
func clearEvents(ctx context.Context, table crontable.Table, hook string, args models.Args) (int, error) {
	if args != nil && len(args) == 0 {
		return table.ClearHook(ctx, hook)
	}

	events, err := table.Events(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range events {
		if e.Hook != hook {
			continue
		}
		if args != nil && !e.Args.Equal(args) {
			continue
		}
		ok, err := table.Unschedule(ctx, e.Timestamp, e.Hook, e.Args)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// prefixedHooks returns the sorted distinct hooks starting with prefix.
func prefixedHooks(hooks []string, prefix string, limit int) []string {
	seen := make(map[string]struct{}, len(hooks))
	out := make([]string, 0, len(hooks))
	for _, h := range hooks {
		if !strings.HasPrefix(h, prefix) {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

package runner

import (
	"context"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/crontable"
	"github.com/joshu-sajeev/goqueue/internal/schedule"
	"github.com/rs/zerolog/log"
)

// CronRunner runs the due events of the host cron table. The table has no
// claims, so two overlapping ticks can run the same event.
type CronRunner struct {
	table    crontable.Table
	handlers Handlers
	now      func() time.Time
}

func NewCronRunner(table crontable.Table, handlers Handlers) *CronRunner {
	return &CronRunner{table: table, handlers: handlers, now: time.Now}
}

// Tick runs every event due now. Recurring events are rescheduled before
// their handler runs; handler failures are logged and do not stop the tick.
func (r *CronRunner) Tick(ctx context.Context) (Result, error) {
	events, err := r.table.Events(ctx)
	if err != nil {
		return Result{}, err
	}

	now := r.now()
	var result Result
	for _, e := range events {
		if e.Timestamp > now.Unix() {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Claimed++

		logger := log.With().Str("hook", e.Hook).Int64("timestamp", e.Timestamp).Logger()

		if e.Recurring() {
			next := e
			next.Timestamp = schedule.NextRun(e.Time(), time.Duration(e.Interval)*time.Second, now).Unix()
			if err := r.table.Schedule(ctx, next); err != nil {
				logger.Error().Err(err).Msg("failed to reschedule event")
			}
		}
		removed, err := r.table.Unschedule(ctx, e.Timestamp, e.Hook, e.Args)
		if err != nil {
			logger.Error().Err(err).Msg("failed to remove event")
			result.Failed++
			continue
		}
		if !removed {
			// another tick got there first
			result.Claimed--
			continue
		}

		handler, ok := r.handlers[e.Hook]
		if !ok {
			logger.Warn().Msg("no handler registered for hook")
			result.Failed++
			continue
		}
		if err := invoke(ctx, handler, e.Args); err != nil {
			logger.Error().Err(err).Msg("event failed")
			result.Failed++
			continue
		}
		result.Completed++
	}

	if result.Claimed > 0 {
		log.Info().Int("failed", result.Failed).Msg(result.String())
	}
	return result, nil
}

package runner

import (
	"context"
	"fmt"

	"github.com/joshu-sajeev/goqueue/internal/models"
)

// FailFast wraps every handler so that the first failure cancels ctx with
// the failure as cause. The runner stops before the next job; callers read
// the failure with context.Cause.
func FailFast(handlers Handlers, cancel context.CancelCauseFunc) Handlers {
	wrapped := make(Handlers, len(handlers))
	for hook, h := range handlers {
		wrapped[hook] = func(ctx context.Context, args models.Args) error {
			err := invoke(ctx, h, args)
			if err != nil {
				cancel(fmt.Errorf("hook %s failed: %w", hook, err))
			}
			return err
		}
	}
	return wrapped
}

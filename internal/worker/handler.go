package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/dto"
	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// DefaultHandlers returns the built-in hooks. cleaner may be nil when the
// claim store is not in use.
func DefaultHandlers(cleaner *runner.Cleaner) runner.Handlers {
	return runner.Handlers{
		config.HookEmailDigest:  EmailDigestHandler,
		config.HookLicenseCheck: LicenseCheckHandler,
		config.HookPruneLogs:    PruneLogsHandler(cleaner),
	}
}

// decodeArg decodes and validates args[i] into dest.
func decodeArg[T any](args models.Args, i int, dest *T) error {
	if err := args.Decode(i, dest); err != nil {
		return err
	}
	if err := validate.Struct(dest); err != nil {
		return fmt.Errorf("invalid argument %d: %w", i, err)
	}
	return nil
}

// EmailDigestHandler simulates sending a digest email.
func EmailDigestHandler(ctx context.Context, args models.Args) error {
	var digest dto.EmailDigestArgs
	if err := decodeArg(args, 0, &digest); err != nil {
		return fmt.Errorf("email digest: %w", err)
	}

	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}

	log.Info().
		Str("to", digest.To).
		Str("period", digest.Period).
		Str("subject", digest.Subject).
		Msg("email digest sent")
	return nil
}

// LicenseCheckHandler simulates a call to a licensing server. Keys starting
// with "revoked-" are rejected.
func LicenseCheckHandler(ctx context.Context, args models.Args) error {
	var lic dto.LicenseCheckArgs
	if err := decodeArg(args, 0, &lic); err != nil {
		return fmt.Errorf("license check: %w", err)
	}

	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return fmt.Errorf("license check canceled: %w", ctx.Err())
	}

	if strings.HasPrefix(lic.Key, "revoked-") {
		return fmt.Errorf("license for %s has been revoked", lic.Product)
	}
	log.Info().Str("product", lic.Product).Msg("license valid")
	return nil
}

// PruneLogsHandler runs a cleanup pass. An optional first argument overrides
// the retention.
func PruneLogsHandler(cleaner *runner.Cleaner) runner.HandlerFunc {
	return func(ctx context.Context, args models.Args) error {
		if cleaner == nil {
			log.Info().Msg("claim store not in use, nothing to prune")
			return nil
		}

		c := cleaner
		if len(args) > 0 {
			var opts dto.PruneLogsArgs
			if err := decodeArg(args, 0, &opts); err != nil {
				return fmt.Errorf("prune logs: %w", err)
			}
			c = cleaner.WithRetention(time.Duration(opts.RetentionHours) * time.Hour)
		}

		stats, err := c.Clean(ctx)
		if err != nil {
			return fmt.Errorf("prune logs: %w", err)
		}
		log.Info().Int64("deleted", stats.Deleted).Msg("old actions pruned")
		return nil
	}
}

// Package runner executes scheduled work: claim batches from the claim store
// and due events from the host cron table.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrTooManyBatches = errors.New("too many concurrent batches")
	ErrClaimLost      = errors.New("claim lost")
	ErrNoHandler      = errors.New("no handler registered")
)

// HandlerFunc runs one job.
type HandlerFunc func(ctx context.Context, args models.Args) error

// Handlers maps hook names to handlers.
type Handlers map[string]HandlerFunc

// State is the runner life cycle position.
type State int

const (
	StateIdle State = iota
	StateClaimed
	StateRunning
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClaimed:
		return "claimed"
	case StateRunning:
		return "running"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options select the batch to claim.
type Options struct {
	BatchSize int
	Hooks     []string
	Group     string
	// Force ignores the concurrent batch cap.
	Force bool
}

// Result describes one batch.
type Result struct {
	ClaimID   uint
	Claimed   int
	Completed int
	Failed    int
	Lost      bool
}

func (r Result) String() string {
	return fmt.Sprintf("%d of %d jobs completed", r.Completed, r.Claimed)
}

// Err returns ErrClaimLost when the batch was cut short.
func (r Result) Err() error {
	if r.Lost {
		return fmt.Errorf("%w: claim %d", ErrClaimLost, r.ClaimID)
	}
	return nil
}

// RunnerConfig tunes a QueueRunner.
type RunnerConfig struct {
	// MaxConcurrentBatches caps outstanding claims; zero or less disables the cap.
	MaxConcurrentBatches int
	// Cleaner runs before each claim when set.
	Cleaner *Cleaner
	Now     func() time.Time
}

// QueueRunner claims due actions and runs their handlers one after another.
// A runner processes one batch at a time and is not safe for concurrent use.
type QueueRunner struct {
	store    Store
	handlers Handlers
	cfg      RunnerConfig
	id       string
	logger   zerolog.Logger

	state  State
	claim  *models.StakedClaim
	result Result
}

func NewQueueRunner(store Store, handlers Handlers, cfg RunnerConfig) *QueueRunner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	id := uuid.NewString()
	return &QueueRunner{
		store:    store,
		handlers: handlers,
		cfg:      cfg,
		id:       id,
		logger:   log.With().Str("runner", id).Logger(),
	}
}

func (r *QueueRunner) ID() string { return r.id }

func (r *QueueRunner) State() State { return r.state }

// Setup cleans up, checks the batch cap and stakes a claim. It returns the
// number of actions claimed.
func (r *QueueRunner) Setup(ctx context.Context, opts Options) (int, error) {
	if r.state == StateClaimed || r.state == StateRunning {
		return 0, fmt.Errorf("runner is %s", r.state)
	}

	if r.cfg.Cleaner != nil {
		if _, err := r.cfg.Cleaner.Clean(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("queue cleanup failed")
		}
	}

	if r.cfg.MaxConcurrentBatches > 0 {
		outstanding, err := r.store.ClaimCount(ctx)
		if err != nil {
			return 0, err
		}
		if outstanding >= int64(r.cfg.MaxConcurrentBatches) {
			if !opts.Force {
				return 0, fmt.Errorf("%w: %d outstanding, limit %d", ErrTooManyBatches, outstanding, r.cfg.MaxConcurrentBatches)
			}
			r.logger.Warn().Int64("outstanding", outstanding).Msg("batch cap exceeded, forcing")
		}
	}

	size := opts.BatchSize
	if size <= 0 {
		size = 25
	}
	claim, err := r.store.StakeClaim(ctx, size, opts.Hooks, opts.Group, r.cfg.Now())
	if err != nil {
		return 0, err
	}

	r.claim = claim
	r.state = StateClaimed
	r.result = Result{ClaimID: claim.ID, Claimed: len(claim.ActionIDs)}
	r.logger.Debug().Uint("claim_id", claim.ID).Int("claimed", len(claim.ActionIDs)).Msg("claim staked")
	return len(claim.ActionIDs), nil
}

// Run executes the claimed actions in order. A failing handler only fails
// its own action; a lost claim stops the batch.
func (r *QueueRunner) Run(ctx context.Context) (Result, error) {
	if r.state != StateClaimed {
		return r.result, fmt.Errorf("runner is %s, not claimed", r.state)
	}
	r.state = StateRunning

	for _, id := range r.claim.ActionIDs {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		if lost := r.process(ctx, id); lost {
			r.result.Lost = true
			r.logger.Warn().
				Uint("claim_id", r.claim.ID).
				Uint("action_id", id).
				Msg("claim lost, aborting the rest of the batch")
			break
		}
	}
	return r.result, nil
}

func (r *QueueRunner) process(ctx context.Context, id uint) (lost bool) {
	logger := r.logger.With().Uint("action_id", id).Uint("claim_id", r.claim.ID).Logger()

	owner, err := r.store.ClaimIDOf(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("failed to verify claim ownership")
		return true
	}
	if owner != r.claim.ID {
		if err := r.store.Log(ctx, id, fmt.Sprintf("action lost claim %d", r.claim.ID)); err != nil {
			logger.Warn().Err(err).Msg("failed to log lost claim")
		}
		return true
	}

	action, err := r.store.Get(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load action")
		r.result.Failed++
		return false
	}
	if action.Status != config.ActionStatusPending {
		logger.Info().Str("status", action.Status).Msg("action no longer pending, skipping")
		return false
	}

	logger = logger.With().Str("hook", action.Hook).Logger()
	now := r.cfg.Now()
	if err := r.store.MarkInProgress(ctx, id, now); err != nil {
		logger.Error().Err(err).Msg("failed to mark action in progress")
		r.result.Failed++
		return false
	}

	err = r.execute(ctx, action)
	// the outcome is recorded even when the handler canceled ctx
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("action failed")
		if err := r.store.MarkFailure(recordCtx, id, err.Error(), r.cfg.Now()); err != nil {
			logger.Error().Err(err).Msg("failed to record failure")
		}
		r.result.Failed++
		return false
	}

	if err := r.store.MarkComplete(recordCtx, id, r.cfg.Now()); err != nil {
		logger.Error().Err(err).Msg("failed to record completion")
		r.result.Failed++
		return false
	}
	logger.Debug().Msg("action complete")
	r.result.Completed++
	return false
}

func (r *QueueRunner) execute(ctx context.Context, action *models.Action) error {
	handler, ok := r.handlers[action.Hook]
	if !ok {
		return fmt.Errorf("%w for hook %q", ErrNoHandler, action.Hook)
	}
	args, err := action.DecodeArgs()
	if err != nil {
		return err
	}
	return invoke(ctx, handler, args)
}

// invoke calls h and turns a panic into an error.
func invoke(ctx context.Context, h HandlerFunc, args models.Args) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(ctx, args)
}

// Release gives the claim back so unprocessed actions can be claimed again.
// It is safe to call more than once.
func (r *QueueRunner) Release(ctx context.Context) error {
	if r.claim == nil || r.state == StateReleased {
		return nil
	}
	if err := r.store.ReleaseClaim(ctx, r.claim.ID); err != nil {
		return err
	}
	r.state = StateReleased
	r.logger.Debug().Uint("claim_id", r.claim.ID).Msg("claim released")
	return nil
}

// Process runs one full batch: setup, run, release. The claim is released
// even when the run stops early.
func (r *QueueRunner) Process(ctx context.Context, opts Options) (Result, error) {
	claimed, err := r.Setup(ctx, opts)
	if err != nil {
		return Result{}, err
	}

	var result Result
	var runErr error
	if claimed > 0 {
		result, runErr = r.Run(ctx)
	} else {
		result = r.result
	}

	// release with a fresh context so a canceled run still frees its claim
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.Release(releaseCtx); err != nil {
		r.logger.Error().Err(err).Uint("claim_id", result.ClaimID).Msg("failed to release claim")
		if runErr == nil {
			runErr = err
		}
	}

	if result.Claimed > 0 {
		event := r.logger.Info()
		if result.Lost {
			event = r.logger.Warn()
		}
		event.Uint("claim_id", result.ClaimID).
			Int("failed", result.Failed).
			Bool("lost", result.Lost).
			Msg(result.String())
	}
	return result, runErr
}

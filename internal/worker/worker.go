// Package worker triggers queue runs on a cron schedule and ships the
// built-in hook handlers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BatchFunc runs one batch of due work.
type BatchFunc func(ctx context.Context) (runner.Result, error)

// Worker calls its BatchFunc on every tick of a cron spec. A tick that fires
// while the previous batch is still running is skipped.
type Worker struct {
	ID     int
	spec   string
	batch  BatchFunc
	logger zerolog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorker(id int, spec string, batch BatchFunc) *Worker {
	return &Worker{
		ID:     id,
		spec:   spec,
		batch:  batch,
		logger: log.With().Int("worker", id).Logger(),
	}
}

// Start schedules the worker. ctx bounds every batch it runs.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return fmt.Errorf("worker %d already started", w.ID)
	}

	cl := cronLogger{logger: w.logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(w.spec, w.tick); err != nil {
		return fmt.Errorf("worker %d: invalid schedule %q: %w", w.ID, w.spec, err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.cron = c
	c.Start()
	w.logger.Info().Str("schedule", w.spec).Msg("worker started")
	return nil
}

func (w *Worker) tick() {
	if _, err := w.RunOnce(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error().Err(err).Msg("batch failed")
	}
}

// RunOnce runs a single batch now. Hitting the batch cap is not an error.
func (w *Worker) RunOnce(ctx context.Context) (runner.Result, error) {
	result, err := w.batch(ctx)
	if errors.Is(err, runner.ErrTooManyBatches) {
		w.logger.Debug().Err(err).Msg("skipping batch")
		return result, nil
	}
	if err != nil {
		return result, err
	}
	return result, result.Err()
}

// Stop cancels running batches and waits for them to return.
func (w *Worker) Stop() {
	w.mu.Lock()
	c := w.cron
	cancel := w.cancel
	w.cron = nil
	w.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	w.logger.Info().Msg("worker stopped")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

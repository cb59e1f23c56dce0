// Package app wires the stores, schedulers and runners shared by the
// binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/crontable"
	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/joshu-sajeev/goqueue/internal/schedule"
	"github.com/joshu-sajeev/goqueue/internal/scheduler"
	"github.com/joshu-sajeev/goqueue/internal/storage/postgres"
	"github.com/joshu-sajeev/goqueue/internal/worker"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Store      *postgres.ActionStore
	Table      crontable.Table
	Registry   *schedule.Registry
	Selector   *scheduler.Selector
	Cleaner    *runner.Cleaner
	Dispatcher *runner.Dispatcher

	closers []func() error
}

// Options override parts of the wiring, mostly for tests.
type Options struct {
	DB       *gorm.DB
	DBConfig *postgres.Config
	Table    crontable.Table
}

// New builds the application. A database that cannot be reached or
// initialized is not fatal: the host cron backend takes over.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	a.Registry = schedule.Default()
	if cfg.SchedulesFile != "" {
		if err := a.Registry.LoadFile(cfg.SchedulesFile); err != nil {
			return nil, fmt.Errorf("load schedules: %w", err)
		}
	}

	a.Table = opts.Table
	if a.Table == nil {
		table, err := crontable.OpenSQLite(cfg.CronTablePath)
		if err != nil {
			return nil, fmt.Errorf("open cron table: %w", err)
		}
		a.Table = table
		a.closers = append(a.closers, table.Close)
	}

	a.DB = opts.DB
	if a.DB == nil {
		db, err := postgres.ConnectDB(ctx, opts.DBConfig)
		if err != nil {
			log.Warn().Err(err).Msg("claim store unavailable, using host cron")
		} else {
			a.DB = db
			if sqlDB, err := db.DB(); err == nil {
				a.closers = append(a.closers, sqlDB.Close)
			}
		}
	}

	var claim scheduler.Scheduler
	var store runner.Store
	if a.DB != nil {
		a.Store = postgres.NewActionStore(a.DB)
		if err := a.Store.Init(ctx); err != nil {
			log.Warn().Err(err).Msg("claim store failed to initialize, using host cron")
		}
		claim = scheduler.NewActionScheduler(a.Store, a.Registry)
		store = a.Store
		a.Cleaner = runner.NewCleaner(a.Store, runner.CleanupConfig{
			Retention:    cfg.Retention,
			BatchSize:    cfg.CleanupBatch,
			ClaimTimeout: cfg.ClaimTimeout,
		})
	}

	host := scheduler.NewCronScheduler(a.Table, a.Registry)
	a.Selector = scheduler.NewSelector(scheduler.Policy{PreferClaimStore: cfg.PreferClaimStore}, claim, host, a.Registry)

	a.Dispatcher = runner.NewDispatcher(a.Selector, store, a.Table, worker.DefaultHandlers(a.Cleaner), runner.RunnerConfig{
		MaxConcurrentBatches: cfg.MaxConcurrentBatches,
		Cleaner:              a.Cleaner,
	})
	return a, nil
}

// Batch runs one batch with the configured batch size.
func (a *App) Batch(ctx context.Context) (runner.Result, error) {
	return a.Dispatcher.RunBatch(ctx, runner.Options{BatchSize: a.Config.BatchSize})
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

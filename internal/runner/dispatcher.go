package runner

import (
	"context"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/crontable"
)

// Backend reports which scheduling backend is active.
type Backend interface {
	ClaimStoreActive(ctx context.Context) bool
}

// Dispatcher runs one batch on whichever backend is active at the time.
type Dispatcher struct {
	backend  Backend
	store    Store
	table    crontable.Table
	handlers Handlers
	cfg      RunnerConfig
}

func NewDispatcher(backend Backend, store Store, table crontable.Table, handlers Handlers, cfg RunnerConfig) *Dispatcher {
	return &Dispatcher{backend: backend, store: store, table: table, handlers: handlers, cfg: cfg}
}

// WithHandlers returns a copy of d that runs handlers instead.
func (d *Dispatcher) WithHandlers(handlers Handlers) *Dispatcher {
	cp := *d
	cp.handlers = handlers
	return &cp
}

func (d *Dispatcher) Handlers() Handlers { return d.handlers }

// BackendName is the backend the next batch would use.
func (d *Dispatcher) BackendName(ctx context.Context) string {
	if d.store != nil && d.backend.ClaimStoreActive(ctx) {
		return config.BackendClaimStore
	}
	return config.BackendHostCron
}

// RunBatch processes one batch. The host cron backend ignores opts and runs
// every due event.
func (d *Dispatcher) RunBatch(ctx context.Context, opts Options) (Result, error) {
	if d.BackendName(ctx) == config.BackendClaimStore {
		return NewQueueRunner(d.store, d.handlers, d.cfg).Process(ctx, opts)
	}
	cr := NewCronRunner(d.table, d.handlers)
	if d.cfg.Now != nil {
		cr.now = d.cfg.Now
	}
	return cr.Tick(ctx)
}

// Cleanup runs the configured cleaner, if any.
func (d *Dispatcher) Cleanup(ctx context.Context) (CleanupStats, error) {
	if d.cfg.Cleaner == nil {
		return CleanupStats{}, nil
	}
	return d.cfg.Cleaner.Clean(ctx)
}

// BatchTimeout bounds a batch started on demand.
const BatchTimeout = 10 * time.Minute

package pool

import (
	"context"
	"sync"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/joshu-sajeev/goqueue/internal/worker"
	"github.com/rs/zerolog/log"
)

// Janitor is the periodic cleanup step of a pool.
type Janitor interface {
	Cleanup(ctx context.Context) (runner.CleanupStats, error)
}

type WorkerPool struct {
	workers     []*worker.Worker
	janitor     Janitor
	janitorTick time.Duration
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewWorkerPool builds count workers sharing spec and batch. A nil janitor
// disables periodic cleanup.
func NewWorkerPool(count int, spec string, batch worker.BatchFunc, janitor Janitor, janitorTick time.Duration) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	if janitorTick <= 0 {
		janitorTick = 30 * time.Second
	}
	p := &WorkerPool{janitor: janitor, janitorTick: janitorTick, ctx: ctx, cancel: cancel}

	for i := 1; i <= count; i++ {
		p.workers = append(p.workers, worker.NewWorker(i, spec, batch))
	}
	return p
}

func (p *WorkerPool) Size() int { return len(p.workers) }

// Start starts every worker. Workers already started are stopped again when
// a later one fails.
func (p *WorkerPool) Start() error {
	for i, w := range p.workers {
		if err := w.Start(p.ctx); err != nil {
			for _, started := range p.workers[:i] {
				started.Stop()
			}
			return err
		}
	}

	if p.janitor != nil {
		p.wg.Add(1)
		go p.runJanitor()
	}
	log.Info().Int("workers", len(p.workers)).Msg("worker pool started")
	return nil
}

func (p *WorkerPool) runJanitor() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.janitorTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := p.janitor.Cleanup(p.ctx); err != nil && p.ctx.Err() == nil {
				log.Error().Err(err).Msg("janitor cleanup failed")
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) Stop() {
	p.cancel()
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

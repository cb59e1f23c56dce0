package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshu-sajeev/goqueue/internal/app"
	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/pool"
	"github.com/rs/zerolog/log"
)

func main() {
	config.LoadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogger(cfg.LogLevel, false)

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	var janitor pool.Janitor
	if a.Cleaner != nil {
		janitor = a.Dispatcher
	}
	workerPool := pool.NewWorkerPool(cfg.WorkerCount, cfg.WorkerSchedule, a.Batch, janitor, cfg.ClaimTimeout/2)
	if err := workerPool.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start workers")
	}
	log.Info().Str("backend", a.Selector.ActiveName(ctx)).Msg("worker pool active, press Ctrl+C to stop")

	<-ctx.Done()
	workerPool.Stop()
	log.Info().Msg("shutdown complete")
}

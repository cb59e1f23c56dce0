package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshu-sajeev/goqueue/internal/app"
	"github.com/joshu-sajeev/goqueue/internal/config"
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
	config.SetupLogger(cfg.LogLevel, true)

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	err = rootCmd(a).ExecuteContext(ctx)
	a.Close()
	if err != nil {
		os.Exit(1)
	}
}

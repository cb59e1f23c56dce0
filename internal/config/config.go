package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
)

// Config holds scheduler, runner and worker settings. Database settings live
// in postgres.Config.
type Config struct {
	PreferClaimStore     bool          `env:"SCHEDULER_PREFER_CLAIM_STORE,default=true"`
	BatchSize            int           `env:"RUNNER_BATCH_SIZE,default=25"`
	MaxConcurrentBatches int           `env:"RUNNER_MAX_CONCURRENT_BATCHES,default=1"`
	Retention            time.Duration `env:"RUNNER_RETENTION,default=720h"`
	CleanupBatch         int           `env:"RUNNER_CLEANUP_BATCH,default=20"`
	ClaimTimeout         time.Duration `env:"RUNNER_CLAIM_TIMEOUT,default=5m"`
	WorkerSchedule       string        `env:"WORKER_SCHEDULE,default=@every 1m"`
	WorkerCount          int           `env:"WORKER_COUNT,default=1"`
	SchedulesFile        string        `env:"SCHEDULES_FILE"`
	CronTablePath        string        `env:"CRON_TABLE_PATH,default=data/cron.db"`
	APIAddr              string        `env:"API_ADDR,default=:8080"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
}

// to help with testing
var envProcess = envconfig.Process

// LoadDotEnv loads variables from the given files (".env" when none are
// given). Missing files are not an error.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	if cfg.BatchSize < 1 {
		errors = append(errors, "RUNNER_BATCH_SIZE must be positive")
	}
	if cfg.MaxConcurrentBatches < 1 {
		errors = append(errors, "RUNNER_MAX_CONCURRENT_BATCHES must be positive")
	}
	if cfg.Retention <= 0 {
		errors = append(errors, "RUNNER_RETENTION must be positive")
	}
	if cfg.CleanupBatch < 1 {
		errors = append(errors, "RUNNER_CLEANUP_BATCH must be positive")
	}
	if cfg.ClaimTimeout <= 0 {
		errors = append(errors, "RUNNER_CLAIM_TIMEOUT must be positive")
	}
	if cfg.WorkerCount < 1 {
		errors = append(errors, "WORKER_COUNT must be positive")
	}
	if _, err := cron.ParseStandard(cfg.WorkerSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("WORKER_SCHEDULE is invalid: %v", err))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		errors = append(errors, "LOG_LEVEL must be one of trace, debug, info, warn, error")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}
	return nil
}

// SetupLogger configures the global zerolog logger. Console output is meant
// for interactive CLIs.
func SetupLogger(level string, console bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

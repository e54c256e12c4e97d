package jobs

import (
	"fmt"
	"time"
)

// WorkerMode selects which part of the job system a process runs.
type WorkerMode string

const (
	// ModeNone only enqueues.
	ModeNone WorkerMode = "none"
	// ModeInline consumes queues but leaves scheduling to another process.
	ModeInline WorkerMode = "inline"
	// ModeAll consumes queues, registers repeatable jobs and schedules them.
	ModeAll WorkerMode = "all"
)

type Config struct {
	Enabled bool       `env:"JOBS_ENABLED" envDefault:"true"`
	Mode    WorkerMode `env:"WORKER_MODE" envDefault:"all"`

	RankCheckConcurrency int           `env:"RANK_CHECK_CONCURRENCY" envDefault:"5"`
	RankCheckRateLimit   int           `env:"RANK_CHECK_RATE_LIMIT" envDefault:"28"`
	RankCheckRateWindow  time.Duration `env:"RANK_CHECK_RATE_WINDOW" envDefault:"60s"`
	RankCheckTimeout     time.Duration `env:"RANK_CHECK_TIMEOUT" envDefault:"60s"`

	EmailConcurrency int           `env:"EMAIL_CONCURRENCY" envDefault:"10"`
	EmailRateLimit   int           `env:"EMAIL_RATE_LIMIT" envDefault:"50"`
	EmailRateWindow  time.Duration `env:"EMAIL_RATE_WINDOW" envDefault:"1m"`
	EmailTimeout     time.Duration `env:"EMAIL_TIMEOUT" envDefault:"30s"`

	PaymentWebhookConcurrency int `env:"PAYMENT_WEBHOOK_CONCURRENCY" envDefault:"5"`

	EnrichmentBatchSize  int           `env:"ENRICHMENT_BATCH_SIZE" envDefault:"50"`
	EnrichmentStaleAfter time.Duration `env:"ENRICHMENT_STALE_AFTER" envDefault:"720h"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                   true,
		Mode:                      ModeAll,
		RankCheckConcurrency:      5,
		RankCheckRateLimit:        28,
		RankCheckRateWindow:       time.Minute,
		RankCheckTimeout:          time.Minute,
		EmailConcurrency:          10,
		EmailRateLimit:            50,
		EmailRateWindow:           time.Minute,
		EmailTimeout:              30 * time.Second,
		PaymentWebhookConcurrency: 5,
		EnrichmentBatchSize:       50,
		EnrichmentStaleAfter:      30 * 24 * time.Hour,
	}
}

// Validate rejects unknown worker modes and non-positive concurrency.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeNone, ModeInline, ModeAll:
	default:
		return fmt.Errorf("invalid WORKER_MODE %q: must be none, inline or all", c.Mode)
	}
	if c.RankCheckConcurrency < 1 || c.EmailConcurrency < 1 || c.PaymentWebhookConcurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1")
	}
	return nil
}

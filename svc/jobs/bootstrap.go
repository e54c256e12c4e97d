package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/indexnowstudio/jobs/pkg/email"
	"github.com/indexnowstudio/jobs/pkg/queue"
	"github.com/indexnowstudio/jobs/pkg/ratelimiter"
)

// Deps are the collaborators of the job system, built by the process.
type Deps struct {
	Storage      queue.Storage
	RateStore    ratelimiter.Store
	Keywords     KeywordStore
	Transactions TransactionStore
	Quota        QuotaConsumer
	QuotaMonitor QuotaMonitor
	Enrichment   EnrichmentRunner
	RankChecker  RankChecker
	EmailSender  email.EmailSender
	Logger       *slog.Logger

	RegistryOptions  []queue.RegistryOption
	SchedulerOptions []queue.SchedulerOption
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) validate(cfg Config) error {
	if d.Storage == nil {
		return errors.New("jobs: queue storage is required")
	}
	if !cfg.Enabled || cfg.Mode == ModeNone {
		return nil
	}
	switch {
	case d.RateStore == nil:
		return errors.New("jobs: rate limiter store is required")
	case d.Keywords == nil, d.Transactions == nil, d.Quota == nil, d.QuotaMonitor == nil:
		return errors.New("jobs: data stores are required")
	case d.Enrichment == nil, d.RankChecker == nil, d.EmailSender == nil:
		return errors.New("jobs: external services are required")
	}
	return nil
}

// Runtime is a bootstrapped job system.
type Runtime struct {
	Registry *queue.Registry
	Producer *Producer

	consuming bool
	logger    *slog.Logger
}

// Consuming reports whether this process runs workers.
func (r *Runtime) Consuming() bool {
	return r.consuming
}

// Run blocks until ctx is done. Workers and the scheduler run only when
// the configuration enabled them.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.consuming {
		r.logger.InfoContext(ctx, "job processing disabled, enqueue only")
		<-ctx.Done()
		return nil
	}
	return r.Registry.Run(ctx)
}

// Bootstrap builds the queue registry and, depending on cfg, registers
// workers (inline and all) plus repeatable schedules and the scheduler (all).
func Bootstrap(ctx context.Context, deps Deps, cfg Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(cfg); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	opts := append([]queue.RegistryOption{queue.WithRegistryLogger(deps.Logger)}, deps.RegistryOptions...)
	reg, err := queue.NewRegistry(deps.Storage, opts...)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{QueueRankCheck, QueueEmail, QueuePaymentWebhook, QueueAutoCancel, QueueKeywordEnrichment, QueueQuotaReset} {
		reg.GetQueue(name)
	}

	rt := &Runtime{Registry: reg, Producer: NewProducer(reg), logger: deps.Logger}
	if !cfg.Enabled || cfg.Mode == ModeNone {
		return rt, nil
	}

	if err := registerWorkers(reg, deps, cfg); err != nil {
		return nil, err
	}
	rt.consuming = true

	if cfg.Mode == ModeAll {
		if err := RegisterSchedules(ctx, reg, deps.Logger); err != nil {
			return nil, err
		}
		reg.EnableScheduler(deps.SchedulerOptions...)
	}

	deps.Logger.InfoContext(ctx, "job system bootstrapped", slog.String("mode", string(cfg.Mode)))
	return rt, nil
}

func registerWorkers(reg *queue.Registry, deps Deps, cfg Config) error {
	rankLimiter, err := ratelimiter.NewBucket(deps.RateStore, "queue:"+QueueRankCheck,
		ratelimiter.PerWindow(cfg.RankCheckRateLimit, cfg.RankCheckRateWindow))
	if err != nil {
		return fmt.Errorf("rank check rate limit: %w", err)
	}
	emailLimiter, err := ratelimiter.NewBucket(deps.RateStore, "queue:"+QueueEmail,
		ratelimiter.PerWindow(cfg.EmailRateLimit, cfg.EmailRateWindow))
	if err != nil {
		return fmt.Errorf("email rate limit: %w", err)
	}

	log := deps.Logger
	notifier := NewNotifier(deps.EmailSender, cfg.EmailTimeout)

	rankCheck := NewRankCheckWorker(deps.Keywords, deps.RankChecker, deps.Quota, deps.Storage, cfg.RankCheckTimeout, log)
	rankCheck.now = deps.Now
	autoCancel := NewAutoCancelWorker(deps.Transactions, notifier, log)
	autoCancel.now = deps.Now
	webhook := NewPaymentWebhookWorker(deps.Transactions, reg.GetQueue(QueueEmail), deps.Storage, log)
	webhook.now = deps.Now

	registrations := []struct {
		queue   string
		handler queue.Handler
		opts    []queue.WorkerOption
	}{
		{
			queue:   QueueRankCheck,
			handler: queue.NewResultTaskHandler(rankCheck.Handle),
			opts: []queue.WorkerOption{
				queue.WithMaxConcurrentTasks(cfg.RankCheckConcurrency),
				queue.WithRateLimit(rankLimiter),
			},
		},
		{
			queue:   QueueEmail,
			handler: queue.NewTaskHandler(notifier.Send),
			opts: []queue.WorkerOption{
				queue.WithMaxConcurrentTasks(cfg.EmailConcurrency),
				queue.WithRateLimit(emailLimiter),
			},
		},
		{
			queue:   QueuePaymentWebhook,
			handler: queue.NewResultTaskHandler(webhook.Handle),
			opts:    []queue.WorkerOption{queue.WithMaxConcurrentTasks(cfg.PaymentWebhookConcurrency)},
		},
		{queue: QueueAutoCancel, handler: autoCancelHandler(autoCancel, deps.Storage, log)},
		{queue: QueueKeywordEnrichment, handler: keywordEnrichmentHandler(deps.Enrichment, deps.Storage, log)},
		{queue: QueueQuotaReset, handler: quotaResetHandler(deps.QuotaMonitor, deps.Storage, deps.Now, log)},
	}

	for _, r := range registrations {
		if _, err := reg.RegisterWorker(r.queue, r.handler, r.opts...); err != nil {
			return fmt.Errorf("register %s worker: %w", r.queue, err)
		}
	}
	return nil
}

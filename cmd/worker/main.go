// Command worker runs the IndexNow Studio job system: queue workers, the
// repeatable job scheduler and the ops API, as selected by WORKER_MODE.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/indexnowstudio/jobs/db"
	"github.com/indexnowstudio/jobs/pkg/config"
	"github.com/indexnowstudio/jobs/pkg/email"
	"github.com/indexnowstudio/jobs/pkg/environment"
	"github.com/indexnowstudio/jobs/pkg/httpserver"
	"github.com/indexnowstudio/jobs/pkg/logger"
	"github.com/indexnowstudio/jobs/pkg/pg"
	"github.com/indexnowstudio/jobs/pkg/queue"
	"github.com/indexnowstudio/jobs/pkg/ratelimiter"
	"github.com/indexnowstudio/jobs/pkg/redis"
	"github.com/indexnowstudio/jobs/pkg/requestid"
	"github.com/indexnowstudio/jobs/svc/enrichment"
	"github.com/indexnowstudio/jobs/svc/jobs"
	"github.com/indexnowstudio/jobs/svc/opsapi"
	"github.com/indexnowstudio/jobs/svc/quota"
	"github.com/indexnowstudio/jobs/svc/serp"
	"github.com/indexnowstudio/jobs/svc/store"
)

func main() {
	cfg, err := config.Load[appConfig]()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	env := environment.Parse(cfg.Env)
	extractors := append([]logger.ContextExtractor{
		environment.LoggerExtractor(),
		requestid.LoggerExtractor(),
	}, jobs.LogExtractors()...)
	log := logger.New(
		logger.WithEnvironment(env, cfg.Service),
		logger.WithContextExtractors(extractors...),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = environment.WithContext(ctx, env)

	if err := run(ctx, cfg, env, log); err != nil {
		log.Error("worker stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("worker stopped")
}

func run(ctx context.Context, cfg appConfig, env environment.Environment, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, db.Migrations, cfg.Postgres, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error("failed to close redis client", logger.Error(err))
		}
	}()

	jobOpts := cfg.Queue.JobOptions()
	storage, err := queue.NewRedisStorage(rdb,
		queue.WithKeyPrefix(cfg.Queue.KeyPrefix),
		queue.WithRetention(jobOpts.Retention))
	if err != nil {
		return err
	}
	rateStore, err := ratelimiter.NewRedisStore(rdb, ratelimiter.WithRedisKeyPrefix(cfg.Queue.KeyPrefix+":ratelimit"))
	if err != nil {
		return err
	}

	auditLog, err := store.NewAuditLogger(store.NewAuditStorage(pool))
	if err != nil {
		return err
	}
	repo := store.NewRepository(pool, store.NewSecure(auditLog))

	sender, err := newEmailSender(cfg.Email, env, log)
	if err != nil {
		return err
	}

	serpClient := serp.NewClient(cfg.SERP)
	enricher := enrichment.NewWorker(repo, serpClient,
		enrichment.WithBatchSize(cfg.Jobs.EnrichmentBatchSize),
		enrichment.WithStaleAfter(cfg.Jobs.EnrichmentStaleAfter),
		enrichment.WithLogger(log))

	rt, err := jobs.Bootstrap(ctx, jobs.Deps{
		Storage:      storage,
		RateStore:    rateStore,
		Keywords:     repo,
		Transactions: repo,
		Quota:        quota.NewService(repo),
		QuotaMonitor: quota.NewMonitor(repo, log),
		Enrichment:   enricher,
		RankChecker:  serpClient,
		EmailSender:  sender,
		Logger:       log,
		RegistryOptions: []queue.RegistryOption{
			queue.WithJobOptions(jobOpts),
			queue.WithWorkerDefaults(
				queue.WithPullInterval(cfg.Queue.PollInterval),
				queue.WithLockTimeout(cfg.Queue.LockTimeout),
			),
		},
		SchedulerOptions: []queue.SchedulerOption{queue.WithCheckInterval(cfg.Queue.SchedulerCheckInterval)},
	}, cfg.Jobs)
	if err != nil {
		return err
	}

	router := opsapi.NewRouter(opsapi.Options{
		Registry:        rt.Registry,
		Environment:     env,
		Logger:          log,
		ReadinessChecks: []func(context.Context) error{pg.Healthcheck(pool), redis.Healthcheck(rdb)},
	})
	ops := httpserver.New(cfg.Ops, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error { return ops.Run(gctx, router) })

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", slog.Duration("timeout", cfg.Queue.ShutdownTimeout))
	select {
	case err := <-done:
		return err
	case <-time.After(cfg.Queue.ShutdownTimeout):
		// Unfinished tasks are claimed again once their lock expires.
		return errors.New("shutdown timed out with tasks still running")
	}
}

func newEmailSender(cfg email.Config, env environment.Environment, log *slog.Logger) (email.EmailSender, error) {
	if cfg.HasPostmark() {
		return email.NewPostmarkClient(cfg)
	}
	if env == environment.Production {
		return nil, fmt.Errorf("%w: postmark tokens are required in production", email.ErrInvalidConfig)
	}
	log.Warn("postmark is not configured, emails are written to disk", slog.String("dir", cfg.DevOutputDir))
	return email.NewDevSender(cfg.DevOutputDir), nil
}

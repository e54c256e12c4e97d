package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/indexnowstudio/jobs/pkg/queue"
	"github.com/indexnowstudio/jobs/svc/enrichment"
	"github.com/indexnowstudio/jobs/svc/quota"
	"github.com/indexnowstudio/jobs/svc/store"
)

// QuotaMonitor resets quotas after the day rolled over.
type QuotaMonitor interface {
	CheckAndReactivate(ctx context.Context, now time.Time) (quota.ReactivationResult, error)
}

// EnrichmentRunner runs one keyword enrichment batch.
type EnrichmentRunner interface {
	Run(ctx context.Context) (enrichment.Result, error)
}

func quotaResetHandler(monitor QuotaMonitor, locker queue.Locker, now func() time.Time, log *slog.Logger) queue.Handler {
	h := queue.NewResultTaskHandler(func(ctx context.Context, _ QuotaResetSweep) (quota.ReactivationResult, error) {
		return monitor.CheckAndReactivate(store.WithActor(ctx, actorQuotaReset), now())
	})
	return queue.Exclusive(locker, lockQuotaReset, 0, h, log)
}

// keywordEnrichmentHandler only validates the trigger and delegates to the
// enrichment worker owned by the bootstrap.
func keywordEnrichmentHandler(runner EnrichmentRunner, locker queue.Locker, log *slog.Logger) queue.Handler {
	h := queue.NewResultTaskHandler(func(ctx context.Context, _ KeywordEnrichmentSweep) (enrichment.Result, error) {
		return runner.Run(store.WithActor(ctx, actorEnrichment))
	})
	return queue.Exclusive(locker, lockKeywordEnrichment, 0, h, log)
}

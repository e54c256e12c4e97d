package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/indexnowstudio/jobs/pkg/logger"
	"github.com/indexnowstudio/jobs/svc/serp"
	"github.com/indexnowstudio/jobs/svc/store"
)

const (
	DefaultBatchSize  = 50
	DefaultStaleAfter = 30 * 24 * time.Hour
)

// Repository is the keyword bank storage used by Worker.
type Repository interface {
	ListKeywordsForEnrichment(ctx context.Context, staleBefore time.Time, limit int) ([]store.EnrichmentCandidate, error)
	UpdateKeywordEnrichment(ctx context.Context, id uuid.UUID, e store.KeywordEnrichment) error
}

// DataSource provides keyword metadata.
type DataSource interface {
	KeywordData(ctx context.Context, keyword, countryCode string) (*serp.KeywordData, error)
}

// Result summarises one enrichment pass.
type Result struct {
	Found    int `json:"found"`
	Enriched int `json:"enriched"`
	Failed   int `json:"failed"`
}

// Worker fills in missing or stale keyword metadata in batches.
type Worker struct {
	repo       Repository
	source     DataSource
	batchSize  int
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Worker.
type Option func(*Worker)

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithStaleAfter(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.staleAfter = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorker creates an enrichment worker that refreshes stale keywords from
// source in batches.
func NewWorker(repo Repository, source DataSource, opts ...Option) *Worker {
	w := &Worker{
		repo:       repo,
		source:     source,
		batchSize:  DefaultBatchSize,
		staleAfter: DefaultStaleAfter,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.Component("keyword-enrichment"))
	return w
}

// Run enriches one batch. Failures of single keywords are logged and
// counted; only failing to list the batch is an error.
func (w *Worker) Run(ctx context.Context) (Result, error) {
	now := w.now()
	candidates, err := w.repo.ListKeywordsForEnrichment(ctx, now.Add(-w.staleAfter), w.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("list keywords for enrichment: %w", err)
	}

	res := Result{Found: len(candidates)}
	for _, c := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err := w.enrich(ctx, c, now); err != nil {
			res.Failed++
			w.logger.WarnContext(ctx, "keyword enrichment failed",
				logger.KeywordID(c.ID), slog.String("keyword", c.Keyword), logger.Error(err))
			continue
		}
		res.Enriched++
	}

	w.logger.InfoContext(ctx, "keyword enrichment finished",
		slog.Int("found", res.Found), slog.Int("enriched", res.Enriched), slog.Int("failed", res.Failed))
	return res, nil
}

func (w *Worker) enrich(ctx context.Context, c store.EnrichmentCandidate, now time.Time) error {
	data, err := w.source.KeywordData(ctx, c.Keyword, c.CountryCode)
	if err != nil {
		return err
	}
	return w.repo.UpdateKeywordEnrichment(ctx, c.ID, store.KeywordEnrichment{
		SearchVolume: data.SearchVolume,
		Difficulty:   data.Difficulty,
		CPC:          data.CPC,
		Intent:       data.Intent,
		EnrichedAt:   now,
	})
}

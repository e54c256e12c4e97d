package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/indexnowstudio/jobs/pkg/logger"
	"github.com/indexnowstudio/jobs/pkg/queue"
	"github.com/indexnowstudio/jobs/svc/serp"
	"github.com/indexnowstudio/jobs/svc/store"
)

// KeywordStore is the keyword storage used by rank checks.
type KeywordStore interface {
	GetKeyword(ctx context.Context, userID, keywordID uuid.UUID) (*store.Keyword, error)
	UpdateKeywordPosition(ctx context.Context, keywordID uuid.UUID, position, previous *int, checkedAt time.Time) error
	InsertRankHistory(ctx context.Context, h store.RankHistory) (bool, error)
}

// RankChecker looks up the live position of a keyword.
type RankChecker interface {
	CheckRank(ctx context.Context, q serp.RankQuery) (*serp.RankResult, error)
}

// QuotaConsumer records spent rank checks.
type QuotaConsumer interface {
	Consume(ctx context.Context, userID uuid.UUID, n int) error
}

// RankCheckResult is stored with the completed task.
type RankCheckResult struct {
	KeywordID        uuid.UUID `json:"keyword_id"`
	Position         *int      `json:"position"`
	PreviousPosition *int      `json:"previous_position"`
	URL              string    `json:"url,omitempty"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Step names of a rank check.
const (
	stepCheck    = "check"
	stepPosition = "position"
	stepHistory  = "history"
	stepQuota    = "quota"
)

// RankCheckWorker refreshes the position of one keyword.
type RankCheckWorker struct {
	keywords    KeywordStore
	checker     RankChecker
	quota       QuotaConsumer
	checkpoints queue.Checkpoints
	timeout     time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewRankCheckWorker creates a rank-check worker. Checkpoints may be nil,
// in which case every step runs on every attempt.
func NewRankCheckWorker(keywords KeywordStore, checker RankChecker, quota QuotaConsumer, checkpoints queue.Checkpoints, timeout time.Duration, log *slog.Logger) *RankCheckWorker {
	if log == nil {
		log = slog.Default()
	}
	return &RankCheckWorker{
		keywords:    keywords,
		checker:     checker,
		quota:       quota,
		checkpoints: checkpoints,
		timeout:     timeout,
		now:         time.Now,
		logger:      log.With(logger.Component("rank-check")),
	}
}

// Handle loads the keyword, checks its rank and applies the result in
// checkpointed steps, so a retry never repeats a write that already
// happened, in particular the quota increment.
func (w *RankCheckWorker) Handle(ctx context.Context, p RankCheckPayload) (RankCheckResult, error) {
	ctx = store.WithActor(ctx, "user:"+p.UserID.String())

	kw, err := w.keywords.GetKeyword(ctx, p.UserID, p.KeywordID)
	if errors.Is(err, store.ErrNotFound) {
		return RankCheckResult{}, queue.Permanent(fmt.Errorf("%w: %s", ErrKeywordNotFound, p.KeywordID))
	}
	if err != nil {
		return RankCheckResult{}, err
	}

	// Retries reuse the first observation.
	obs, err := queue.StepResult(ctx, w.checkpoints, stepCheck, func(ctx context.Context) (RankCheckResult, error) {
		rank, err := w.check(ctx, kw)
		if err != nil {
			return RankCheckResult{}, err
		}
		return RankCheckResult{
			KeywordID:        kw.ID,
			Position:         rank.Position,
			PreviousPosition: kw.Position,
			URL:              rank.URL,
			CheckedAt:        w.now().UTC(),
		}, nil
	})
	if err != nil {
		return RankCheckResult{}, err
	}

	if err := queue.Step(ctx, w.checkpoints, stepPosition, func(ctx context.Context) error {
		return w.keywords.UpdateKeywordPosition(ctx, kw.ID, obs.Position, obs.PreviousPosition, obs.CheckedAt)
	}); err != nil {
		return RankCheckResult{}, err
	}

	if err := queue.Step(ctx, w.checkpoints, stepHistory, func(ctx context.Context) error {
		_, err := w.keywords.InsertRankHistory(ctx, store.RankHistory{
			KeywordID:   kw.ID,
			CheckDate:   obs.CheckedAt,
			Position:    obs.Position,
			URL:         obs.URL,
			Device:      kw.Device,
			CountryCode: kw.CountryCode,
		})
		return err
	}); err != nil {
		return RankCheckResult{}, err
	}

	if err := queue.Step(ctx, w.checkpoints, stepQuota, func(ctx context.Context) error {
		return w.quota.Consume(ctx, kw.UserID, 1)
	}); err != nil {
		return RankCheckResult{}, err
	}

	w.logger.InfoContext(ctx, "rank checked", logger.KeywordID(kw.ID), slog.Any("position", obs.Position))

	return obs, nil
}

func (w *RankCheckWorker) check(ctx context.Context, kw *store.Keyword) (*serp.RankResult, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	rank, err := w.checker.CheckRank(ctx, serp.RankQuery{
		Keyword:     kw.Keyword,
		Domain:      kw.Domain,
		CountryCode: kw.CountryCode,
		Device:      kw.Device,
	})
	switch {
	case errors.Is(err, serp.ErrRejected):
		return nil, queue.Permanent(err)
	case err != nil:
		return nil, fmt.Errorf("check rank of %s: %w", kw.ID, err)
	}
	return rank, nil
}

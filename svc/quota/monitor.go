package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/indexnowstudio/jobs/pkg/logger"
)

// MonitorRepository is the storage used by Monitor.
type MonitorRepository interface {
	ResetDailyQuotas(ctx context.Context, today time.Time) (int64, error)
	ReactivateIntegrations(ctx context.Context, now, nextReset time.Time) (int64, error)
}

// ReactivationResult is what one CheckAndReactivate pass changed.
type ReactivationResult struct {
	ProfilesReset           int64 `json:"profiles_reset"`
	IntegrationsReactivated int64 `json:"integrations_reactivated"`
}

// Monitor resets daily quotas once the day rolled over.
type Monitor struct {
	repo   MonitorRepository
	logger *slog.Logger
}

// NewMonitor creates the monitor run by the quota-reset sweep.
func NewMonitor(repo MonitorRepository, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{repo: repo, logger: log.With(logger.Component("quota-monitor"))}
}

// CheckAndReactivate resets the usage of profiles last reset before today
// (UTC) and reactivates integrations whose reset date passed. Running it
// again on the same day changes nothing.
func (m *Monitor) CheckAndReactivate(ctx context.Context, now time.Time) (ReactivationResult, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var res ReactivationResult
	var err error

	if res.ProfilesReset, err = m.repo.ResetDailyQuotas(ctx, today); err != nil {
		return res, fmt.Errorf("reset daily quotas: %w", err)
	}
	if res.IntegrationsReactivated, err = m.repo.ReactivateIntegrations(ctx, now, today.AddDate(0, 0, 1)); err != nil {
		return res, fmt.Errorf("reactivate integrations: %w", err)
	}

	if res.ProfilesReset > 0 || res.IntegrationsReactivated > 0 {
		m.logger.InfoContext(ctx, "quotas reactivated",
			slog.Int64("profiles_reset", res.ProfilesReset),
			slog.Int64("integrations_reactivated", res.IntegrationsReactivated))
	}
	return res, nil
}

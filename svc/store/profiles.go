package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Quota holds a user's daily rank check counters. A limit of -1 means
// unlimited.
type Quota struct {
	Used  int
	Limit int
}

func (r *Repository) GetQuota(ctx context.Context, userID uuid.UUID) (Quota, error) {
	var q Quota
	err := r.db.QueryRow(ctx,
		`SELECT daily_quota_used, daily_quota_limit FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&q.Used, &q.Limit)
	if err != nil {
		return Quota{}, fmt.Errorf("get quota of %s: %w", userID, notFound(err))
	}
	return q, nil
}

const incrementQuotaUsed = `UPDATE user_profiles
SET daily_quota_used = daily_quota_used + $2
WHERE user_id = $1 AND daily_quota_limit <> -1`

// IncrementQuotaUsed adds n to the daily usage of users with a limited quota.
func (r *Repository) IncrementQuotaUsed(ctx context.Context, userID uuid.UUID, n int) error {
	op := Operation{Action: "quota.consume", Resource: "user_profiles", ResourceID: userID.String(), Reason: "rank check"}
	return r.secure.Do(ctx, op, func(ctx context.Context) error {
		if _, err := r.db.Exec(ctx, incrementQuotaUsed, userID, n); err != nil {
			return fmt.Errorf("increment quota: %w", err)
		}
		return nil
	})
}

const resetDailyQuotas = `UPDATE user_profiles
SET daily_quota_used = 0, quota_reset_date = $1
WHERE quota_reset_date IS NULL OR quota_reset_date < $1`

// ResetDailyQuotas zeroes the usage of every profile not yet reset on today
// and returns how many were reset.
func (r *Repository) ResetDailyQuotas(ctx context.Context, today time.Time) (int64, error) {
	var n int64
	op := Operation{Action: "quota.reset_daily", Resource: "user_profiles", Reason: "daily quota reset"}
	err := r.secure.Do(ctx, op, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, resetDailyQuotas, today.UTC().Format(time.DateOnly))
		if err != nil {
			return fmt.Errorf("reset daily quotas: %w", err)
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

const reactivateIntegrations = `UPDATE service_integrations
SET quota_used = 0, is_active = TRUE, quota_reset_date = $2, updated_at = $1
WHERE quota_reset_date <= $1`

// ReactivateIntegrations resets service level quotas whose reset date
// passed and schedules their next reset at nextReset.
func (r *Repository) ReactivateIntegrations(ctx context.Context, now, nextReset time.Time) (int64, error) {
	var n int64
	op := Operation{Action: "integration.reactivate", Resource: "service_integrations", Reason: "quota reset date passed"}
	err := r.secure.Do(ctx, op, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, reactivateIntegrations, now, nextReset)
		if err != nil {
			return fmt.Errorf("reactivate integrations: %w", err)
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

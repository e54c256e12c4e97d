package quota

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/indexnowstudio/jobs/svc/store"
)

// Unlimited is the daily_quota_limit sentinel of users without a cap.
const Unlimited = -1

// Repository is the profile storage used by Service.
type Repository interface {
	GetQuota(ctx context.Context, userID uuid.UUID) (store.Quota, error)
	IncrementQuotaUsed(ctx context.Context, userID uuid.UUID, n int) error
}

// Service checks and consumes daily rank check quotas.
type Service struct {
	repo Repository
}

// NewService creates a quota service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CheckQuota reports whether userID may spend n more checks today.
func (s *Service) CheckQuota(ctx context.Context, userID uuid.UUID, n int) (bool, error) {
	q, err := s.repo.GetQuota(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check quota: %w", err)
	}
	return Allows(q, n), nil
}

// Allows is the quota rule: unlimited, or used + n within the limit.
func Allows(q store.Quota, n int) bool {
	return q.Limit == Unlimited || q.Used+n <= q.Limit
}

// Consume records n checks for userID. Unlimited users are not counted.
func (s *Service) Consume(ctx context.Context, userID uuid.UUID, n int) error {
	q, err := s.repo.GetQuota(ctx, userID)
	if err != nil {
		return fmt.Errorf("consume quota: %w", err)
	}
	if q.Limit == Unlimited {
		return nil
	}
	if err := s.repo.IncrementQuotaUsed(ctx, userID, n); err != nil {
		return fmt.Errorf("consume quota: %w", err)
	}
	return nil
}

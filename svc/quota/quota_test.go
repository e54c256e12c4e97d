package quota_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/indexnowstudio/jobs/svc/quota"
	"github.com/indexnowstudio/jobs/svc/store"
)

type repoMock struct{ mock.Mock }

func (m *repoMock) GetQuota(ctx context.Context, userID uuid.UUID) (store.Quota, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(store.Quota), args.Error(1)
}

func (m *repoMock) IncrementQuotaUsed(ctx context.Context, userID uuid.UUID, n int) error {
	return m.Called(ctx, userID, n).Error(0)
}

func (m *repoMock) ResetDailyQuotas(ctx context.Context, today time.Time) (int64, error) {
	args := m.Called(ctx, today)
	return args.Get(0).(int64), args.Error(1)
}

func (m *repoMock) ReactivateIntegrations(ctx context.Context, now, next time.Time) (int64, error) {
	args := m.Called(ctx, now, next)
	return args.Get(0).(int64), args.Error(1)
}

func TestCheckQuota(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		quota store.Quota
		n     int
		want  bool
	}{
		{name: "unlimited ignores usage", quota: store.Quota{Used: 1_000_000, Limit: -1}, n: 500, want: true},
		{name: "unlimited with zero usage", quota: store.Quota{Used: 0, Limit: -1}, n: 1, want: true},
		{name: "within limit", quota: store.Quota{Used: 9, Limit: 10}, n: 1, want: true},
		{name: "over limit", quota: store.Quota{Used: 10, Limit: 10}, n: 1, want: false},
		{name: "zero limit", quota: store.Quota{Used: 0, Limit: 0}, n: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := &repoMock{}
			user := uuid.New()
			repo.On("GetQuota", mock.Anything, user).Return(tt.quota, nil)

			ok, err := quota.NewService(repo).CheckQuota(context.Background(), user, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestConsume(t *testing.T) {
	t.Parallel()

	limited, unlimited := uuid.New(), uuid.New()
	repo := &repoMock{}
	repo.On("GetQuota", mock.Anything, limited).Return(store.Quota{Used: 1, Limit: 10}, nil)
	repo.On("GetQuota", mock.Anything, unlimited).Return(store.Quota{Limit: -1}, nil)
	repo.On("IncrementQuotaUsed", mock.Anything, limited, 1).Return(nil).Once()

	svc := quota.NewService(repo)
	require.NoError(t, svc.Consume(context.Background(), limited, 1))
	require.NoError(t, svc.Consume(context.Background(), unlimited, 1))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "IncrementQuotaUsed", mock.Anything, unlimited, mock.Anything)
}

func TestConsume_Error(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	repo := &repoMock{}
	repo.On("GetQuota", mock.Anything, user).Return(store.Quota{}, store.ErrNotFound)

	require.ErrorIs(t, quota.NewService(repo).Consume(context.Background(), user, 1), store.ErrNotFound)
}

func TestMonitor_CheckAndReactivate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	repo := &repoMock{}
	repo.On("ResetDailyQuotas", mock.Anything, today).Return(int64(4), nil)
	repo.On("ReactivateIntegrations", mock.Anything, now, today.AddDate(0, 0, 1)).Return(int64(1), nil)

	res, err := quota.NewMonitor(repo, nil).CheckAndReactivate(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, quota.ReactivationResult{ProfilesReset: 4, IntegrationsReactivated: 1}, res)
	repo.AssertExpectations(t)
}

func TestMonitor_ResetFailure(t *testing.T) {
	t.Parallel()

	repo := &repoMock{}
	repo.On("ResetDailyQuotas", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))

	_, err := quota.NewMonitor(repo, nil).CheckAndReactivate(context.Background(), time.Now())
	require.Error(t, err)
	repo.AssertNotCalled(t, "ReactivateIntegrations", mock.Anything, mock.Anything, mock.Anything)
}

package store_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexnowstudio/jobs/pkg/audit"
	"github.com/indexnowstudio/jobs/svc/store"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) (*store.Repository, pgxmock.PgxPoolIface, *audit.MemoryStorage) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	events := audit.NewMemoryStorage()
	log, err := store.NewAuditLogger(events)
	require.NoError(t, err)

	repo := store.NewRepository(mock, store.NewSecure(log), store.WithClock(func() time.Time { return now }))
	return repo, mock, events
}

func intPtr(v int) *int { return &v }

func TestGetKeyword(t *testing.T) {
	t.Parallel()
	repo, mock, _ := newRepo(t)

	userID, keywordID, domainID := uuid.New(), uuid.New(), uuid.New()
	checked := now.Add(-24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rank_keywords k")).
		WithArgs(keywordID, userID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "domain_id", "keyword", "domain_name",
			"country_code", "device_type", "position", "previous_position", "last_checked",
		}).AddRow(keywordID, userID, domainID, "seo tools", "example.com", "US", "desktop", intPtr(12), (*int)(nil), &checked))

	k, err := repo.GetKeyword(context.Background(), userID, keywordID)
	require.NoError(t, err)
	assert.Equal(t, "seo tools", k.Keyword)
	assert.Equal(t, "example.com", k.Domain)
	require.NotNil(t, k.Position)
	assert.Equal(t, 12, *k.Position)
	assert.Nil(t, k.PreviousPosition)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rank_keywords k")).
		WithArgs(keywordID, userID).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetKeyword(context.Background(), userID, keywordID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateKeywordPosition_Audited(t *testing.T) {
	t.Parallel()
	repo, mock, events := newRepo(t)

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rank_keywords")).
		WithArgs(id, intPtr(3), intPtr(9), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rank_keywords")).
		WithArgs(id, intPtr(3), intPtr(9), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ctx := store.WithActor(context.Background(), "user:"+id.String())
	require.NoError(t, repo.UpdateKeywordPosition(ctx, id, intPtr(3), intPtr(9), now))
	require.ErrorIs(t, repo.UpdateKeywordPosition(ctx, id, intPtr(3), intPtr(9), now), store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())

	got := events.Events()
	require.Len(t, got, 3)
	assert.Equal(t, "keyword.update_position", got[0].Action)
	assert.Equal(t, "user:"+id.String(), got[0].Actor)
	assert.Equal(t, id.String(), got[0].ResourceID)
	assert.Equal(t, audit.ResultSuccess, got[1].Result)
	assert.Equal(t, audit.ResultError, got[2].Result)
}

func TestInsertRankHistory_OnePerDay(t *testing.T) {
	t.Parallel()
	repo, mock, _ := newRepo(t)

	h := store.RankHistory{KeywordID: uuid.New(), CheckDate: now, Position: intPtr(4), URL: "https://example.com", Device: "mobile", CountryCode: "GB"}
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (keyword_id, check_date) DO NOTHING")).
		WithArgs(h.KeywordID, "2026-03-10", h.Position, h.URL, h.Device, "GB", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (keyword_id, check_date) DO NOTHING")).
		WithArgs(h.KeywordID, "2026-03-10", h.Position, h.URL, h.Device, "GB", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := repo.InsertRankHistory(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertRankHistory(context.Background(), h)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStalePendingTransactions(t *testing.T) {
	t.Parallel()
	repo, mock, _ := newRepo(t)

	before := now.Add(-24 * time.Hour)
	id, userID := uuid.New(), uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.status = 'pending' AND t.created_at < $1")).
		WithArgs(before, 500).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "order_id", "package_name", "amount", "currency",
			"status", "email", "full_name", "created_at", "processed_at",
		}).AddRow(id, userID, "ORD-1", "Pro", 49.0, "USD", "pending", "a@example.com", "Ana", before.Add(-time.Hour), (*time.Time)(nil)))

	txs, err := repo.ListStalePendingTransactions(context.Background(), before, 500)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, store.TransactionPending, txs[0].Status)
	assert.Equal(t, "a@example.com", txs[0].CustomerEmail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelTransaction_OnlyPending(t *testing.T) {
	t.Parallel()
	repo, mock, _ := newRepo(t)

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	changed, err := repo.CancelTransaction(context.Background(), id, now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.CancelTransaction(context.Background(), id, now)
	require.NoError(t, err)
	assert.False(t, changed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuota(t *testing.T) {
	t.Parallel()
	repo, mock, _ := newRepo(t)

	userID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT daily_quota_used, daily_quota_limit")).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"daily_quota_used", "daily_quota_limit"}).AddRow(3, -1))
	mock.ExpectExec(regexp.QuoteMeta("SET daily_quota_used = daily_quota_used + $2")).
		WithArgs(userID, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("SET daily_quota_used = 0")).
		WithArgs("2026-03-10").
		WillReturnResult(pgxmock.NewResult("UPDATE", 7))

	q, err := repo.GetQuota(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, store.Quota{Used: 3, Limit: -1}, q)

	require.NoError(t, repo.IncrementQuotaUsed(context.Background(), userID, 1))

	n, err := repo.ResetDailyQuotas(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

type failingStorage struct{}

func (failingStorage) Store(context.Context, ...audit.Event) error { return errors.New("db down") }

func TestSecure_AuditFailureBlocksOperation(t *testing.T) {
	t.Parallel()

	log, err := store.NewAuditLogger(failingStorage{})
	require.NoError(t, err)

	called := false
	err = store.NewSecure(log).Do(context.Background(), store.Operation{Action: "x.y", Resource: "x"}, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestAuditStorage(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	e := audit.Event{
		ID: uuid.New(), Actor: "system:worker", Action: "transaction.cancel",
		Resource: "payment_transactions", ResourceID: "tx", Result: audit.ResultSuccess,
		Metadata: map[string]any{"k": "v"}, CreatedAt: now,
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO job_audit_logs")).
		WithArgs(e.ID, e.Actor, e.Action, e.Resource, e.ResourceID, "", "success", "", []byte(`{"k":"v"}`), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.NewAuditStorage(mock).Store(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

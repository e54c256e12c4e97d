package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/indexnowstudio/jobs/pkg/email"
	"github.com/indexnowstudio/jobs/pkg/queue"
	"github.com/indexnowstudio/jobs/svc/jobs"
	"github.com/indexnowstudio/jobs/svc/enrichment"
	"github.com/indexnowstudio/jobs/svc/quota"
	"github.com/indexnowstudio/jobs/svc/serp"
	"github.com/indexnowstudio/jobs/svc/store"
)

func intPtr(v int) *int { return &v }

type txStore struct {
	mu       sync.Mutex
	txs      map[uuid.UUID]*store.Transaction
	webhooks map[uuid.UUID]json.RawMessage
	listErr  error
	failOn   map[uuid.UUID]bool
	calls    int
}

func newTxStore(txs ...store.Transaction) *txStore {
	s := &txStore{
		txs:      make(map[uuid.UUID]*store.Transaction),
		webhooks: make(map[uuid.UUID]json.RawMessage),
		failOn:   make(map[uuid.UUID]bool),
	}
	for _, tx := range txs {
		s.txs[tx.ID] = &tx
	}
	return s
}

func (s *txStore) status(id uuid.UUID) store.TransactionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[id].Status
}

func (s *txStore) GetTransaction(_ context.Context, id uuid.UUID) (*store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	tx, ok := s.txs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *txStore) ListStalePendingTransactions(_ context.Context, createdBefore time.Time, limit int) ([]store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []store.Transaction
	for _, tx := range s.txs {
		if tx.Status == store.TransactionPending && tx.CreatedAt.Before(createdBefore) {
			out = append(out, *tx)
		}
	}
	slices.SortFunc(out, func(a, b store.Transaction) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *txStore) CancelTransaction(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failOn[id] {
		return false, errors.New("connection reset")
	}
	tx, ok := s.txs[id]
	if !ok || tx.Status != store.TransactionPending {
		return false, nil
	}
	tx.Status = store.TransactionCancelled
	tx.ProcessedAt = &at
	return true, nil
}

func (s *txStore) ApplyPaymentStatus(_ context.Context, id uuid.UUID, status store.TransactionStatus, webhook json.RawMessage, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	tx, ok := s.txs[id]
	if !ok || tx.Status != store.TransactionPending {
		return false, nil
	}
	tx.Status = status
	tx.ProcessedAt = &at
	s.webhooks[id] = webhook
	return true, nil
}

func (s *txStore) AttachWebhookPayload(_ context.Context, id uuid.UUID, webhook json.RawMessage, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.webhooks[id] = webhook
	return nil
}

func (s *txStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func pendingTx(age time.Duration, email string) store.Transaction {
	return store.Transaction{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		OrderID:       "ORD-" + uuid.NewString()[:8],
		PackageName:   "Pro",
		Amount:        49,
		Currency:      "USD",
		Status:        store.TransactionPending,
		CustomerEmail: email,
		CustomerName:  "Jane",
		CreatedAt:     time.Now().UTC().Add(-age),
	}
}

type sentEmails struct {
	mu     sync.Mutex
	sent   []email.SendEmailParams
	failTo map[string]bool
}

func newSender() *sentEmails {
	return &sentEmails{failTo: make(map[string]bool)}
}

func (s *sentEmails) SendEmail(_ context.Context, p email.SendEmailParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTo[p.SendTo] {
		return email.ErrFailedToSendEmail
	}
	s.sent = append(s.sent, p)
	return nil
}

func (s *sentEmails) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type keywordStore struct {
	mu        sync.Mutex
	keywords  map[uuid.UUID]*store.Keyword
	history   map[string]store.RankHistory
	updates   int
	historyOK int
	// failHistory makes the next n history inserts fail.
	failHistory int
}

func newKeywordStore(kws ...store.Keyword) *keywordStore {
	s := &keywordStore{keywords: make(map[uuid.UUID]*store.Keyword), history: make(map[string]store.RankHistory)}
	for _, kw := range kws {
		s.keywords[kw.ID] = &kw
	}
	return s
}

func (s *keywordStore) GetKeyword(_ context.Context, userID, keywordID uuid.UUID) (*store.Keyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kw, ok := s.keywords[keywordID]
	if !ok || kw.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *kw
	return &cp, nil
}

func (s *keywordStore) UpdateKeywordPosition(_ context.Context, keywordID uuid.UUID, position, previous *int, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	kw := s.keywords[keywordID]
	kw.Position = position
	kw.PreviousPosition = previous
	kw.LastChecked = &checkedAt
	return nil
}

func (s *keywordStore) InsertRankHistory(_ context.Context, h store.RankHistory) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHistory > 0 {
		s.failHistory--
		return false, errors.New("history insert timed out")
	}
	key := h.KeywordID.String() + "|" + h.CheckDate.Format(time.DateOnly)
	if _, ok := s.history[key]; ok {
		return false, nil
	}
	s.history[key] = h
	s.historyOK++
	return true, nil
}

func (s *keywordStore) historyRows() []store.RankHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]store.RankHistory, 0, len(s.history))
	for _, h := range s.history {
		rows = append(rows, h)
	}
	return rows
}

func (s *keywordStore) keyword(id uuid.UUID) store.Keyword {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.keywords[id]
}

type rankChecker struct {
	mu       sync.Mutex
	position *int
	// sequence, when set, answers call n with sequence[n], repeating the last.
	sequence []*int
	err      error
	calls    int
}

func (c *rankChecker) CheckRank(_ context.Context, q serp.RankQuery) (*serp.RankResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	position := c.position
	if len(c.sequence) > 0 {
		position = c.sequence[min(c.calls, len(c.sequence))-1]
	}
	return &serp.RankResult{Position: position, URL: "https://" + q.Domain + "/"}, nil
}

func (c *rankChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type profiles struct {
	mu     sync.Mutex
	quotas map[uuid.UUID]store.Quota
	incs   int
}

func (p *profiles) GetQuota(_ context.Context, userID uuid.UUID) (store.Quota, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.quotas[userID]
	if !ok {
		return store.Quota{}, store.ErrNotFound
	}
	return q, nil
}

func (p *profiles) IncrementQuotaUsed(_ context.Context, userID uuid.UUID, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.incs++
	q := p.quotas[userID]
	q.Used += n
	p.quotas[userID] = q
	return nil
}

func (p *profiles) quota(userID uuid.UUID) store.Quota {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quotas[userID]
}

func (p *profiles) increments() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.incs
}

type quotaMonitor struct {
	mu    sync.Mutex
	calls int
}

func (m *quotaMonitor) CheckAndReactivate(context.Context, time.Time) (quota.ReactivationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return quota.ReactivationResult{ProfilesReset: 2}, nil
}

type enrichmentRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *enrichmentRunner) Run(context.Context) (enrichment.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return enrichment.Result{Found: 1, Enriched: 1}, nil
}

// emailQueue records queued emails without deduplicating them.
type emailQueue struct {
	mu     sync.Mutex
	queued []jobs.EmailPayload
	// failNext makes the next n adds fail.
	failNext int
}

func (q *emailQueue) Add(_ context.Context, payload any, _ ...queue.EnqueueOption) (*queue.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failNext > 0 {
		q.failNext--
		return nil, errors.New("queue unavailable")
	}
	q.queued = append(q.queued, payload.(jobs.EmailPayload))
	return &queue.Task{ID: uuid.New()}, nil
}

func (q *emailQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/indexnowstudio/jobs/pkg/email/templates"
	"github.com/indexnowstudio/jobs/pkg/logger"
	"github.com/indexnowstudio/jobs/pkg/queue"
	"github.com/indexnowstudio/jobs/svc/store"
)

// TransactionStore is the payment transaction storage used by the
// auto-cancel sweep and the payment webhook worker.
type TransactionStore interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*store.Transaction, error)
	ListStalePendingTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]store.Transaction, error)
	CancelTransaction(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ApplyPaymentStatus(ctx context.Context, id uuid.UUID, status store.TransactionStatus, webhook json.RawMessage, at time.Time) (bool, error)
	AttachWebhookPayload(ctx context.Context, id uuid.UUID, webhook json.RawMessage, at time.Time) error
}

// EmailNotifier sends one templated email.
type EmailNotifier interface {
	Send(ctx context.Context, p EmailPayload) error
}

// AutoCancelResult is stored with the completed sweep task. Skipped counts
// transactions that stopped being pending between selection and update.
type AutoCancelResult struct {
	SuccessCount int `json:"successCount"`
	ErrorCount   int `json:"errorCount"`
	SkippedCount int `json:"skippedCount,omitempty"`
	TotalFound   int `json:"totalFound"`
}

// AutoCancelWorker cancels payment transactions left pending for too long.
type AutoCancelWorker struct {
	txs      TransactionStore
	notifier EmailNotifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewAutoCancelWorker creates the auto-cancel sweep worker.
func NewAutoCancelWorker(txs TransactionStore, notifier EmailNotifier, log *slog.Logger) *AutoCancelWorker {
	if log == nil {
		log = slog.Default()
	}
	return &AutoCancelWorker{txs: txs, notifier: notifier, now: time.Now, logger: log.With(logger.Component("auto-cancel"))}
}

// Handle cancels at most 500 transactions pending for more than 24 hours,
// the oldest first, and emails each customer. A failed cancellation or email
// is counted and the sweep moves on; only the initial query fails the run.
func (w *AutoCancelWorker) Handle(ctx context.Context, _ AutoCancelSweep) (AutoCancelResult, error) {
	ctx = store.WithActor(ctx, actorAutoCancel)
	now := w.now().UTC()

	txs, err := w.txs.ListStalePendingTransactions(ctx, now.Add(-autoCancelPendingDeadline), autoCancelBatchSize)
	if err != nil {
		return AutoCancelResult{}, fmt.Errorf("list expired transactions: %w", err)
	}

	res := AutoCancelResult{TotalFound: len(txs)}
	for _, tx := range txs {
		switch err := w.cancel(ctx, tx, now); {
		case errors.Is(err, errNotPending):
			res.SkippedCount++
		case err != nil:
			res.ErrorCount++
			w.logger.ErrorContext(ctx, "failed to auto-cancel transaction",
				logger.TransactionID(tx.ID), logger.Error(err))
		default:
			res.SuccessCount++
		}
	}

	w.logger.InfoContext(ctx, "auto-cancel sweep finished",
		slog.Int("total_found", res.TotalFound),
		slog.Int("success", res.SuccessCount),
		slog.Int("errors", res.ErrorCount),
		slog.Int("skipped", res.SkippedCount))
	return res, nil
}

var errNotPending = errors.New("transaction is no longer pending")

// cancel marks tx cancelled, then notifies the customer. The cancellation
// stands even when the email fails.
func (w *AutoCancelWorker) cancel(ctx context.Context, tx store.Transaction, now time.Time) error {
	changed, err := w.txs.CancelTransaction(ctx, tx.ID, now)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	if !changed {
		return errNotPending
	}

	err = w.notifier.Send(ctx, EmailPayload{
		To:       tx.CustomerEmail,
		Subject:  "Your order " + tx.OrderID + " has expired",
		Template: templates.OrderExpired,
		Data: map[string]any{
			"customer_name": tx.CustomerName,
			"order_id":      tx.OrderID,
			"package_name":  tx.PackageName,
		},
	})
	if err != nil {
		return fmt.Errorf("notify %s: %w", tx.CustomerEmail, err)
	}
	return nil
}

// autoCancelHandler guards the sweep with the advisory lock, held for at
// most the worker's lock timeout.
func autoCancelHandler(w *AutoCancelWorker, locker queue.Locker, log *slog.Logger) queue.Handler {
	return queue.Exclusive(locker, lockAutoCancel, 0, queue.NewResultTaskHandler(w.Handle), log)
}

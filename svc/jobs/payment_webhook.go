package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/indexnowstudio/jobs/pkg/email/templates"
	"github.com/indexnowstudio/jobs/pkg/logger"
	"github.com/indexnowstudio/jobs/pkg/queue"
	"github.com/indexnowstudio/jobs/svc/store"
)

// TaskQueue enqueues follow-up tasks. *queue.Queue implements it.
type TaskQueue interface {
	Add(ctx context.Context, payload any, opts ...queue.EnqueueOption) (*queue.Task, error)
}

// PaymentWebhookResult is stored with the completed task.
type PaymentWebhookResult struct {
	Status  store.TransactionStatus `json:"status"`
	Changed bool                    `json:"changed"`
}

const (
	stepPaymentStatus = "status"
	stepPaymentNotify = "notify"
)

// PaymentWebhookWorker reconciles payment gateway notifications with the
// transaction they belong to.
type PaymentWebhookWorker struct {
	txs         TransactionStore
	emails      TaskQueue
	checkpoints queue.Checkpoints
	now         func() time.Time
	logger      *slog.Logger
}

// NewPaymentWebhookWorker creates a worker that queues follow-up emails on
// emails. Checkpoints may be nil.
func NewPaymentWebhookWorker(txs TransactionStore, emails TaskQueue, checkpoints queue.Checkpoints, log *slog.Logger) *PaymentWebhookWorker {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentWebhookWorker{
		txs:         txs,
		emails:      emails,
		checkpoints: checkpoints,
		now:         time.Now,
		logger:      log.With(logger.Component("payment-webhook")),
	}
}

// gatewayStatus maps a gateway status onto the transaction lifecycle.
// pending means no transition.
func gatewayStatus(s string) store.TransactionStatus {
	switch strings.ToLower(s) {
	case "settlement", "completed":
		return store.TransactionCompleted
	case "failed":
		return store.TransactionFailed
	case "cancelled", "expired":
		return store.TransactionCancelled
	default:
		return store.TransactionPending
	}
}

// Handle applies the webhook status to a pending transaction. Terminal
// transactions never change. The webhook that completes a transaction
// queues its payment_received email; redeliveries do not.
func (w *PaymentWebhookWorker) Handle(ctx context.Context, p PaymentWebhookPayload) (PaymentWebhookResult, error) {
	ctx = store.WithActor(ctx, actorPaymentWebhook)
	now := w.now().UTC()

	tx, err := w.txs.GetTransaction(ctx, p.TransactionID)
	if errors.Is(err, store.ErrNotFound) {
		return PaymentWebhookResult{}, queue.Permanent(fmt.Errorf("%w: %s", ErrTransactionNotFound, p.TransactionID))
	}
	if err != nil {
		return PaymentWebhookResult{}, err
	}

	target := gatewayStatus(p.Status)
	if target == store.TransactionPending {
		if err := w.txs.AttachWebhookPayload(ctx, tx.ID, p.RawPayload, now); err != nil {
			return PaymentWebhookResult{}, err
		}
		return PaymentWebhookResult{Status: tx.Status}, nil
	}

	res, err := queue.StepResult(ctx, w.checkpoints, stepPaymentStatus, func(ctx context.Context) (PaymentWebhookResult, error) {
		res := PaymentWebhookResult{Status: tx.Status}
		if tx.Status != store.TransactionPending {
			w.logger.InfoContext(ctx, "transaction already final, webhook ignored",
				logger.TransactionID(tx.ID),
				slog.String("current", string(tx.Status)),
				slog.String("requested", string(target)))
			return res, nil
		}
		changed, err := w.txs.ApplyPaymentStatus(ctx, tx.ID, target, p.RawPayload, now)
		if err != nil {
			return PaymentWebhookResult{}, err
		}
		if changed {
			res.Changed = true
			res.Status = target
		}
		return res, nil
	})
	if err != nil {
		return PaymentWebhookResult{}, err
	}

	// Only the delivery that completed the transaction notifies. A retry
	// gets its result back from the checkpoint.
	if !res.Changed || res.Status != store.TransactionCompleted {
		return res, nil
	}

	err = queue.Step(ctx, w.checkpoints, stepPaymentNotify, func(ctx context.Context) error {
		_, err := w.emails.Add(ctx, EmailPayload{
			To:       tx.CustomerEmail,
			Subject:  "Payment received for order " + tx.OrderID,
			Template: templates.PaymentReceived,
			Data: map[string]any{
				"customer_name": tx.CustomerName,
				"order_id":      tx.OrderID,
				"amount":        fmt.Sprintf("%.2f", tx.Amount),
				"currency":      tx.Currency,
			},
		}, queue.WithJobID("payment-received:"+tx.ID.String()))
		return err
	})
	if err != nil {
		return PaymentWebhookResult{}, fmt.Errorf("queue payment email: %w", err)
	}
	return res, nil
}

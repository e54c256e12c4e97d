package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionStatus is the lifecycle state of a payment transaction.
// pending is the only non-terminal state.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

// Transaction is a payment transaction with the customer's contact details.
type Transaction struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	OrderID       string
	PackageName   string
	Amount        float64
	Currency      string
	Status        TransactionStatus
	CustomerEmail string
	CustomerName  string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

const transactionColumns = `t.id, t.user_id, t.order_id, t.package_name, t.amount, t.currency,
	t.status, p.email, p.full_name, t.created_at, t.processed_at
FROM payment_transactions t
JOIN user_profiles p ON p.user_id = t.user_id`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var status string
	err := row.Scan(&t.ID, &t.UserID, &t.OrderID, &t.PackageName, &t.Amount, &t.Currency,
		&status, &t.CustomerEmail, &t.CustomerName, &t.CreatedAt, &t.ProcessedAt)
	t.Status = TransactionStatus(status)
	return t, err
}

func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, "SELECT "+transactionColumns+" WHERE t.id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, notFound(err))
	}
	return &t, nil
}

// ListStalePendingTransactions returns up to limit pending transactions
// created before createdBefore, the oldest first.
func (r *Repository) ListStalePendingTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, "SELECT "+transactionColumns+`
WHERE t.status = 'pending' AND t.created_at < $1
ORDER BY t.created_at ASC
LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending transactions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Transaction, error) {
		return scanTransaction(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan stale pending transactions: %w", err)
	}
	return out, nil
}

const cancelTransaction = `UPDATE payment_transactions
SET status = 'cancelled', processed_at = $2, updated_at = $2
WHERE id = $1 AND status = 'pending'`

// CancelTransaction moves a pending transaction to cancelled. It reports
// false and changes nothing when the transaction is no longer pending.
func (r *Repository) CancelTransaction(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	var changed bool
	op := Operation{Action: "transaction.cancel", Resource: "payment_transactions", ResourceID: id.String(), Reason: "pending for more than 24 hours"}
	err := r.secure.Do(ctx, op, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, cancelTransaction, id, at)
		if err != nil {
			return fmt.Errorf("cancel transaction: %w", err)
		}
		changed = tag.RowsAffected() > 0
		return nil
	})
	return changed, err
}

const applyPaymentStatus = `UPDATE payment_transactions
SET status = $2, processed_at = $3, updated_at = $3,
	metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('last_webhook', $4::jsonb)
WHERE id = $1 AND status = 'pending'`

// ApplyPaymentStatus moves a pending transaction to a terminal status and
// keeps the webhook payload in its metadata. Terminal transactions are left
// untouched and false is returned.
func (r *Repository) ApplyPaymentStatus(ctx context.Context, id uuid.UUID, status TransactionStatus, webhook json.RawMessage, at time.Time) (bool, error) {
	var changed bool
	op := Operation{Action: "transaction." + string(status), Resource: "payment_transactions", ResourceID: id.String(), Reason: "payment webhook"}
	err := r.secure.Do(ctx, op, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, applyPaymentStatus, id, string(status), at, string(webhook))
		if err != nil {
			return fmt.Errorf("apply payment status: %w", err)
		}
		changed = tag.RowsAffected() > 0
		return nil
	})
	return changed, err
}

const attachWebhook = `UPDATE payment_transactions
SET metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('last_webhook', $2::jsonb), updated_at = $3
WHERE id = $1`

// AttachWebhookPayload only records the webhook payload.
func (r *Repository) AttachWebhookPayload(ctx context.Context, id uuid.UUID, webhook json.RawMessage, at time.Time) error {
	op := Operation{Action: "transaction.webhook", Resource: "payment_transactions", ResourceID: id.String(), Reason: "payment webhook"}
	return r.secure.Do(ctx, op, func(ctx context.Context) error {
		if _, err := r.db.Exec(ctx, attachWebhook, id, string(webhook), at); err != nil {
			return fmt.Errorf("attach webhook payload: %w", err)
		}
		return nil
	})
}

package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/indexnowstudio/jobs/pkg/queue"
)

// Producer is the enqueue API for request handlers. Payloads are validated
// before anything is stored, so a caller sees validation errors directly.
type Producer struct {
	queues map[string]TaskQueue
}

// QueueProvider hands out queue handles. *queue.Registry implements it.
type QueueProvider interface {
	GetQueue(name string) *queue.Queue
}

// NewProducer creates a Producer that enqueues onto reg's queues.
func NewProducer(reg QueueProvider) *Producer {
	p := &Producer{queues: make(map[string]TaskQueue)}
	for _, name := range []string{QueueRankCheck, QueueEmail, QueuePaymentWebhook} {
		p.queues[name] = reg.GetQueue(name)
	}
	return p
}

func (p *Producer) add(ctx context.Context, queueName string, payload queue.Validatable, opts ...queue.EnqueueOption) (*queue.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	task, err := p.queues[queueName].Add(ctx, payload, opts...)
	if err != nil {
		return nil, fmt.Errorf("enqueue on %s: %w", queueName, err)
	}
	return task, nil
}

// EnqueueRankCheck validates and enqueues a rank check.
func (p *Producer) EnqueueRankCheck(ctx context.Context, payload RankCheckPayload, opts ...queue.EnqueueOption) (*queue.Task, error) {
	return p.add(ctx, QueueRankCheck, payload, opts...)
}

// EnqueueEmail validates and enqueues one templated email.
func (p *Producer) EnqueueEmail(ctx context.Context, payload EmailPayload, opts ...queue.EnqueueOption) (*queue.Task, error) {
	return p.add(ctx, QueueEmail, payload, opts...)
}

// EnqueuePaymentWebhook queues a webhook for reconciliation. Gateways
// resend notifications, so one task per transaction and status is kept.
func (p *Producer) EnqueuePaymentWebhook(ctx context.Context, payload PaymentWebhookPayload, opts ...queue.EnqueueOption) (*queue.Task, error) {
	jobID := fmt.Sprintf("payment-webhook:%s:%s", payload.TransactionID, strings.ToLower(payload.Status))
	opts = append([]queue.EnqueueOption{queue.WithJobID(jobID), queue.WithPriority(queue.PriorityHigh)}, opts...)
	return p.add(ctx, QueuePaymentWebhook, payload, opts...)
}

package jobs_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexnowstudio/jobs/pkg/queue"
	"github.com/indexnowstudio/jobs/pkg/validator"
	"github.com/indexnowstudio/jobs/svc/jobs"
)

func TestProducer_RejectsInvalidPayloads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, err := queue.NewRegistry(queue.NewMemoryStorage())
	require.NoError(t, err)
	p := jobs.NewProducer(reg)

	_, err = p.EnqueueEmail(ctx, jobs.EmailPayload{To: "not-an-email", Subject: "x", Template: "quota_reset"})
	require.Error(t, err)
	assert.True(t, validator.IsValidationError(err))

	stats, err := reg.GetQueue(jobs.QueueEmail).Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestProducer_DeduplicatesWebhooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, err := queue.NewRegistry(queue.NewMemoryStorage())
	require.NoError(t, err)
	p := jobs.NewProducer(reg)

	payload := jobs.PaymentWebhookPayload{
		TransactionID: uuid.New(),
		Status:        "settlement",
		PaymentType:   "card",
		RawPayload:    json.RawMessage(`{}`),
	}
	first, err := p.EnqueuePaymentWebhook(ctx, payload)
	require.NoError(t, err)
	second, err := p.EnqueuePaymentWebhook(ctx, payload)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, queue.PriorityHigh, first.Priority)
	assert.Equal(t, jobs.TaskPaymentWebhook, first.TaskName)
}

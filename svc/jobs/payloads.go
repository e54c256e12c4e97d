package jobs

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/indexnowstudio/jobs/pkg/email/templates"
	"github.com/indexnowstudio/jobs/pkg/validator"
)

// Task names.
const (
	TaskRankCheck         = "rank.check"
	TaskSendEmail         = "email.send"
	TaskPaymentWebhook    = "payment.webhook"
	TaskAutoCancelSweep   = "sweep.auto_cancel"
	TaskKeywordEnrichment = "sweep.keyword_enrichment"
	TaskQuotaReset        = "sweep.quota_reset"
)

var (
	devices         = []string{"desktop", "mobile", "tablet"}
	webhookStatuses = []string{"pending", "settlement", "completed", "failed", "cancelled", "expired"}
)

// RankCheckPayload asks for a fresh position of one tracked keyword.
type RankCheckPayload struct {
	KeywordID   uuid.UUID `json:"keyword_id"`
	UserID      uuid.UUID `json:"user_id"`
	DomainID    uuid.UUID `json:"domain_id"`
	Keyword     string    `json:"keyword"`
	CountryCode string    `json:"country_code"`
	Device      string    `json:"device"`
}

func (RankCheckPayload) TaskName() string { return TaskRankCheck }

func (p RankCheckPayload) Validate() error {
	return validator.Apply(
		validator.RequiredUUID("keyword_id", p.KeywordID),
		validator.RequiredUUID("user_id", p.UserID),
		validator.RequiredUUID("domain_id", p.DomainID),
		validator.RequiredString("keyword", p.Keyword),
		validator.MaxLenString("keyword", p.Keyword, 255),
		validator.ValidCountryCode("country_code", p.CountryCode),
		validator.InListString("device", p.Device, devices),
	)
}

// EmailPayload is one templated email.
type EmailPayload struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data,omitempty"`
}

func (EmailPayload) TaskName() string { return TaskSendEmail }

func (p EmailPayload) Validate() error {
	return validator.Apply(
		validator.ValidEmail("to", p.To),
		validator.RequiredString("subject", p.Subject),
		validator.MaxLenString("subject", p.Subject, 200),
		validator.InListString("template", p.Template, templates.Names()),
	)
}

// PaymentWebhookPayload is a payment gateway notification to reconcile.
type PaymentWebhookPayload struct {
	OrderID       string          `json:"order_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Status        string          `json:"status"`
	PaymentType   string          `json:"payment_type"`
	RawPayload    json.RawMessage `json:"raw_payload"`
}

func (PaymentWebhookPayload) TaskName() string { return TaskPaymentWebhook }

func (p PaymentWebhookPayload) Validate() error {
	return validator.Apply(
		validator.RequiredUUID("transaction_id", p.TransactionID),
		validator.InListString("status", strings.ToLower(p.Status), webhookStatuses),
		validator.RequiredString("payment_type", p.PaymentType),
		validator.JSONObject("raw_payload", p.RawPayload),
	)
}

// sweepTrigger is the payload the scheduler attaches to sweep ticks.
type sweepTrigger struct {
	RepeatKey    string    `json:"repeat_key"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (t sweepTrigger) validate() error {
	return validator.Apply(validator.RequiredTime("scheduled_for", t.ScheduledFor))
}

// AutoCancelSweep triggers one auto-cancel pass.
type AutoCancelSweep sweepTrigger

func (AutoCancelSweep) TaskName() string { return TaskAutoCancelSweep }
func (s AutoCancelSweep) Validate() error { return sweepTrigger(s).validate() }

// KeywordEnrichmentSweep triggers one enrichment batch.
type KeywordEnrichmentSweep sweepTrigger

func (KeywordEnrichmentSweep) TaskName() string { return TaskKeywordEnrichment }
func (s KeywordEnrichmentSweep) Validate() error { return sweepTrigger(s).validate() }

// QuotaResetSweep triggers one quota reactivation check.
type QuotaResetSweep sweepTrigger

func (QuotaResetSweep) TaskName() string { return TaskQuotaReset }
func (s QuotaResetSweep) Validate() error { return sweepTrigger(s).validate() }

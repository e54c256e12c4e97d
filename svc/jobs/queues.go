package jobs

import "time"

// Queue names.
const (
	QueueRankCheck         = "rank-check"
	QueueEmail             = "email"
	QueuePaymentWebhook    = "payment-webhook"
	QueueAutoCancel        = "auto-cancel"
	QueueKeywordEnrichment = "keyword-enrichment"
	QueueQuotaReset        = "quota-reset"
)

// Repeatable registrations.
const (
	RepeatAutoCancel          = "auto-cancel-expired-transactions"
	RepeatKeywordEnrichment   = "keyword-enrichment-sweep"
	RepeatQuotaResetHourly    = "quota-reset-hourly"
	RepeatQuotaResetMidnight  = "quota-reset-midnight"
	patternHourly             = "0 * * * *"
	patternHalfPast           = "30 * * * *"
	patternFivePast           = "5 * * * *"
	patternMidnightWindow     = "*/15 23,0 * * *"
	lockAutoCancel            = "sweep:auto-cancel"
	lockQuotaReset            = "sweep:quota-reset"
	lockKeywordEnrichment     = "sweep:keyword-enrichment"
	autoCancelBatchSize       = 500
	autoCancelPendingDeadline = 24 * time.Hour
)

// Actors recorded in the audit trail for system initiated writes.
const (
	actorAutoCancel     = "system:auto-cancel"
	actorPaymentWebhook = "system:payment-webhook"
	actorQuotaReset     = "system:quota-reset"
	actorEnrichment     = "system:keyword-enrichment"
)

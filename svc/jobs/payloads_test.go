package jobs_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/indexnowstudio/jobs/pkg/validator"
	"github.com/indexnowstudio/jobs/svc/jobs"
)

func TestRankCheckPayload_Validate(t *testing.T) {
	t.Parallel()

	valid := jobs.RankCheckPayload{
		KeywordID:   uuid.New(),
		UserID:      uuid.New(),
		DomainID:    uuid.New(),
		Keyword:     "rank tracker",
		CountryCode: "ID",
		Device:      "mobile",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*jobs.RankCheckPayload)
		field  string
	}{
		{"missing keyword id", func(p *jobs.RankCheckPayload) { p.KeywordID = uuid.Nil }, "keyword_id"},
		{"blank keyword", func(p *jobs.RankCheckPayload) { p.Keyword = "  " }, "keyword"},
		{"lower case country", func(p *jobs.RankCheckPayload) { p.CountryCode = "id" }, "country_code"},
		{"country name", func(p *jobs.RankCheckPayload) { p.CountryCode = "Indonesia" }, "country_code"},
		{"unknown device", func(p *jobs.RankCheckPayload) { p.Device = "tv" }, "device"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := valid
			tt.mutate(&p)
			errs := validator.ExtractValidationErrors(p.Validate())
			assert.True(t, errs.Has(tt.field), "expected error on %s, got %v", tt.field, errs)
		})
	}
}

func TestEmailPayload_Validate(t *testing.T) {
	t.Parallel()

	valid := jobs.EmailPayload{To: "jane@example.com", Subject: "Welcome", Template: "quota_reset"}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.To = "Jane <jane@example.com>"
	assert.True(t, validator.ExtractValidationErrors(bad.Validate()).Has("to"))

	bad = valid
	bad.Template = "newsletter"
	assert.True(t, validator.ExtractValidationErrors(bad.Validate()).Has("template"))

	bad = valid
	bad.Subject = string(make([]byte, 201))
	assert.True(t, validator.ExtractValidationErrors(bad.Validate()).Has("subject"))
}

func TestPaymentWebhookPayload_Validate(t *testing.T) {
	t.Parallel()

	valid := jobs.PaymentWebhookPayload{
		TransactionID: uuid.New(),
		Status:        "SETTLEMENT",
		PaymentType:   "bank_transfer",
		RawPayload:    json.RawMessage(`{"a":1}`),
	}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.Status = "refunded"
	assert.True(t, validator.ExtractValidationErrors(bad.Validate()).Has("status"))

	bad = valid
	bad.RawPayload = json.RawMessage(`[1,2]`)
	assert.True(t, validator.ExtractValidationErrors(bad.Validate()).Has("raw_payload"))
}

func TestSweepTriggers_RequireScheduledFor(t *testing.T) {
	t.Parallel()

	assert.Error(t, jobs.AutoCancelSweep{}.Validate())
	assert.Error(t, jobs.QuotaResetSweep{RepeatKey: jobs.RepeatQuotaResetHourly}.Validate())
	assert.NoError(t, jobs.KeywordEnrichmentSweep{ScheduledFor: time.Now()}.Validate())
}

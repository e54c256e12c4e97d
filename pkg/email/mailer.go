package email

import (
	"context"
	"errors"

	"github.com/indexnowstudio/jobs/pkg/validator"
)

// EmailSender delivers one rendered email.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams represents the parameters for sending an email.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"`
}

// Validate checks the recipient, subject and body.
func (p SendEmailParams) Validate() error {
	err := validator.Apply(
		validator.RequiredString("send_to", p.SendTo),
		validator.ValidEmail("send_to", p.SendTo),
		validator.RequiredString("subject", p.Subject),
		validator.RequiredString("body_html", p.BodyHTML),
	)
	if err != nil {
		return errors.Join(ErrInvalidParams, err)
	}
	return nil
}

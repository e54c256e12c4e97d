package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/indexnowstudio/jobs/pkg/email"
	"github.com/indexnowstudio/jobs/pkg/email/templates"
	"github.com/indexnowstudio/jobs/pkg/queue"
)

// Notifier renders an email template and sends it.
type Notifier struct {
	sender  email.EmailSender
	timeout time.Duration
}

// NewNotifier creates a Notifier. A positive timeout bounds each send.
func NewNotifier(sender email.EmailSender, timeout time.Duration) *Notifier {
	return &Notifier{sender: sender, timeout: timeout}
}

// Send delivers p. An unknown template is a permanent failure.
func (n *Notifier) Send(ctx context.Context, p EmailPayload) error {
	tpl, ok := templates.Lookup(p.Template, templates.Data(p.Data))
	if !ok {
		return queue.Permanent(fmt.Errorf("%w: %q", email.ErrUnknownTemplate, p.Template))
	}
	html, err := templates.Render(ctx, tpl)
	if err != nil {
		return queue.Permanent(fmt.Errorf("render %s: %w", p.Template, err))
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	return n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   p.To,
		Subject:  p.Subject,
		BodyHTML: html,
		Tag:      p.Template,
	})
}

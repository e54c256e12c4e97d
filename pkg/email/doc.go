// Package email sends transactional emails through Postmark, or writes them
// to disk with DevSender when no Postmark credentials are configured.
// Message bodies are templ components from the templates subpackage.
//
//	tpl, _ := templates.Lookup(templates.OrderExpired, templates.Data{"order_id": id})
//	html, err := templates.Render(ctx, tpl)
//	...
//	err = sender.SendEmail(ctx, email.SendEmailParams{SendTo: to, Subject: "Order expired", BodyHTML: html})
package email

package email

// Config holds email service configuration. Without Postmark tokens the
// worker falls back to DevSender writing into DevOutputDir.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"noreply@indexnow.studio"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@indexnow.studio"`
	DevOutputDir         string `env:"EMAIL_DEV_OUTPUT_DIR" envDefault:"./tmp/emails"`
}

// HasPostmark reports whether Postmark credentials are configured.
func (c Config) HasPostmark() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}

package serp

import "time"

type Config struct {
	BaseURL string        `env:"SERP_API_URL" envDefault:"https://api.serp.indexnow.studio"`
	APIKey  string        `env:"SERP_API_KEY"`
	Timeout time.Duration `env:"SERP_TIMEOUT" envDefault:"60s"`
}

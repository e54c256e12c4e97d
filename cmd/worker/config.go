package main

import (
	"github.com/indexnowstudio/jobs/pkg/email"
	"github.com/indexnowstudio/jobs/pkg/httpserver"
	"github.com/indexnowstudio/jobs/pkg/pg"
	"github.com/indexnowstudio/jobs/pkg/queue"
	"github.com/indexnowstudio/jobs/pkg/redis"
	"github.com/indexnowstudio/jobs/svc/jobs"
	"github.com/indexnowstudio/jobs/svc/serp"
)

type appConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"SERVICE_NAME" envDefault:"indexnow-jobs"`

	Postgres pg.Config
	Redis    redis.Config
	Email    email.Config
	Queue    queue.Config
	Jobs     jobs.Config
	SERP     serp.Config
	Ops      httpserver.Config
}

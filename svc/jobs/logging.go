package jobs

import (
	"context"
	"log/slog"

	"github.com/indexnowstudio/jobs/pkg/logger"
	"github.com/indexnowstudio/jobs/pkg/queue"
)

// LogExtractors add the task being processed to every log record written
// with a handler context.
func LogExtractors() []logger.ContextExtractor {
	return []logger.ContextExtractor{
		func(ctx context.Context) (slog.Attr, bool) {
			id, ok := queue.TaskIDFromContext(ctx)
			return logger.TaskID(id.String()), ok
		},
		func(ctx context.Context) (slog.Attr, bool) {
			attempt, _, ok := queue.AttemptFromContext(ctx)
			return logger.Attempt(attempt), ok
		},
	}
}

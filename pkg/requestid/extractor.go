package requestid

import (
	"context"
	"log/slog"

	"github.com/indexnowstudio/jobs/pkg/logger"
)

// LoggerExtractor adds request_id to log records of requests that have one.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := FromContext(ctx); id != "" {
			return logger.RequestID(id), true
		}
		return slog.Attr{}, false
	}
}

// Package logger builds log/slog loggers for the worker process and offers
// attribute helpers so that the same keys are used everywhere.
//
//	log := logger.New(
//		logger.WithEnvironment(environment.Production, "indexnow-jobs"),
//		logger.WithContextExtractors(environment.LoggerExtractor()),
//	)
//	log.ErrorContext(ctx, "rank check failed", logger.KeywordID(id), logger.Error(err))
package logger

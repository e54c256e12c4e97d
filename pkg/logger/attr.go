package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// UserID records the user identifier under the key "user_id".
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

func KeywordID(id any) slog.Attr {
	return slog.Any("keyword_id", id)
}

func TransactionID(id any) slog.Attr {
	return slog.Any("transaction_id", id)
}

func TaskID(id any) slog.Attr {
	return slog.Any("task_id", id)
}

func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

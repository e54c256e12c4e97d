package queue

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule determines when a periodic task should run
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a standard five-field cron pattern ("0 * * * *") or a
// descriptor such as "@hourly". Times are evaluated in UTC.
func ParseCron(pattern string) (Schedule, error) {
	s, err := cronParser.Parse(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, pattern, err)
	}
	return cronSchedule{pattern: pattern, s: s}, nil
}

type cronSchedule struct {
	pattern string
	s       cron.Schedule
}

func (s cronSchedule) Next(from time.Time) time.Time {
	return s.s.Next(from.UTC())
}

func (s cronSchedule) String() string {
	return s.pattern
}

package util

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Five field expressions plus descriptors such as @hourly, matching what the
// asynq scheduler accepts for the state sweep.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func parseCron(expr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// NextCronTime returns the first run of expr strictly after from, in UTC.
func NextCronTime(expr string, from time.Time) (time.Time, error) {
	schedule, err := parseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from.UTC()), nil
}

// ValidateCronExpr reports whether expr parses.
func ValidateCronExpr(expr string) error {
	_, err := parseCron(expr)
	return err
}

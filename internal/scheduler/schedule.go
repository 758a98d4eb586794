package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule computes the next run after a given time.
type Schedule interface {
	Next(after time.Time) time.Time
}

type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

type named string

func (n named) Next(t time.Time) time.Time {
	switch n {
	case "@daily":
		return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
	case "@weekly":
		days := (7 - int(t.Weekday())) % 7
		if days == 0 {
			days = 7
		}
		return time.Date(t.Year(), t.Month(), t.Day()+days, 0, 0, 0, 0, t.Location())
	default: // @hourly
		return t.Add(time.Hour).Truncate(time.Hour)
	}
}

// Parse accepts "@hourly", "@daily", "@weekly" and "@every <duration>", where
// duration is a Go duration or a whole number of days such as "2d".
func Parse(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "@hourly", "@daily", "@weekly":
		return named(expr), nil
	}

	arg, ok := strings.CutPrefix(expr, "@every ")
	if !ok {
		return nil, fmt.Errorf("unsupported schedule %q", expr)
	}
	arg = strings.TrimSpace(arg)

	var d time.Duration
	if days, isDays := strings.CutSuffix(arg, "d"); isDays {
		n, err := strconv.Atoi(days)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q", arg)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(arg); err != nil {
			return nil, fmt.Errorf("invalid duration %q", arg)
		}
	}
	if d < time.Second {
		return nil, fmt.Errorf("schedule interval %s is shorter than one second", d)
	}
	return every(d), nil
}

package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Spec is a parsed repeating trigger: either a fixed interval or a cron
// expression.
type Spec struct {
	Every time.Duration
	Cron  string
}

func (s Spec) String() string {
	if s.Cron != "" {
		return s.Cron
	}
	return "@every " + s.Every.String()
}

var reHHMMInterval = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

// ParseSpec accepts:
//   - Go durations: "6h", "90m"
//   - HH:MM intervals: "06:00" (every six hours), "00:45"
//   - cron expressions: "0 */6 * * *", "@daily", or anything prefixed "cron:"
func ParseSpec(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}
	if len(s) >= 5 && strings.EqualFold(s[:5], "cron:") {
		expr := strings.TrimSpace(s[5:])
		if expr == "" {
			return Spec{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		return parseCronSpec(expr)
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCronSpec(s)
	}
	if m := reHHMMInterval.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Spec{}, fmt.Errorf("invalid minutes in %q", s)
		}
		d := time.Duration(h)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return Spec{}, fmt.Errorf("interval must be > 0")
		}
		return Spec{Every: d}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid schedule %q (use a duration like '6h', HH:MM like '06:00' or cron like '0 */6 * * *')", raw)
	}
	if d < time.Second {
		return Spec{}, fmt.Errorf("interval must be >= 1s")
	}
	return Spec{Every: d}, nil
}

func parseCronSpec(expr string) (Spec, error) {
	if _, err := cronParser.Parse(expr); err != nil {
		return Spec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Spec{Cron: expr}, nil
}

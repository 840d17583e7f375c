package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"moviebot/internal/task/scheduler"
)

// ErrMissing is wrapped by Validate for absent required values.
var ErrMissing = errors.New("required value missing")

// Validate checks a defaulted config. It returns the first problem found,
// prefixed with the offending key.
func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("config: %w", ErrMissing)
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token (or %s): %w", EnvBotToken, ErrMissing)
	}
	if strings.TrimSpace(c.Telegram.ChannelID) == "" {
		return fmt.Errorf("telegram.channel_id (or %s): %w", EnvChannelID, ErrMissing)
	}
	if strings.TrimSpace(c.TMDB.APIKey) == "" {
		return fmt.Errorf("tmdb.api_key (or %s): %w", EnvTMDBKey, ErrMissing)
	}
	if c.Telegram.RatePerMin < 0 {
		return fmt.Errorf("telegram.rate_per_min must be >= 0")
	}

	durations := []struct{ path, raw string }{
		{"tmdb.timeout", c.TMDB.Timeout},
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"publish.pace", c.Publish.Pace},
		{"publish.retry_backoff", c.Publish.RetryBackoff},
		{"publish.timeout", c.Publish.Timeout},
		{"schedule.interval", c.Schedule.Interval},
	}
	if c.Storage != nil {
		durations = append(durations, struct{ path, raw string }{"storage.busy_timeout", c.Storage.BusyTimeout})
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	if c.Publish.MaxItems < 1 {
		return fmt.Errorf("publish.max_items must be >= 1")
	}
	if c.Publish.Retries < 1 {
		return fmt.Errorf("publish.retries must be >= 1 (total attempts per item)")
	}

	if len(c.Categories) == 0 {
		return fmt.Errorf("categories: %w", ErrMissing)
	}
	seen := map[string]bool{}
	for i, cat := range c.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			return fmt.Errorf("categories[%d].name: %w", i, ErrMissing)
		}
		if seen[cat.Name] {
			return fmt.Errorf("categories[%d].name: duplicate %q", i, cat.Name)
		}
		seen[cat.Name] = true
		if strings.TrimSpace(cat.Endpoint) == "" {
			return fmt.Errorf("categories[%d].endpoint: %w", i, ErrMissing)
		}
	}

	if err := validateSchedule(c); err != nil {
		return err
	}

	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
	}
	return nil
}

func validateSchedule(c *Config) error {
	s := c.Schedule
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
		}
	}
	interval, _ := ParseDurationField("schedule.interval", s.Interval)

	switch s.Mode {
	case ModeTable, ModeDaily, ModeRotation, ModeInterval:
	default:
		return fmt.Errorf("schedule.mode: unknown mode %q (use table, rotation, daily or interval)", s.Mode)
	}
	if len(s.Tasks) == 0 {
		return fmt.Errorf("schedule.tasks: %w", ErrMissing)
	}
	if (s.Mode == ModeRotation || s.Mode == ModeInterval) && interval <= 0 {
		return fmt.Errorf("schedule.interval must be > 0 in %s mode", s.Mode)
	}

	names := map[string]bool{}
	for i, t := range s.Tasks {
		path := fmt.Sprintf("schedule.tasks[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%s.name: %w", path, ErrMissing)
		}
		if names[t.Name] {
			return fmt.Errorf("%s.name: duplicate %q", path, t.Name)
		}
		names[t.Name] = true

		for _, cat := range c.TaskCategories(t) {
			if _, ok := c.Category(cat); !ok {
				return fmt.Errorf("%s.categories: unknown category %q", path, cat)
			}
		}
		hasEvery := strings.TrimSpace(t.Every) != ""
		if hasEvery {
			if _, err := scheduler.ParseSpec(t.Every); err != nil {
				return fmt.Errorf("%s.every: %w", path, err)
			}
		}
		for j, at := range t.At {
			if _, err := scheduler.ParseTimeOfDay(at); err != nil {
				return fmt.Errorf("%s.at[%d]: %w", path, j, err)
			}
		}
		switch s.Mode {
		case ModeTable:
			if !hasEvery && len(t.At) == 0 {
				return fmt.Errorf("%s: needs every or at in table mode", path)
			}
		case ModeDaily:
			if len(t.At) == 0 {
				return fmt.Errorf("%s.at: %w (daily mode)", path, ErrMissing)
			}
		}
	}
	return nil
}

// Category looks up a category by name.
func (c *Config) Category(name string) (CategoryConfig, bool) {
	for _, cat := range c.Categories {
		if cat.Name == name {
			return cat, true
		}
	}
	return CategoryConfig{}, false
}

// TaskCategories returns the categories a task polls, in order.
func (c *Config) TaskCategories(t TaskConfig) []string {
	if len(t.Categories) > 0 {
		return t.Categories
	}
	return []string{t.Name}
}

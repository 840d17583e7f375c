// Package scheduler runs named jobs from a single timer.
//
// Triggers are either time-of-day ("10:00", at most once per calendar day) or
// fixed intervals. robfig/cron computes the next fire time for each trigger;
// the scheduler itself owns the only timer and runs jobs inline, so two jobs
// never overlap.
package scheduler

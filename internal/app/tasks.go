package app

import (
	"context"
	"fmt"

	"moviebot/internal/catalog"
	"moviebot/internal/config"
	"moviebot/internal/cycle"
	"moviebot/internal/task/scheduler"
	logx "moviebot/pkg/logx"
)

// rotationTask is the scheduler task name used in rotation mode.
const rotationTask = "rotation"

func toCategory(c config.CategoryConfig) catalog.Category {
	return catalog.Category{Name: c.Name, Label: c.Label, Endpoint: c.Endpoint, Params: c.Params}
}

func categories(cfg *config.Config) []catalog.Category {
	out := make([]catalog.Category, 0, len(cfg.Categories))
	for _, c := range cfg.Categories {
		out = append(out, toCategory(c))
	}
	return out
}

func taskCategories(cfg *config.Config, t config.TaskConfig) ([]catalog.Category, error) {
	names := cfg.TaskCategories(t)
	out := make([]catalog.Category, 0, len(names))
	for _, n := range names {
		c, ok := cfg.Category(n)
		if !ok {
			return nil, fmt.Errorf("task %s: unknown category %q", t.Name, n)
		}
		out = append(out, toCategory(c))
	}
	return out, nil
}

// taskJob discovers new items across cats and publishes them as one cycle.
// It runs on the scheduler goroutine, the only place the dedup store is used.
func (a *App) taskJob(name string, cats []catalog.Category) scheduler.Job {
	return func(ctx context.Context) error {
		cands := a.discover.DiscoverNew(ctx, cats, a.publish.maxItems)
		a.dedupSize.Store(int64(a.seen.Len()))

		res := a.cycle.PublishBatch(ctx, cands, cycle.Options{
			Task:         name,
			Pace:         a.publish.pace,
			Retries:      a.publish.retries,
			RetryBackoff: a.publish.retryBackoff,
		})
		if res.Attempted > 0 && res.Succeeded == 0 {
			return fmt.Errorf("task %s: none of %d items delivered", name, res.Attempted)
		}
		return nil
	}
}

// registerSchedule binds configured tasks to scheduler triggers according to
// the schedule mode. It returns the task RunNow should use for run_on_start.
func (a *App) registerSchedule(cfg *config.Config) (string, error) {
	tasks := cfg.Schedule.Tasks
	if len(tasks) == 0 {
		return "", fmt.Errorf("schedule.tasks: %w", config.ErrMissing)
	}
	jobs := make(map[string]scheduler.Job, len(tasks))
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		cats, err := taskCategories(cfg, t)
		if err != nil {
			return "", err
		}
		jobs[t.Name] = a.taskJob(t.Name, cats)
		names = append(names, t.Name)
	}
	interval, err := config.ParseDurationField("schedule.interval", cfg.Schedule.Interval)
	if err != nil {
		return "", err
	}

	switch cfg.Schedule.Mode {
	case config.ModeTable, "":
		for _, t := range tasks {
			if t.Every != "" {
				if err := a.sched.Add(t.Name, t.Every, jobs[t.Name]); err != nil {
					return "", fmt.Errorf("task %s: %w", t.Name, err)
				}
			}
			for _, at := range t.At {
				if err := a.sched.At(t.Name, at, jobs[t.Name]); err != nil {
					return "", fmt.Errorf("task %s: %w", t.Name, err)
				}
			}
		}
		return names[0], nil

	case config.ModeDaily:
		for _, t := range tasks {
			if t.Every != "" {
				a.log.Warn("every ignored in daily mode", logx.String("task", t.Name))
			}
			for _, at := range t.At {
				if err := a.sched.At(t.Name, at, jobs[t.Name]); err != nil {
					return "", fmt.Errorf("task %s: %w", t.Name, err)
				}
			}
		}
		return names[0], nil

	case config.ModeRotation:
		rot := scheduler.NewRotation(names...)
		for _, n := range names {
			if err := a.sched.Handle(n, jobs[n]); err != nil {
				return "", err
			}
		}
		err := a.sched.Every(rotationTask, interval, func(ctx context.Context) error {
			tick := rot.Tick()
			name := rot.Next()
			a.log.Info("rotation tick", logx.Uint64("tick", tick), logx.String("task", name))
			return jobs[name](ctx)
		})
		if err != nil {
			return "", err
		}
		return rotationTask, nil

	case config.ModeInterval:
		if len(tasks) > 1 {
			a.log.Warn("interval mode runs only the first task", logx.String("task", names[0]), logx.Int("ignored", len(tasks)-1))
		}
		if err := a.sched.Every(names[0], interval, jobs[names[0]]); err != nil {
			return "", err
		}
		return names[0], nil
	}
	return "", fmt.Errorf("schedule.mode: unknown mode %q", cfg.Schedule.Mode)
}

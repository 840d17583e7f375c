package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"moviebot/internal/eventbus"
	logx "moviebot/pkg/logx"
)

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one unit of scheduled work. A returned error is logged and does not
// stop the scheduler.
type Job func(ctx context.Context) error

type Options struct {
	Location *time.Location
	Log      logx.Logger
	Bus      eventbus.Bus
	// State defaults to a fresh in-memory State.
	State *State
	// Now defaults to time.Now.
	Now func() time.Time
}

type trigger struct {
	key   string
	task  string
	spec  string
	sched cron.Schedule
	daily bool
	next  time.Time
	prev  time.Time
}

type task struct {
	name    string
	job     Job
	runs    int
	lastRun time.Time
	lastErr string
	took    time.Duration
}

// Scheduler fires registered triggers from a single timer and runs their jobs
// inline. Register triggers before or during Run; Run picks up changes.
type Scheduler struct {
	log   logx.Logger
	bus   eventbus.Bus
	loc   *time.Location
	now   func() time.Time
	state *State

	mu       sync.Mutex
	tasks    map[string]*task
	order    []string
	triggers []*trigger
	running  bool
	wake     chan struct{}

	// runMu serializes job execution between Run and RunNow.
	runMu sync.Mutex
}

func New(opt Options) *Scheduler {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := opt.Bus
	if bus == nil {
		bus = eventbus.Nop()
	}
	loc := opt.Location
	if loc == nil {
		loc = time.Local
	}
	now := opt.Now
	if now == nil {
		now = time.Now
	}
	st := opt.State
	if st == nil {
		st = NewState()
	}
	return &Scheduler{
		log:   log,
		bus:   bus,
		loc:   loc,
		now:   func() time.Time { return now().In(loc) },
		state: st,
		tasks: map[string]*task{},
		wake:  make(chan struct{}, 1),
	}
}

func (s *Scheduler) Location() *time.Location { return s.loc }

// Handle registers (or replaces) the job for name without adding a trigger.
// The job can then be started with RunNow or from another job.
func (s *Scheduler) Handle(name string, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("task name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handleLocked(name, job)
	return nil
}

func (s *Scheduler) handleLocked(name string, job Job) {
	if t, ok := s.tasks[name]; ok {
		t.job = job
		return
	}
	s.tasks[name] = &task{name: name, job: job}
	s.order = append(s.order, name)
}

// At runs job every day at hhmm in the scheduler location, at most once per
// calendar day.
func (s *Scheduler) At(name, hhmm string, job Job) error {
	tod, err := ParseTimeOfDay(hhmm)
	if err != nil {
		return err
	}
	sched, err := cronParser.Parse(tod.cronSpec())
	if err != nil {
		return err
	}
	return s.addTrigger(name, job, &trigger{
		key:   name + "@" + tod.String(),
		spec:  tod.String(),
		sched: sched,
		daily: true,
	})
}

// Every runs job at a fixed interval (whole seconds, minimum 1s).
func (s *Scheduler) Every(name string, every time.Duration, job Job) error {
	if every < time.Second {
		return fmt.Errorf("interval must be >= 1s, got %s", every)
	}
	return s.addTrigger(name, job, &trigger{
		key:   name + "/every",
		spec:  "@every " + every.String(),
		sched: cron.Every(every),
	})
}

// Add registers a trigger from a ParseSpec string (duration, HH:MM interval or cron).
func (s *Scheduler) Add(name, raw string, job Job) error {
	spec, err := ParseSpec(raw)
	if err != nil {
		return err
	}
	if spec.Cron == "" {
		return s.Every(name, spec.Every, job)
	}
	sched, err := cronParser.Parse(spec.Cron)
	if err != nil {
		return err
	}
	return s.addTrigger(name, job, &trigger{
		key:   name + "/cron:" + spec.Cron,
		spec:  spec.Cron,
		sched: sched,
	})
}

func (s *Scheduler) addTrigger(name string, job Job, tr *trigger) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("task name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	tr.task = name

	s.mu.Lock()
	s.handleLocked(name, job)
	replaced := false
	for i, cur := range s.triggers {
		if cur.key == tr.key {
			s.triggers[i] = tr
			replaced = true
			break
		}
	}
	if !replaced {
		s.triggers = append(s.triggers, tr)
	}
	if s.running {
		tr.next = tr.sched.Next(s.now())
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.log.Debug("trigger registered", logx.String("task", name), logx.String("spec", tr.spec))
	return nil
}

// RunNow runs the named job immediately on the caller's goroutine. It waits
// for a job that is already running to finish first. The returned error is a
// *LoopError for job failures.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	return s.runTask(ctx, name, "manual")
}

// Run drives the timer until ctx is done. It always returns nil on
// cancellation; job failures never end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.primeLocked(s.now())
	n := len(s.triggers)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("triggers", n))
	for {
		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		if next, ok := s.nextWake(); ok {
			wait := max(next.Sub(s.now()), 0)
			timer = time.NewTimer(wait)
			fire = timer.C
			s.log.Trace("sleeping until next trigger", logx.Time("next", next), logx.Duration("wait", wait))
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.log.Info("scheduler stopped")
			return nil
		case <-s.wake:
		case <-fire:
			s.runDue(ctx, s.now())
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (s *Scheduler) primeLocked(now time.Time) {
	for _, tr := range s.triggers {
		tr.next = tr.sched.Next(now)
	}
}

func (s *Scheduler) nextWake() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best time.Time
	for _, tr := range s.triggers {
		if tr.next.IsZero() {
			continue
		}
		if best.IsZero() || tr.next.Before(best) {
			best = tr.next
		}
	}
	return best, !best.IsZero()
}

// runDue runs every trigger whose next time is at or before now, in
// registration order. A task with several due triggers runs once.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*trigger
	for _, tr := range s.triggers {
		if !tr.next.IsZero() && !tr.next.After(now) {
			due = append(due, tr)
		}
	}
	s.mu.Unlock()

	ran := map[string]bool{}
	for _, tr := range due {
		if ctx.Err() != nil {
			return
		}
		switch {
		case tr.daily && s.state.RanOn(tr.key, now):
			s.log.Debug("trigger already ran today", logx.String("task", tr.task), logx.String("at", tr.spec))
		case ran[tr.task]:
			s.log.Debug("task already ran this tick", logx.String("task", tr.task), logx.String("trigger", tr.spec))
		default:
			ran[tr.task] = true
			_ = s.runTask(ctx, tr.task, tr.spec)
		}
		if tr.daily {
			s.state.Mark(tr.key, now)
		}

		after := s.now()
		if after.Before(now) {
			after = now
		}
		s.mu.Lock()
		tr.prev = now
		tr.next = tr.sched.Next(after)
		s.mu.Unlock()
	}
}

func (s *Scheduler) runTask(ctx context.Context, name, trig string) error {
	s.mu.Lock()
	t := s.tasks[name]
	s.mu.Unlock()
	if t == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	job := t.job
	s.mu.Unlock()

	started := s.now()
	s.log.Debug("task started", logx.String("task", name), logx.String("trigger", trig))
	lerr := s.invoke(ctx, name, job)
	took := s.now().Sub(started)

	ev := eventbus.TaskFinished{Task: name, Trigger: trig, Started: started, Took: took}
	s.mu.Lock()
	t.runs++
	t.lastRun = started
	t.took = took
	t.lastErr = ""
	if lerr != nil {
		t.lastErr = lerr.Error()
		ev.Err = t.lastErr
		ev.Panicked = lerr.Panic != nil
	}
	s.mu.Unlock()
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskFinished, Data: ev})

	if lerr != nil {
		s.log.Error("task failed", logx.String("task", name), logx.String("trigger", trig), logx.Duration("took", took), logx.Err(lerr))
		return lerr
	}
	s.log.Info("task finished", logx.String("task", name), logx.String("trigger", trig), logx.Duration("took", took))
	return nil
}

func (s *Scheduler) invoke(ctx context.Context, name string, job Job) (lerr *LoopError) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panic", logx.String("task", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			lerr = &LoopError{Task: name, Panic: r, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := job(ctx); err != nil {
		return &LoopError{Task: name, Err: err}
	}
	return nil
}

// TaskInfo describes a registered task for status output.
type TaskInfo struct {
	Name     string
	Triggers []string
	Next     time.Time
	LastRun  time.Time
	LastErr  string
	Took     time.Duration
	Runs     int
}

// Snapshot lists tasks in registration order.
func (s *Scheduler) Snapshot() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.order))
	for _, name := range s.order {
		t := s.tasks[name]
		info := TaskInfo{Name: name, LastRun: t.lastRun, LastErr: t.lastErr, Took: t.took, Runs: t.runs}
		for _, tr := range s.triggers {
			if tr.task != name {
				continue
			}
			info.Triggers = append(info.Triggers, tr.spec)
			if !tr.next.IsZero() && (info.Next.IsZero() || tr.next.Before(info.Next)) {
				info.Next = tr.next
			}
		}
		sort.Strings(info.Triggers)
		out = append(out, info)
	}
	return out
}

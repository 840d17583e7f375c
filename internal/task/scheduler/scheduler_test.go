package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"moviebot/internal/eventbus"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestScheduler(t *testing.T, start time.Time) (*Scheduler, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: start}
	return New(Options{Location: time.UTC, Now: clk.Now}), clk
}

func prime(s *Scheduler, now time.Time) {
	s.mu.Lock()
	s.primeLocked(now)
	s.mu.Unlock()
}

func counter(n *atomic.Int32) Job {
	return func(context.Context) error {
		n.Add(1)
		return nil
	}
}

func at(h, m int) time.Time {
	return time.Date(2025, 3, 1, h, m, 0, 0, time.UTC)
}

func TestAtFiresOncePerCalendarDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, clk := newTestScheduler(t, at(9, 0))
	var runs atomic.Int32
	require.NoError(t, s.At("daily_update", "10:00", counter(&runs)))
	prime(s, at(9, 0))

	clk.Set(at(10, 0))
	s.runDue(ctx, at(10, 0))
	require.Equal(t, int32(1), runs.Load())

	s.runDue(ctx, at(10, 0).Add(30*time.Second))
	require.Equal(t, int32(1), runs.Load(), "next trigger is tomorrow")

	// Clock stepped back: the trigger is due again but already ran today.
	s.mu.Lock()
	s.triggers[0].next = at(10, 0)
	s.mu.Unlock()
	clk.Set(at(11, 0))
	s.runDue(ctx, at(11, 0))
	require.Equal(t, int32(1), runs.Load())
	require.True(t, s.state.RanOn("daily_update@10:00", at(0, 0)))
	require.False(t, s.state.RanOn("daily_update@10:00", at(10, 0).AddDate(0, 0, 1)))

	tomorrow := at(10, 0).AddDate(0, 0, 1)
	info := s.Snapshot()
	require.Len(t, info, 1)
	require.Equal(t, tomorrow, info[0].Next)

	clk.Set(tomorrow)
	s.runDue(ctx, tomorrow)
	require.Equal(t, int32(2), runs.Load())
}

func TestFailingTaskDoesNotStopOthers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	clk := &fakeClock{t: at(8, 0)}
	s := New(Options{Location: time.UTC, Now: clk.Now, Bus: bus})

	var runs atomic.Int32
	require.NoError(t, s.Every("boom", time.Minute, func(context.Context) error { panic("catalog exploded") }))
	require.NoError(t, s.Every("fails", time.Minute, func(context.Context) error { return errors.New("nope") }))
	require.NoError(t, s.Every("ok", time.Minute, counter(&runs)))
	prime(s, at(8, 0))

	clk.Set(at(8, 1))
	s.runDue(ctx, at(8, 1))
	require.Equal(t, int32(1), runs.Load())

	info := s.Snapshot()
	require.Len(t, info, 3)
	require.Contains(t, info[0].LastErr, "panicked")
	require.Contains(t, info[1].LastErr, "nope")
	require.Empty(t, info[2].LastErr)
	require.Equal(t, at(8, 2), info[2].Next)

	e := <-events
	require.Equal(t, eventbus.TypeTaskFinished, e.Type)
	fin := e.Data.(eventbus.TaskFinished)
	require.Equal(t, "boom", fin.Task)
	require.True(t, fin.Panicked)
}

func TestTaskRunsOnceWhenTriggersCoincide(t *testing.T) {
	t.Parallel()
	s, clk := newTestScheduler(t, at(9, 0))
	var runs atomic.Int32
	require.NoError(t, s.At("latest", "10:00", counter(&runs)))
	require.NoError(t, s.Every("latest", time.Hour, counter(&runs)))
	prime(s, at(9, 0))

	clk.Set(at(10, 0))
	s.runDue(context.Background(), at(10, 0))
	require.Equal(t, int32(1), runs.Load())
	require.Equal(t, []string{"10:00", "@every 1h0m0s"}, s.Snapshot()[0].Triggers)
}

func TestRunNow(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t, at(9, 0))
	sentinel := errors.New("tmdb down")
	require.NoError(t, s.Handle("latest", func(context.Context) error { return sentinel }))

	err := s.RunNow(context.Background(), "latest")
	var lerr *LoopError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, "latest", lerr.Task)
	require.ErrorIs(t, err, sentinel)

	err = s.RunNow(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestRunFiresAndStops(t *testing.T) {
	t.Parallel()
	s := New(Options{})
	fired := make(chan struct{}, 4)
	require.NoError(t, s.Every("tick", time.Second, func(context.Context) error {
		fired <- struct{}{}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("trigger did not fire")
	}
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRegistrationErrors(t *testing.T) {
	t.Parallel()
	s := New(Options{})
	require.Error(t, s.Every("x", 10*time.Millisecond, counter(new(atomic.Int32))))
	require.Error(t, s.At("x", "7pm", counter(new(atomic.Int32))))
	require.Error(t, s.At("", "07:00", counter(new(atomic.Int32))))
	require.Error(t, s.Handle("x", nil))
	require.NoError(t, s.Add("x", "0 */6 * * *", counter(new(atomic.Int32))))
	require.NoError(t, s.Add("y", "06:00", counter(new(atomic.Int32))))
}

func TestRotationIsFair(t *testing.T) {
	t.Parallel()
	r := NewRotation("latest", "trending", "upcoming")
	counts := map[string]int{}
	var seq []string
	for i := 0; i < 9; i++ {
		n := r.Next()
		counts[n]++
		seq = append(seq, n)
	}
	require.Equal(t, map[string]int{"latest": 3, "trending": 3, "upcoming": 3}, counts)
	require.Equal(t, []string{"latest", "trending", "upcoming"}, seq[3:6])
	require.Equal(t, uint64(9), r.Tick())
	require.Equal(t, "", NewRotation().Next())
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want TimeOfDay
		err  bool
	}{
		{in: "10:00", want: TimeOfDay{10, 0}},
		{in: "7:05", want: TimeOfDay{7, 5}},
		{in: " 23:59 ", want: TimeOfDay{23, 59}},
		{in: "24:00", err: true},
		{in: "12:60", err: true},
		{in: "12:5", err: true},
		{in: "noon", err: true},
		{in: "", err: true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if tt.err {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}
}

func TestParseSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Spec
		err  bool
	}{
		{in: "6h", want: Spec{Every: 6 * time.Hour}},
		{in: "06:00", want: Spec{Every: 6 * time.Hour}},
		{in: "00:45", want: Spec{Every: 45 * time.Minute}},
		{in: "0 */6 * * *", want: Spec{Cron: "0 */6 * * *"}},
		{in: "@daily", want: Spec{Cron: "@daily"}},
		{in: "CRON: 30 9 * * 1", want: Spec{Cron: "30 9 * * 1"}},
		{in: "500ms", err: true},
		{in: "00:00", err: true},
		{in: "cron:", err: true},
		{in: "* * *", err: true},
		{in: "soon", err: true},
	}
	for _, tt := range tests {
		got, err := ParseSpec(tt.in)
		if tt.err {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

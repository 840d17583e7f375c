package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviebot/internal/catalog"
	"moviebot/internal/config"
	"moviebot/internal/transport"
	logx "moviebot/pkg/logx"
)

type fakeCatalog struct {
	mu      sync.Mutex
	items   map[string][]catalog.Item
	pingErr error
	fetched []string
}

func (f *fakeCatalog) Fetch(_ context.Context, cat catalog.Category) ([]catalog.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, cat.Name)
	return f.items[cat.Name], nil
}

func (f *fakeCatalog) fetchLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func (f *fakeCatalog) Search(context.Context, string) ([]catalog.Item, error) { return nil, nil }
func (f *fakeCatalog) Ping(context.Context) error                            { return f.pingErr }

type fakeMessenger struct {
	mu        sync.Mutex
	published []transport.Post
	pingErr   error
	started   bool
	replies   []string
}

func (f *fakeMessenger) Publish(_ context.Context, p transport.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, p)
	return nil
}

func (f *fakeMessenger) PublishText(ctx context.Context, p transport.Post) error {
	p.PhotoURL = ""
	return f.Publish(ctx, p)
}

func (f *fakeMessenger) SendText(_ context.Context, _ int64, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeMessenger) replyTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replies...)
}

func (f *fakeMessenger) SendPhoto(context.Context, int64, string, string, *transport.SendOptions) error {
	return nil
}

func (f *fakeMessenger) AnswerCallback(context.Context, string, string) error { return nil }
func (f *fakeMessenger) Typing(context.Context, int64) error                  { return nil }
func (f *fakeMessenger) Ping(context.Context) error                           { return f.pingErr }

func (f *fakeMessenger) Start(context.Context, chan<- transport.Update) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *fakeMessenger) Stop(context.Context) error { return nil }

func (f *fakeMessenger) UpdateMenuCommands(context.Context, []transport.BotCommand) error {
	return nil
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func testConfig(t *testing.T, mutate func(c *config.Config)) *config.Config {
	t.Helper()
	off := false
	c := &config.Config{}
	c.Telegram.Token = "123456:abcdefghijklmnopqrstuvwxyz"
	c.Telegram.ChannelID = "@movies"
	c.Telegram.Commands = &off
	c.TMDB.APIKey = "key"
	c.Publish.Pace = "1ms"
	c.Publish.RetryBackoff = "1ms"
	c.Logging.Level = "error"
	config.ApplyDefaults(c)
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, config.Validate(c))
	return c
}

func posters(ids ...int64) []catalog.Item {
	out := make([]catalog.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, catalog.Item{ID: id, Title: "Movie", PosterPath: "/p.jpg"})
	}
	return out
}

func build(t *testing.T, cfg *config.Config, cat *fakeCatalog, tg *fakeMessenger) *App {
	t.Helper()
	a, err := newApp(nil, cfg, cat, tg, nil, logx.Nop())
	require.NoError(t, err)
	return a
}

func taskNames(a *App) []string {
	var out []string
	for _, ti := range a.sched.Snapshot() {
		out = append(out, ti.Name)
	}
	return out
}

func TestScheduleTableMode(t *testing.T) {
	a := build(t, testConfig(t, nil), &fakeCatalog{}, &fakeMessenger{})
	assert.Equal(t, "daily_update", a.firstTask)
	assert.Equal(t, []string{"daily_update", "latest", "trending", "upcoming"}, taskNames(a))
	for _, ti := range a.sched.Snapshot() {
		assert.Len(t, ti.Triggers, 1, ti.Name)
	}
}

func TestScheduleRotationMode(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Schedule.Mode = config.ModeRotation
		c.Schedule.Interval = "2h"
	})
	a := build(t, cfg, &fakeCatalog{}, &fakeMessenger{})
	assert.Equal(t, rotationTask, a.firstTask)
	assert.Contains(t, taskNames(a), rotationTask)
}

func TestRotationTicksCycleThroughTasks(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Schedule.Mode = config.ModeRotation
		c.Schedule.Interval = "2h"
		c.Schedule.Tasks = []config.TaskConfig{{Name: "latest"}, {Name: "trending"}, {Name: "upcoming"}}
	})
	cat := &fakeCatalog{}
	a := build(t, cfg, cat, &fakeMessenger{})

	const rounds = 3
	for i := 0; i < rounds*3; i++ {
		require.NoError(t, a.sched.RunNow(context.Background(), rotationTask))
	}
	var want []string
	for i := 0; i < rounds; i++ {
		want = append(want, "latest", "trending", "upcoming")
	}
	assert.Equal(t, want, cat.fetchLog())
}

func TestScheduleIntervalMode(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Schedule.Mode = config.ModeInterval
		c.Schedule.Interval = "30m"
		c.Schedule.Tasks = []config.TaskConfig{{Name: "latest"}}
	})
	a := build(t, cfg, &fakeCatalog{}, &fakeMessenger{})
	assert.Equal(t, []string{"latest"}, taskNames(a))
}

func TestScheduleDailyMode(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Schedule.Mode = config.ModeDaily
		c.Schedule.Tasks = []config.TaskConfig{
			{Name: "latest", At: []string{"08:00", "20:00"}},
			{Name: "upcoming", At: []string{"14:00"}},
		}
	})
	a := build(t, cfg, &fakeCatalog{}, &fakeMessenger{})
	snap := a.sched.Snapshot()
	require.Len(t, snap, 2)
	assert.Len(t, snap[0].Triggers, 2)
}

func TestTaskNeverRepublishes(t *testing.T) {
	cat := &fakeCatalog{items: map[string][]catalog.Item{"latest": posters(10, 20, 30, 40)}}
	tg := &fakeMessenger{}
	a := build(t, testConfig(t, nil), cat, tg)
	ctx := context.Background()

	require.NoError(t, a.sched.RunNow(ctx, "latest"))
	assert.Equal(t, 3, tg.count())
	assert.EqualValues(t, 3, a.dedupSize.Load())

	require.NoError(t, a.sched.RunNow(ctx, "latest"))
	assert.Equal(t, 4, tg.count())

	require.NoError(t, a.sched.RunNow(ctx, "latest"))
	assert.Equal(t, 4, tg.count())
}

func TestDailyUpdateSharesDedupWithCategoryTasks(t *testing.T) {
	cat := &fakeCatalog{items: map[string][]catalog.Item{
		"latest":   posters(1),
		"trending": posters(1, 2),
		"upcoming": posters(3),
	}}
	tg := &fakeMessenger{}
	a := build(t, testConfig(t, nil), cat, tg)
	ctx := context.Background()

	require.NoError(t, a.sched.RunNow(ctx, "daily_update"))
	assert.Equal(t, 3, tg.count())
	require.NoError(t, a.sched.RunNow(ctx, "trending"))
	assert.Equal(t, 3, tg.count())
}

func TestStartFailsWhenProbeFails(t *testing.T) {
	a := build(t, testConfig(t, nil), &fakeCatalog{pingErr: errors.New("401")}, &fakeMessenger{})
	err := a.Start(context.Background())
	require.Error(t, err)

	var se *StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageProbe, se.Stage)
	assert.Contains(t, err.Error(), "catalog: 401")
	assert.Equal(t, StateValidating, a.State())
}

func TestStartRunOnStartAndStop(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) { c.Schedule.RunOnStart = true })
	cat := &fakeCatalog{items: map[string][]catalog.Item{"latest": posters(1, 2)}}
	tg := &fakeMessenger{}
	a := build(t, cfg, cat, tg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	assert.Equal(t, StateRunning, a.State())

	require.Eventually(t, func() bool { return tg.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		h := a.Health()
		return h.LastCycle != nil && h.NextRun != nil
	}, 2*time.Second, 5*time.Millisecond)

	h := a.Health()
	assert.Equal(t, "running", h.State)
	assert.Equal(t, 2, h.DedupSize)
	assert.Zero(t, h.EventsDropped)
	assert.Equal(t, "daily_update", h.LastCycle.Task)
	assert.Equal(t, 2, h.LastCycle.Succeeded)

	st := a.Status(ctx)
	assert.Equal(t, "running", st.State)
	assert.Len(t, st.Tasks, 4)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopAppStop))
	assert.Equal(t, StateStopped, a.State())
	assert.NoError(t, a.Err())
}

func TestStartWithCommandsStartsPolling(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) { c.Telegram.Commands = nil })
	tg := &fakeMessenger{}
	a := build(t, cfg, &fakeCatalog{}, tg)
	require.NoError(t, a.Start(context.Background()))
	tg.mu.Lock()
	assert.True(t, tg.started)
	tg.mu.Unlock()
	require.NoError(t, a.Stop(context.Background(), StopSignal))
}

func TestApplyConfigKeepsNonLiveSections(t *testing.T) {
	cur := testConfig(t, nil)
	tg := &fakeMessenger{}
	a := build(t, cur, &fakeCatalog{}, tg)
	status := transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: 42, FromID: 42, Text: "/status"}}
	a.router.Route(context.Background(), status)
	require.Equal(t, []string{"unauthorized"}, tg.replyTexts())

	next := testConfig(t, func(c *config.Config) {
		c.Logging.Level = "debug"
		c.Publish.MaxItems = 9
		c.Telegram.OwnerUserIDs = []int64{42}
	})
	applied := a.applyConfig(cur, next)
	assert.Equal(t, "debug", applied.Logging.Level)
	assert.Equal(t, []int64{42}, applied.Telegram.OwnerUserIDs)
	assert.Equal(t, cur.Publish.MaxItems, applied.Publish.MaxItems)
	// Accepted owner commands are queued for the workers, so no immediate reply.
	a.router.Route(context.Background(), status)
	assert.Equal(t, []string{"unauthorized"}, tg.replyTexts())

	bad := testConfig(t, nil)
	bad.Telegram.Token = ""
	assert.Same(t, cur, a.applyConfig(cur, bad))
}

func TestStartupErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := startupErr(StageInit, base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "startup failed at init: boom", err.Error())
	assert.NoError(t, startupErr(StageInit, nil))
}

func TestNewAppRejectsMissingToken(t *testing.T) {
	t.Setenv(config.EnvBotToken, "")
	t.Setenv(config.EnvTMDBKey, "")
	t.Setenv(config.EnvChannelID, "")
	_, err := NewApp(t.TempDir() + "/missing.yaml")
	var se *StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageValidate, se.Stage)
	assert.ErrorIs(t, err, config.ErrMissing)
}

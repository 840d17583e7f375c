package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviebot/internal/eventbus"
	logx "moviebot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop())
	require.Error(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		_, err := Open(Config{Driver: driver}, logx.Nop())
		require.Error(t, err, driver)
	}
}

func cycle(id string, started time.Time) CycleRecord {
	return CycleRecord{CycleID: id, Task: "latest", Started: started, TookMS: 1200, Attempted: 3, Succeeded: 2, Failed: 1}
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendPublication(ctx, Publication{At: base, CycleID: "c1", ItemID: 42, Title: "Dune", Category: "latest", Attempts: 1, OK: true}))
	require.NoError(t, st.AppendPublication(ctx, Publication{At: base, CycleID: "c1", ItemID: 43, Title: "Heat", Category: "latest", Attempts: 3, Error: "boom"}))

	require.NoError(t, st.AppendCycle(ctx, cycle("c1", base)))
	require.NoError(t, st.AppendCycle(ctx, cycle("c2", base.Add(time.Hour))))
	require.NoError(t, st.AppendCycle(ctx, cycle("c3", base.Add(2*time.Hour))))

	got, err := st.RecentCycles(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c3", got[0].CycleID)
	assert.Equal(t, "c2", got[1].CycleID)
	assert.Equal(t, 3, got[0].Attempted)
	assert.Equal(t, int64(1200), got[0].TookMS)
	assert.True(t, got[0].Started.Equal(base.Add(2*time.Hour)))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "bot.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	exerciseStore(t, st)
	require.NoError(t, st.Close())

	pubs, err := os.ReadFile(filepath.Join(filepath.Dir(path), "bot.publications.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(pubs), `"item_id":42`)
	assert.Contains(t, string(pubs), `"error":"boom"`)

	// The cycle tail survives a reopen.
	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	got, err := st.RecentCycles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c3", got[0].CycleID)
}

func TestFileStoreClosed(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Error(t, st.AppendCycle(context.Background(), cycle("x", time.Now())))
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.sqlite")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	exerciseStore(t, st)

	// Duplicate cycle IDs are ignored.
	require.NoError(t, st.AppendCycle(context.Background(), cycle("c1", time.Now())))
	got, err := st.RecentCycles(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

type memStore struct {
	pubs   []Publication
	cycles []CycleRecord
}

func (m *memStore) AppendPublication(_ context.Context, p Publication) error {
	m.pubs = append(m.pubs, p)
	return nil
}

func (m *memStore) AppendCycle(_ context.Context, c CycleRecord) error {
	m.cycles = append(m.cycles, c)
	return nil
}

func (m *memStore) RecentCycles(context.Context, int) ([]CycleRecord, error) { return m.cycles, nil }
func (m *memStore) Close() error                                              { return nil }

func TestRecorderMapsEvents(t *testing.T) {
	st := &memStore{}
	r := NewRecorder(st, logx.Nop())
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, eventbus.Event{Type: eventbus.TypeItemPublished, Data: eventbus.ItemPublished{CycleID: "c", ItemID: 1, Title: "A", Attempts: 2, TextOnly: true}}))
	require.NoError(t, r.Handle(ctx, eventbus.Event{Type: eventbus.TypeItemFailed, Data: eventbus.ItemFailed{CycleID: "c", ItemID: 2, Err: "nope"}}))
	require.NoError(t, r.Handle(ctx, eventbus.Event{Type: eventbus.TypeCycleCompleted, Data: eventbus.CycleCompleted{CycleID: "c", Task: "latest", Attempted: 2, Succeeded: 1, Failed: 1, Took: 3 * time.Second}}))
	require.NoError(t, r.Handle(ctx, eventbus.Event{Type: eventbus.TypeTaskFinished, Data: eventbus.TaskFinished{Task: "latest"}}))

	require.Len(t, st.pubs, 2)
	assert.True(t, st.pubs[0].OK)
	assert.True(t, st.pubs[0].TextOnly)
	assert.False(t, st.pubs[0].At.IsZero())
	assert.False(t, st.pubs[1].OK)
	assert.Equal(t, "nope", st.pubs[1].Error)
	require.Len(t, st.cycles, 1)
	assert.Equal(t, int64(3000), st.cycles[0].TookMS)
}

func TestRecorderRunStopsOnClose(t *testing.T) {
	st := &memStore{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	done := make(chan error, 1)
	go func() { done <- NewRecorder(st, logx.Nop()).Run(context.Background(), ch) }()

	bus.Publish(eventbus.Event{Type: eventbus.TypeCycleCompleted, Data: eventbus.CycleCompleted{CycleID: "z"}})
	unsub()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop")
	}
	require.Len(t, st.cycles, 1)
}

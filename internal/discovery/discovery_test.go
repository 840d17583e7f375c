package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"moviebot/internal/catalog"
	"moviebot/internal/dedup"
	logx "moviebot/pkg/logx"
)

type fakeCatalog struct {
	items map[string][]catalog.Item
	errs  map[string]error
	calls []string
}

func (f *fakeCatalog) Fetch(_ context.Context, cat catalog.Category) ([]catalog.Item, error) {
	f.calls = append(f.calls, cat.Name)
	if err := f.errs[cat.Name]; err != nil {
		return nil, err
	}
	return f.items[cat.Name], nil
}

func movie(id int64) catalog.Item {
	return catalog.Item{ID: id, Title: "Movie", PosterPath: "/p.jpg"}
}

func ids(cs []Candidate) []int64 {
	out := make([]int64, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Item.ID)
	}
	return out
}

var (
	latest   = catalog.Category{Name: "latest"}
	trending = catalog.Category{Name: "trending"}
)

func TestDiscoverSkipsIncompleteAndSeen(t *testing.T) {
	t.Parallel()
	fc := &fakeCatalog{items: map[string][]catalog.Item{
		"latest": {
			movie(1),
			{ID: 2, Title: "No poster"},
			movie(3),
			{ID: 4, Title: " ", PosterPath: "/p.jpg"},
			movie(5),
		},
	}}
	seen := dedup.New()
	seen.Add(3)
	e := New(fc, seen, logx.Nop())

	got := e.DiscoverNew(context.Background(), []catalog.Category{latest}, 3)
	require.Equal(t, []int64{1, 5}, ids(got))
	require.True(t, seen.Contains(1))
	require.True(t, seen.Contains(5))
	require.False(t, seen.Contains(2))
	require.Equal(t, "latest", got[0].Category.Name)
}

func TestDiscoverStopsAtBatchBound(t *testing.T) {
	t.Parallel()
	fc := &fakeCatalog{items: map[string][]catalog.Item{
		"latest":   {movie(1), movie(2), movie(3)},
		"trending": {movie(4)},
	}}
	seen := dedup.New()
	e := New(fc, seen, logx.Nop())

	got := e.DiscoverNew(context.Background(), []catalog.Category{latest, trending}, 2)
	require.Equal(t, []int64{1, 2}, ids(got))
	require.Equal(t, []string{"latest"}, fc.calls, "second category must not be fetched")
	require.False(t, seen.Contains(3), "items past the bound stay unclaimed")
}

func TestDiscoverZeroBudget(t *testing.T) {
	t.Parallel()
	fc := &fakeCatalog{}
	require.Empty(t, New(fc, dedup.New(), logx.Nop()).DiscoverNew(context.Background(), []catalog.Category{latest}, 0))
	require.Empty(t, fc.calls)
}

func TestDiscoverSkipsFailingCategory(t *testing.T) {
	t.Parallel()
	fc := &fakeCatalog{
		items: map[string][]catalog.Item{"trending": {movie(9)}},
		errs:  map[string]error{"latest": &catalog.FetchError{Category: "latest", Status: 503, Err: catalog.ErrUnexpectedStatus}},
	}
	got := New(fc, dedup.New(), logx.Nop()).DiscoverNew(context.Background(), []catalog.Category{latest, trending}, 3)
	require.Equal(t, []int64{9}, ids(got))
	require.Equal(t, trending.Name, got[0].Category.Name)
}

func TestDiscoverNeverRepeatsAcrossCalls(t *testing.T) {
	t.Parallel()
	fc := &fakeCatalog{items: map[string][]catalog.Item{"latest": {movie(1), movie(2), movie(3), movie(4)}}}
	e := New(fc, dedup.New(), logx.Nop())
	ctx := context.Background()

	first := e.DiscoverNew(ctx, []catalog.Category{latest}, 2)
	second := e.DiscoverNew(ctx, []catalog.Category{latest}, 2)
	third := e.DiscoverNew(ctx, []catalog.Category{latest}, 2)
	require.Equal(t, []int64{1, 2}, ids(first))
	require.Equal(t, []int64{3, 4}, ids(second))
	require.Empty(t, third)
}

func TestDiscoverHonorsCancellation(t *testing.T) {
	t.Parallel()
	fc := &fakeCatalog{items: map[string][]catalog.Item{"latest": {movie(1)}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := New(fc, dedup.New(), logx.Nop()).DiscoverNew(ctx, []catalog.Category{latest}, 3)
	require.Empty(t, got)
	require.Empty(t, fc.calls)
}

func TestDiscoverLatestScenario(t *testing.T) {
	t.Parallel()
	fc := &fakeCatalog{items: map[string][]catalog.Item{
		"latest": {movie(10), movie(20), {ID: 30, Title: "No poster"}, movie(40), movie(50)},
	}}
	seen := dedup.New()
	seen.Add(20)
	seen.Add(50)

	got := New(fc, seen, logx.Nop()).DiscoverNew(context.Background(), []catalog.Category{latest}, 10)
	require.Equal(t, []int64{10, 40}, ids(got))
	for _, c := range got {
		require.Equal(t, "latest", c.Category.Name)
		require.True(t, seen.Contains(c.Item.ID))
	}
}

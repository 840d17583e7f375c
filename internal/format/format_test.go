package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"moviebot/internal/catalog"
	"moviebot/pkg/tgui"
)

func rating(v float64) *float64 { return &v }

var latest = catalog.Category{Name: "latest", Label: "Now Playing"}

func TestFormatFullItem(t *testing.T) {
	t.Parallel()
	f := New("https://image.tmdb.org/t/p/w500/")
	post, err := f.Format(catalog.Item{
		ID:          1,
		Title:       "Fast & Furious",
		ReleaseDate: "2024-05-01",
		Rating:      rating(7.26),
		Overview:    "Cars <go> fast.",
		PosterPath:  "/poster.jpg",
		GenreIDs:    []int{28, 999, 53},
	}, latest)
	require.NoError(t, err)

	require.Equal(t, "https://image.tmdb.org/t/p/w500/poster.jpg", post.PhotoURL)
	require.Contains(t, post.Text, "🎬 <b>Fast &amp; Furious</b>")
	require.Contains(t, post.Text, "<i>Now Playing</i>")
	require.Contains(t, post.Text, "<b>Release Date:</b> 2024-05-01")
	require.Contains(t, post.Text, "<b>Rating:</b> 7.3/10")
	require.Contains(t, post.Text, "<b>Genres:</b> Action, Thriller")
	require.Contains(t, post.Text, "Cars &lt;go&gt; fast.")
}

func TestFormatUnknownValues(t *testing.T) {
	t.Parallel()
	post, err := New("https://img").Format(catalog.Item{ID: 2, Title: "Mystery Film"}, catalog.Category{Name: "x"})
	require.NoError(t, err)
	require.Empty(t, post.PhotoURL)
	require.Contains(t, post.Text, "<b>Release Date:</b> TBA")
	require.Contains(t, post.Text, "<b>Rating:</b> N/A/10")
	require.Contains(t, post.Text, "No description available.")
	require.NotContains(t, post.Text, "Genres")
	require.NotContains(t, post.Text, "<i>")
}

func TestFormatTruncatesOverview(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("ä", 450)
	post, err := New("https://img").Format(catalog.Item{ID: 3, Title: "Long", Overview: long}, latest)
	require.NoError(t, err)
	require.Contains(t, post.Text, strings.Repeat("ä", 400)+"...")
	require.NotContains(t, post.Text, strings.Repeat("ä", 401))
}

func TestFormatCaptionFitsLimit(t *testing.T) {
	t.Parallel()
	// A long label pushes the caption over the limit even with a 400-rune overview.
	cat := catalog.Category{Name: "x", Label: strings.Repeat("L", 700)}
	post, err := New("https://img").Format(catalog.Item{
		ID: 4, Title: "T", PosterPath: "/p.jpg", Overview: strings.Repeat("o", 500),
	}, cat)
	require.NoError(t, err)
	require.Equal(t, CaptionLimit, tgui.RuneLen(tgui.Plain(tgui.H(post.Text))))
	require.Contains(t, post.Text, "o...")
}

func TestFormatMissingTitle(t *testing.T) {
	t.Parallel()
	_, err := New("https://img").Format(catalog.Item{ID: 5, Title: "  "}, latest)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, int64(5), fe.ItemID)
}

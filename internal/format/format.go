package format

import (
	"fmt"
	"strings"

	"moviebot/internal/catalog"
	"moviebot/internal/transport"
	"moviebot/pkg/tgui"
)

const (
	// OverviewLimit caps the description in runes before "..." is appended.
	OverviewLimit = 400
	// CaptionLimit is Telegram's photo caption limit (visible runes).
	CaptionLimit = 1024

	titleLimit  = 200
	ellipsis    = "..."
	noOverview  = "No description available."
	unknownDate = "TBA"
	noRating    = "N/A"
)

// Error reports an item that cannot be rendered. It is never retried.
type Error struct {
	ItemID int64
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("format item %d: %s", e.ItemID, e.Reason)
}

// Formatter renders catalog items as channel posts.
type Formatter struct {
	imageBase string
}

func New(imageBaseURL string) *Formatter {
	return &Formatter{imageBase: strings.TrimRight(strings.TrimSpace(imageBaseURL), "/")}
}

// Format renders it for cat. Items with a poster become photo posts whose
// caption fits CaptionLimit; the overview is shortened to make room.
func (f *Formatter) Format(it catalog.Item, cat catalog.Category) (transport.Post, error) {
	title := strings.TrimSpace(it.Title)
	if title == "" {
		return transport.Post{}, &Error{ItemID: it.ID, Reason: "missing title"}
	}

	var photo string
	if it.PosterPath != "" {
		photo = f.imageBase + "/" + strings.TrimLeft(it.PosterPath, "/")
	}

	overview := strings.TrimSpace(it.Overview)
	if overview == "" {
		overview = noOverview
	}
	overview = tgui.TruncRunes(overview, OverviewLimit, ellipsis)

	text := render(it, cat, tgui.TruncRunes(title, titleLimit, ellipsis), overview)
	if photo != "" {
		if over := tgui.RuneLen(tgui.Plain(text)) - CaptionLimit; over > 0 {
			keep := tgui.RuneLen(overview) - over - len(ellipsis)
			if keep < 0 {
				keep = 0
			}
			text = render(it, cat, tgui.TruncRunes(title, titleLimit, ellipsis), tgui.TruncRunes(overview, keep, ellipsis))
		}
	}
	return transport.Post{Text: text.String(), PhotoURL: photo}, nil
}

func render(it catalog.Item, cat catalog.Category, title, overview string) tgui.H {
	date := strings.TrimSpace(it.ReleaseDate)
	if date == "" {
		date = unknownDate
	}
	rating := noRating
	if it.Rating != nil {
		rating = fmt.Sprintf("%.1f", *it.Rating)
	}

	lines := []tgui.H{"🎬 " + tgui.B(title)}
	if cat.Label != "" {
		lines = append(lines, tgui.I(cat.Label))
	}
	lines = append(lines,
		"",
		"📅 "+tgui.Field("Release Date", date),
		"⭐ "+tgui.Field("Rating", rating+"/10"),
	)
	if g := GenreNames(it.GenreIDs); len(g) > 0 {
		lines = append(lines, "🎭 "+tgui.Field("Genres", strings.Join(g, ", ")))
	}
	lines = append(lines,
		"",
		"📖 "+tgui.B("Description:"),
		tgui.Esc(overview),
	)
	return tgui.Lines(lines...)
}

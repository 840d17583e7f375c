// Package discovery selects catalog items that have not been published yet.
package discovery

import (
	"context"
	"errors"
	"strings"

	"moviebot/internal/catalog"
	"moviebot/internal/dedup"
	logx "moviebot/pkg/logx"
)

// Fetcher lists the items of a category in catalog order.
type Fetcher interface {
	Fetch(ctx context.Context, cat catalog.Category) ([]catalog.Item, error)
}

// Candidate is an item selected for publication together with the category
// it was found in.
type Candidate struct {
	Item     catalog.Item
	Category catalog.Category
}

type Engine struct {
	fetch Fetcher
	seen  *dedup.Store
	log   logx.Logger
}

func New(f Fetcher, seen *dedup.Store, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{fetch: f, seen: seen, log: log}
}

// DiscoverNew walks categories in order and returns at most maxItems new
// candidates. Items without a poster or title and items already in the dedup
// store are skipped. Every returned item is claimed in the store before
// DiscoverNew returns, so it is never offered again. A category that fails to
// fetch is logged and skipped.
func (e *Engine) DiscoverNew(ctx context.Context, categories []catalog.Category, maxItems int) []Candidate {
	if maxItems <= 0 {
		return nil
	}
	out := make([]Candidate, 0, maxItems)
	for _, cat := range categories {
		if ctx.Err() != nil {
			e.log.Debug("discovery canceled", logx.Err(ctx.Err()))
			return out
		}
		items, err := e.fetch.Fetch(ctx, cat)
		if err != nil {
			fields := []logx.Field{logx.String("category", cat.Name), logx.Err(err)}
			var fe *catalog.FetchError
			if errors.As(err, &fe) && fe.Status != 0 {
				fields = append(fields, logx.Int("status", fe.Status))
			}
			e.log.Warn("category fetch failed; skipping", fields...)
			continue
		}

		var noPoster, dup, picked int
		for _, it := range items {
			switch {
			case !it.HasPoster() || strings.TrimSpace(it.Title) == "":
				noPoster++
				continue
			case e.seen.Contains(it.ID):
				dup++
				continue
			}
			e.seen.Add(it.ID)
			out = append(out, Candidate{Item: it, Category: cat})
			picked++
			if len(out) == maxItems {
				break
			}
		}
		e.log.Debug("category scanned",
			logx.String("category", cat.Name),
			logx.Int("items", len(items)),
			logx.Int("picked", picked),
			logx.Int("seen", dup),
			logx.Int("incomplete", noPoster),
		)
		if len(out) == maxItems {
			break
		}
	}
	return out
}

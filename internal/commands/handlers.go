package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moviebot/internal/catalog"
	"moviebot/internal/transport"
	"moviebot/pkg/tgui"
)

const fetchFailed = "❌ Could not fetch movies. Try again later."

var buttonIcons = map[string]string{
	"latest":   "🎯",
	"trending": "🔥",
	"upcoming": "📅",
}

func (r *Router) registerBuiltins() {
	r.Register(Command{Name: "start", Description: "Show the welcome message", Handle: r.handleStart})
	for _, cat := range r.deps.Categories {
		r.Register(Command{
			Name:        cat.Name,
			Description: categoryDescription(cat),
			Handle:      r.browse(cat),
		})
		r.OnCallback(cat.Name, cat.Name)
	}
	r.Register(Command{Name: "search", Description: "Search for a movie", Usage: "/search <movie name>", Handle: r.handleSearch})
	r.Register(Command{Name: "help", Description: "List commands", Handle: r.handleHelp})
	r.Register(Command{Name: "status", Description: "Scheduler and journal status", Access: AccessOwnerOnly, Handle: r.handleStatus})
}

func categoryDescription(cat catalog.Category) string {
	if cat.Label != "" {
		return cat.Label
	}
	return strings.ReplaceAll(cat.Name, "_", " ")
}

func (r *Router) handleStart(ctx context.Context, req *Request) error {
	name := strings.TrimSpace(req.FromName)
	if name == "" {
		name = "there"
	}
	lines := []tgui.H{
		tgui.H("🎬 Welcome to Movie Updates Bot, ") + tgui.Esc(name) + "!",
		"",
		tgui.B("Available Commands:"),
	}
	lines = append(lines, r.commandLines(req.FromID)...)

	kb := tgui.NewInline()
	for _, cat := range r.deps.Categories {
		icon := buttonIcons[cat.Name]
		if icon == "" {
			icon = "🎬"
		}
		kb.Row(tgui.Btn(icon+" "+categoryDescription(cat), cat.Name))
	}
	return r.deps.Replier.SendText(ctx, req.ChatID, tgui.Lines(lines...).String(), &transport.SendOptions{HTML: true, Markup: kb.Markup()})
}

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	lines := append([]tgui.H{tgui.B("🤖 Movie Bot Commands:")}, r.commandLines(req.FromID)...)
	return r.deps.Replier.SendText(ctx, req.ChatID, tgui.Lines(lines...).String(), &transport.SendOptions{HTML: true})
}

func (r *Router) commandLines(fromID int64) []tgui.H {
	owner := r.isOwner(fromID)
	var out []tgui.H
	for _, c := range r.Commands() {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		out = append(out, tgui.Esc(usage+" - "+c.Description))
	}
	return out
}

// browse replies with the top items of cat.
func (r *Router) browse(cat catalog.Category) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		_ = r.deps.Replier.Typing(ctx, req.ChatID)
		items, err := r.deps.Catalog.Fetch(ctx, cat)
		if err != nil {
			_ = r.deps.Replier.SendText(ctx, req.ChatID, fetchFailed, nil)
			return err
		}
		sent := 0
		for _, it := range items {
			if sent == r.opt.TopN {
				break
			}
			post, err := r.deps.Formatter.Format(it, cat)
			if err != nil {
				req.Log.Debug("item skipped")
				continue
			}
			if err := r.reply(ctx, req.ChatID, post); err != nil {
				return err
			}
			sent++
		}
		if sent == 0 {
			return r.deps.Replier.SendText(ctx, req.ChatID, "No movies found right now.", nil)
		}
		return nil
	}
}

func (r *Router) handleSearch(ctx context.Context, req *Request) error {
	query := strings.TrimSpace(strings.Join(req.Args, " "))
	if query == "" {
		return r.deps.Replier.SendText(ctx, req.ChatID, "Please provide a movie name. Example: /search Avengers", nil)
	}
	_ = r.deps.Replier.Typing(ctx, req.ChatID)
	items, err := r.deps.Catalog.Search(ctx, query)
	if err != nil {
		_ = r.deps.Replier.SendText(ctx, req.ChatID, fetchFailed, nil)
		return err
	}
	for _, it := range items {
		post, err := r.deps.Formatter.Format(it, catalog.Category{Name: "search"})
		if err != nil {
			continue
		}
		return r.reply(ctx, req.ChatID, post)
	}
	return r.deps.Replier.SendText(ctx, req.ChatID, fmt.Sprintf("No movies found for '%s'", query), nil)
}

// reply sends post as a photo when it has one, falling back to text when
// Telegram rejects the photo.
func (r *Router) reply(ctx context.Context, chatID int64, post transport.Post) error {
	opt := &transport.SendOptions{HTML: true}
	if post.PhotoURL != "" {
		err := r.deps.Replier.SendPhoto(ctx, chatID, post.PhotoURL, post.Text, opt)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return r.deps.Replier.SendText(ctx, chatID, post.Text, opt)
}

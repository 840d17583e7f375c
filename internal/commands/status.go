package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"moviebot/internal/storage"
	"moviebot/internal/task/scheduler"
	"moviebot/internal/transport"
	"moviebot/pkg/tgui"
)

// Status is what /status shows.
type Status struct {
	State     string
	Uptime    time.Duration
	DedupSize int
	Tasks     []scheduler.TaskInfo
	Recent    []storage.CycleRecord
}

type StatusSource interface {
	Status(ctx context.Context) Status
}

type StatusFunc func(ctx context.Context) Status

func (f StatusFunc) Status(ctx context.Context) Status { return f(ctx) }

func (r *Router) handleStatus(ctx context.Context, req *Request) error {
	if r.deps.Status == nil {
		return r.deps.Replier.SendText(ctx, req.ChatID, "status unavailable", nil)
	}
	st := r.deps.Status.Status(ctx)
	return r.deps.Replier.SendText(ctx, req.ChatID, renderStatus(st).String(), &transport.SendOptions{HTML: true})
}

func renderStatus(st Status) tgui.H {
	lines := []tgui.H{
		tgui.B("📊 Status"),
		tgui.Field("State", st.State),
		tgui.Field("Uptime", st.Uptime.Truncate(time.Second).String()),
		tgui.Field("Published IDs", strconv.Itoa(st.DedupSize)),
	}
	if len(st.Tasks) > 0 {
		lines = append(lines, "", tgui.B("Tasks"))
		for _, t := range st.Tasks {
			line := t.Name + ": runs " + strconv.Itoa(t.Runs)
			if !t.Next.IsZero() {
				line += ", next " + t.Next.Format("Jan 02 15:04")
			}
			if t.LastErr != "" {
				line += ", last error: " + t.LastErr
			}
			lines = append(lines, "• "+tgui.Esc(line))
		}
	}
	if len(st.Recent) > 0 {
		lines = append(lines, "", tgui.B("Recent cycles"))
		for _, c := range st.Recent {
			lines = append(lines, "• "+tgui.Esc(fmt.Sprintf("%s %s: %d/%d sent, %d failed, %d skipped",
				c.Started.Format("Jan 02 15:04"), c.Task, c.Succeeded, c.Attempted, c.Failed, c.Skipped)))
		}
	}
	return tgui.Lines(lines...)
}

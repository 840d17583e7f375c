package storage

import (
	"context"
	"time"

	"moviebot/internal/eventbus"
	logx "moviebot/pkg/logx"
)

// Recorder turns cycle events into journal rows.
type Recorder struct {
	store Store
	log   logx.Logger
	now   func() time.Time
}

func NewRecorder(store Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, log: log, now: time.Now}
}

// Run consumes bus events until ctx is done or the channel closes.
// Write errors are logged and never stop the loop.
func (r *Recorder) Run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Handle(ctx, ev); err != nil {
				r.log.Warn("journal write failed", logx.String("event", ev.Type), logx.Err(err))
			}
		}
	}
}

// Handle writes a single event. Unknown events are ignored.
func (r *Recorder) Handle(ctx context.Context, ev eventbus.Event) error {
	if r == nil || r.store == nil {
		return nil
	}
	at := ev.Time
	if at.IsZero() {
		at = r.now()
	}
	switch p := ev.Data.(type) {
	case eventbus.ItemPublished:
		return r.store.AppendPublication(ctx, Publication{
			At:       at,
			CycleID:  p.CycleID,
			ItemID:   p.ItemID,
			Title:    p.Title,
			Category: p.Category,
			Attempts: p.Attempts,
			OK:       true,
			TextOnly: p.TextOnly,
		})
	case eventbus.ItemFailed:
		return r.store.AppendPublication(ctx, Publication{
			At:       at,
			CycleID:  p.CycleID,
			ItemID:   p.ItemID,
			Title:    p.Title,
			Category: p.Category,
			Attempts: p.Attempts,
			Error:    p.Err,
		})
	case eventbus.CycleCompleted:
		return r.store.AppendCycle(ctx, CycleRecord{
			CycleID:   p.CycleID,
			Task:      p.Task,
			Started:   p.Started,
			TookMS:    p.Took.Milliseconds(),
			Attempted: p.Attempted,
			Succeeded: p.Succeeded,
			Skipped:   p.Skipped,
			Failed:    p.Failed,
		})
	}
	return nil
}

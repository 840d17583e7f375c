// Package cycle publishes a batch of discovered items with pacing and retries.
package cycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"moviebot/internal/catalog"
	"moviebot/internal/discovery"
	"moviebot/internal/eventbus"
	"moviebot/internal/transport"
	logx "moviebot/pkg/logx"
)

// Formatter renders an item into a post.
type Formatter interface {
	Format(it catalog.Item, cat catalog.Category) (transport.Post, error)
}

type Options struct {
	// Task names the scheduled task that produced the batch (events, logs).
	Task string
	// Pace is the pause between two published items.
	Pace time.Duration
	// Retries is the total number of delivery attempts per item (>= 1).
	Retries int
	// RetryBackoff is the fixed delay between attempts.
	RetryBackoff time.Duration
}

// ItemFailure describes an item that could not be delivered. Failed items
// stay claimed and are never offered again.
type ItemFailure struct {
	ItemID   int64
	Title    string
	Category string
	Attempts int
	Err      error
}

// Result summarizes one batch.
type Result struct {
	CycleID   uuid.UUID
	Attempted int
	Succeeded int
	// Skipped counts items the formatter rejected; they are not attempted.
	Skipped  int
	Failures []ItemFailure
	Started  time.Time
	Took     time.Duration
}

type Cycle struct {
	format Formatter
	pub    transport.Publisher
	bus    eventbus.Bus
	log    logx.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(f Formatter, p transport.Publisher, bus eventbus.Bus, log logx.Logger) *Cycle {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Cycle{format: f, pub: p, bus: bus, log: log, sleep: sleepCtx, now: time.Now}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PublishBatch delivers items in order. It never returns an error: per-item
// problems end up in Result. When ctx is canceled the remaining items are
// recorded as failed with the context error.
func (c *Cycle) PublishBatch(ctx context.Context, items []discovery.Candidate, opt Options) Result {
	if opt.Retries < 1 {
		opt.Retries = 1
	}
	res := Result{CycleID: uuid.New(), Started: c.now()}
	log := c.log.With(logx.String("cycle", res.CycleID.String()), logx.String("task", opt.Task))

	sent := false
	for i, cand := range items {
		it := cand.Item
		post, err := c.format.Format(it, cand.Category)
		if err != nil {
			res.Skipped++
			log.Warn("item skipped", logx.Int64("item_id", it.ID), logx.Err(err))
			continue
		}
		res.Attempted++

		if err := ctx.Err(); err != nil {
			c.fail(&res, log, cand, 0, err)
			continue
		}
		if sent {
			if err := c.sleep(ctx, opt.Pace); err != nil {
				c.fail(&res, log, cand, 0, err)
				continue
			}
		}
		sent = true

		attempts, textOnly, err := c.deliver(ctx, log, post, opt)
		if err != nil {
			c.fail(&res, log, cand, attempts, err)
			continue
		}
		res.Succeeded++
		log.Info("item published",
			logx.Int("n", i+1),
			logx.Int64("item_id", it.ID),
			logx.String("title", it.Title),
			logx.String("category", cand.Category.Name),
			logx.Int("attempts", attempts),
			logx.Bool("text_only", textOnly),
		)
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeItemPublished, Data: eventbus.ItemPublished{
			CycleID:  res.CycleID.String(),
			ItemID:   it.ID,
			Title:    it.Title,
			Category: cand.Category.Name,
			Attempts: attempts,
			TextOnly: textOnly,
		}})
	}

	res.Took = c.now().Sub(res.Started)
	log.Info("cycle completed",
		logx.Int("attempted", res.Attempted),
		logx.Int("succeeded", res.Succeeded),
		logx.Int("skipped", res.Skipped),
		logx.Int("failed", len(res.Failures)),
		logx.Duration("took", res.Took),
	)
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleCompleted, Data: eventbus.CycleCompleted{
		CycleID:   res.CycleID.String(),
		Task:      opt.Task,
		Attempted: res.Attempted,
		Succeeded: res.Succeeded,
		Skipped:   res.Skipped,
		Failed:    len(res.Failures),
		Started:   res.Started,
		Took:      res.Took,
	}})
	return res
}

// deliver sends post with up to opt.Retries attempts and a fixed backoff.
// A structural rejection of a photo post falls back to text once; that
// fallback does not use up an attempt.
func (c *Cycle) deliver(ctx context.Context, log logx.Logger, post transport.Post, opt Options) (attempts int, textOnly bool, err error) {
	tries := 0
	for {
		attempts++
		if textOnly {
			err = c.pub.PublishText(ctx, post)
		} else {
			err = c.pub.Publish(ctx, post)
		}
		if err == nil {
			return attempts, textOnly, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return attempts, textOnly, errors.Join(cerr, err)
		}
		structural := transport.IsStructural(err)
		if structural && !textOnly && post.PhotoURL != "" {
			log.Warn("photo rejected; sending text only", logx.Err(err))
			textOnly = true
			continue
		}
		tries++
		if structural || tries >= opt.Retries {
			return attempts, textOnly, err
		}
		log.Debug("publish failed; retrying", logx.Int("attempt", attempts), logx.Duration("backoff", opt.RetryBackoff), logx.Err(err))
		if serr := c.sleep(ctx, opt.RetryBackoff); serr != nil {
			return attempts, textOnly, errors.Join(serr, err)
		}
	}
}

func (c *Cycle) fail(res *Result, log logx.Logger, cand discovery.Candidate, attempts int, err error) {
	f := ItemFailure{
		ItemID:   cand.Item.ID,
		Title:    cand.Item.Title,
		Category: cand.Category.Name,
		Attempts: attempts,
		Err:      err,
	}
	res.Failures = append(res.Failures, f)
	log.Error("item failed",
		logx.Int64("item_id", f.ItemID),
		logx.String("title", f.Title),
		logx.Int("attempts", attempts),
		logx.Err(err),
	)
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeItemFailed, Data: eventbus.ItemFailed{
		CycleID:  res.CycleID.String(),
		ItemID:   f.ItemID,
		Title:    f.Title,
		Category: f.Category,
		Attempts: attempts,
		Err:      err.Error(),
	}})
}

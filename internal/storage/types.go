package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the journal.
//
// Driver values:
//   - "file":   JSON Lines files next to Path
//   - "sqlite": SQLite database at Path (modernc.org/sqlite, no cgo)
//
// An empty Driver or "none" disables the journal.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Publication records the outcome of one item.
type Publication struct {
	At       time.Time `json:"at"`
	CycleID  string    `json:"cycle_id"`
	ItemID   int64     `json:"item_id"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Attempts int       `json:"attempts"`
	OK       bool      `json:"ok"`
	TextOnly bool      `json:"text_only,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// CycleRecord summarizes one publish cycle.
type CycleRecord struct {
	CycleID   string    `json:"cycle_id"`
	Task      string    `json:"task"`
	Started   time.Time `json:"started"`
	TookMS    int64     `json:"took_ms"`
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
}

// Store is the journal API.
type Store interface {
	AppendPublication(ctx context.Context, p Publication) error
	AppendCycle(ctx context.Context, c CycleRecord) error
	// RecentCycles returns up to limit cycles, newest first.
	RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error)
	Close() error
}

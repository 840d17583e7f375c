package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "moviebot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite journal opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendPublication(ctx context.Context, p Publication) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if p.At.IsZero() {
		p.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO publications(at, cycle_id, item_id, title, category, attempts, ok, text_only, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		p.At.UTC().Format(time.RFC3339Nano), p.CycleID, p.ItemID, p.Title, p.Category,
		p.Attempts, boolInt(p.OK), boolInt(p.TextOnly), nullStr(p.Error),
	)
	return err
}

func (s *sqliteStore) AppendCycle(ctx context.Context, c CycleRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles(cycle_id, task, started, took_ms, attempted, succeeded, skipped, failed)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(cycle_id) DO NOTHING`,
		c.CycleID, c.Task, c.Started.UTC().Format(time.RFC3339Nano), c.TookMS,
		c.Attempted, c.Succeeded, c.Skipped, c.Failed,
	)
	return err
}

func (s *sqliteStore) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT cycle_id, task, started, took_ms, attempted, succeeded, skipped, failed
		 FROM cycles ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var (
			c       CycleRecord
			started string
		)
		if err := rows.Scan(&c.CycleID, &c.Task, &started, &c.TookMS, &c.Attempted, &c.Succeeded, &c.Skipped, &c.Failed); err != nil {
			return nil, err
		}
		c.Started, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, c)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "moviebot/pkg/logx"
)

// recentKeep bounds the in-memory cycle tail served by RecentCycles.
const recentKeep = 64

// fileStore writes JSON Lines.
//
// Files:
//   - <prefix>.publications.jsonl (one line per item outcome)
//   - <prefix>.cycles.jsonl       (one line per cycle)
//
// The cycle tail is replayed on open so /status survives restarts.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	pubFile   *os.File
	cycleFile *os.File
	recent    []CycleRecord // oldest first
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	cyclesPath := prefix + ".cycles.jsonl"
	recent, err := replayCycles(cyclesPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("cycle journal replay failed", logx.String("path", cyclesPath), logx.Err(err))
	}

	pf, err := os.OpenFile(prefix+".publications.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	cf, err := os.OpenFile(cyclesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = pf.Close()
		return nil, err
	}

	return &fileStore{
		log:       log,
		pubFile:   pf,
		cycleFile: cf,
		recent:    recent,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.pubFile != nil {
		err1 = s.pubFile.Close()
		s.pubFile = nil
	}
	if s.cycleFile != nil {
		err2 = s.cycleFile.Close()
		s.cycleFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendPublication(ctx context.Context, p Publication) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubFile == nil {
		return errors.New("publication journal closed")
	}
	return json.NewEncoder(s.pubFile).Encode(p)
}

func (s *fileStore) AppendCycle(ctx context.Context, c CycleRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycleFile == nil {
		return errors.New("cycle journal closed")
	}
	if err := json.NewEncoder(s.cycleFile).Encode(c); err != nil {
		return err
	}
	s.recent = appendBounded(s.recent, c)
	return nil
}

func (s *fileStore) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(limit, len(s.recent))
	out := make([]CycleRecord, 0, n)
	for i := len(s.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

func appendBounded(list []CycleRecord, c CycleRecord) []CycleRecord {
	list = append(list, c)
	if len(list) > recentKeep {
		list = append(list[:0:0], list[len(list)-recentKeep:]...)
	}
	return list
}

func replayCycles(path string) ([]CycleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []CycleRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var c CycleRecord
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil || c.CycleID == "" {
			continue
		}
		out = appendBounded(out, c)
	}
	return out, sc.Err()
}

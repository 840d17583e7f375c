// Package dedup tracks which catalog items were already claimed for
// publication during this process lifetime.
package dedup

// Store is a grow-only set of item ids. It has no eviction and no capacity
// bound. It is not safe for concurrent use: all access goes through the
// scheduler's single worker.
type Store struct {
	ids map[int64]struct{}
}

func New() *Store {
	return &Store{ids: map[int64]struct{}{}}
}

func (s *Store) Contains(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Add claims id. Adding an id twice is a no-op.
func (s *Store) Add(id int64) {
	s.ids[id] = struct{}{}
}

func (s *Store) Len() int { return len(s.ids) }

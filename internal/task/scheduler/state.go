package scheduler

import (
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// State remembers the calendar date each time-of-day trigger last ran so a
// trigger fires at most once per day, even across clock adjustments.
type State struct {
	mu   sync.Mutex
	last map[string]string
}

func NewState() *State {
	return &State{last: map[string]string{}}
}

// RanOn reports whether key already ran on the calendar date of t.
func (s *State) RanOn(key string, t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[key] == t.Format(dateLayout)
}

// Mark records that key ran on the calendar date of t.
func (s *State) Mark(key string, t time.Time) {
	s.mu.Lock()
	s.last[key] = t.Format(dateLayout)
	s.mu.Unlock()
}

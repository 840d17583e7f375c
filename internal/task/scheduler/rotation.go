package scheduler

import "sync"

// Rotation hands out task names round-robin: tick n selects names[n % len].
type Rotation struct {
	mu    sync.Mutex
	names []string
	tick  uint64
}

func NewRotation(names ...string) *Rotation {
	return &Rotation{names: append([]string(nil), names...)}
}

// Next returns the name for the current tick and advances. It returns "" when
// the rotation is empty.
func (r *Rotation) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.names) == 0 {
		return ""
	}
	n := r.names[r.tick%uint64(len(r.names))]
	r.tick++
	return n
}

// Tick is the number of names handed out so far.
func (r *Rotation) Tick() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tick
}

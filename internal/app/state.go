package app

import "sync/atomic"

// State is the app lifecycle: Initializing -> Validating -> Running, then
// Stopping -> Stopped.
type State int32

const (
	StateInitializing State = iota
	StateValidating
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateValidating:
		return "validating"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type stateBox struct{ v atomic.Int32 }

func (b *stateBox) get() State  { return State(b.v.Load()) }
func (b *stateBox) set(s State) { b.v.Store(int32(s)) }

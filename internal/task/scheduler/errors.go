package scheduler

import (
	"errors"
	"fmt"
)

// ErrUnknownTask is returned by RunNow for names that were never registered.
var ErrUnknownTask = errors.New("unknown task")

// LoopError wraps a job failure. Panic is set when the job panicked; Err is
// then a synthesized error describing the panic value.
type LoopError struct {
	Task  string
	Err   error
	Panic any
}

func (e *LoopError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("task %s panicked: %v", e.Task, e.Panic)
	}
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e *LoopError) Unwrap() error { return e.Err }

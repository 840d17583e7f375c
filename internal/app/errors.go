package app

import "fmt"

// Startup stages reported by StartupError.
const (
	StageConfig   = "config"
	StageInit     = "init"
	StageValidate = "validate"
	StageProbe    = "probe"
)

// StartupError is fatal: the process logs it and exits with status 1.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed at %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

func startupErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StartupError{Stage: stage, Err: err}
}

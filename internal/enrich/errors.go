package enrich

import "errors"

// SetupError means the run could not start at all: bad credentials,
// missing input, unreadable state. Nothing was mutated, so the process
// should exit non-zero rather than report a partial run.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return "enrich: setup: " + e.Err.Error()
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// NewSetupError wraps err as fatal setup failure.
func NewSetupError(err error) *SetupError {
	return &SetupError{Err: err}
}

// IsSetup reports whether err is a setup failure.
func IsSetup(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

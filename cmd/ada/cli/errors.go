package cli

import (
	"errors"

	"github.com/adaharness/ada/cmd/ada/cli/harness"
)

// SilentError wraps an error whose message was already shown to the user;
// main skips printing it again.
type SilentError struct {
	err error
}

// NewSilentError wraps err.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string { return e.err.Error() }
func (e *SilentError) Unwrap() error { return e.err }

// ExitCode maps an Execute error to the process exit code: 2 for preflight
// failures, 130 for operator interrupts, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var preflight *harness.PreflightError
	if errors.As(err, &preflight) {
		return 2
	}
	if errors.Is(err, harness.ErrInterrupted) {
		return 130
	}
	return 1
}

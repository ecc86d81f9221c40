package session

import "fmt"

// SpawnError reports that an external tool process could not be started at
// all — the binary is missing, not executable, or the invocation is invalid.
//
// Spawn failures are fatal for the step that produced them: they are surfaced
// to the operator immediately and never retried automatically, unlike stalls
// (recovered in place) or non-zero exits (retryable by the operator).
type SpawnError struct {
	// Command is the executable that failed to start.
	Command string

	// Err is the underlying error from process creation.
	Err error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying process-creation error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

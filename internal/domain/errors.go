package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound     = errors.New("credit account not found")
	ErrEmptyInstruction    = errors.New("instruction is required")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrProjectNotFound     = errors.New("project not found")
	ErrProviderUnavailable = errors.New("cli provider unavailable")
	ErrRepoNotInitialized  = errors.New("project repository not initialized")
	ErrRequestFinalized    = errors.New("user request already finalized")
	ErrRequestNotFound     = errors.New("user request not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrUnknownCLI          = errors.New("unknown cli type")
)

// ProviderExecutionError is returned when an adapter stream fails mid-flight
// (process crash, broken pipe, malformed transport). It is retryable.
type ProviderExecutionError struct {
	CLI    CLIType
	Stderr string
	Err    error
}

func (e *ProviderExecutionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s execution failed: %v: %s", e.CLI, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s execution failed: %v", e.CLI, e.Err)
}

func (e *ProviderExecutionError) Unwrap() error {
	return e.Err
}

package ports

import (
	"context"
	"iter"

	"github.com/buildloop/buildloop/internal/domain"
)

// CLIAdapter wraps one external coding-agent binary.
//
// ExecuteWithStreaming returns a lazy single-pass sequence: one message per
// provider event, ending after the provider's terminal result event. A
// transport failure is yielded as a non-nil error and ends the sequence.
type CLIAdapter interface {
	CLIType() domain.CLIType
	CheckAvailability(ctx context.Context) domain.Availability
	ExecuteWithStreaming(ctx context.Context, req domain.ExecuteRequest) iter.Seq2[domain.Message, error]
	IsModelSupported(model string) bool
}

// SystemPrompter composes the system prompt handed to a provider
type SystemPrompter interface {
	SystemPrompt(firstRun bool, subAgent string) string
}

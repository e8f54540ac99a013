package ports

import (
	"context"

	"github.com/buildloop/buildloop/internal/domain"
)

// Broadcaster pushes events to the subscribers of a project.
// Delivery is at-most-once.
type Broadcaster interface {
	Broadcast(ctx context.Context, projectID string, event domain.Event) error
}

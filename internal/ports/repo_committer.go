package ports

import (
	"context"

	"github.com/buildloop/buildloop/internal/domain"
)

// RepoCommitter stages and commits every change in a working tree
type RepoCommitter interface {
	CommitAll(ctx context.Context, repoPath, message string) (domain.CommitResult, error)
}

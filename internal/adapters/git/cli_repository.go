package git

import (
	"context"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/ports"
)

// DefaultAuthorName and DefaultAuthorEmail attribute commits to the agent
const (
	DefaultAuthorEmail = "ai-assistant@buildloop.local"
	DefaultAuthorName  = "AI Assistant"
)

// CLIRepository implements ports.RepoCommitter using local git commands
type CLIRepository struct {
	authorEmail string
	authorName  string
}

// Verify interface compliance at compile time
var _ ports.RepoCommitter = (*CLIRepository)(nil)

// NewCLIRepository creates a new CLIRepository committing as the agent
func NewCLIRepository() *CLIRepository {
	return &CLIRepository{
		authorEmail: DefaultAuthorEmail,
		authorName:  DefaultAuthorName,
	}
}

// CommitAll implements RepoCommitter.CommitAll
func (r *CLIRepository) CommitAll(ctx context.Context, repoPath, message string) (domain.CommitResult, error) {
	return commitAll(ctx, repoPath, message, r.authorName, r.authorEmail)
}

// IsGitRepo reports whether path is inside a git work tree and returns its root
func (r *CLIRepository) IsGitRepo(path string) (bool, string) {
	return isGitRepo(path)
}

// InitRepository creates an empty repository at path
func (r *CLIRepository) InitRepository(ctx context.Context, path string) error {
	return initRepository(ctx, path)
}

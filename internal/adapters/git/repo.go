package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
)

// isGitRepo checks if the given path is within a git repository.
// Returns true and the repository root path if it is.
func isGitRepo(path string) (bool, string) {
	logging.Logger.Debug("Checking if directory is git repo", "path", path)

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = path

	output, err := cmd.Output()
	if err != nil {
		logging.Logger.Debug("Not a git repository", "path", path)
		return false, ""
	}

	return true, strings.TrimSpace(string(output))
}

func initRepository(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		return nil
	}

	cmd := exec.CommandContext(ctx, "git", "init")
	cmd.Dir = path
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git init failed: %w\nOutput: %s", err, string(output))
	}

	logging.Logger.Info("Repository initialized", "path", path)
	return nil
}

// commitAll stages everything and commits it. A clean tree is not an error:
// the result reports Success=false and no hash.
func commitAll(ctx context.Context, repoPath, message, authorName, authorEmail string) (domain.CommitResult, error) {
	if ok, _ := isGitRepo(repoPath); !ok {
		return domain.CommitResult{}, fmt.Errorf("%w: %s is not a git repository", domain.ErrRepoNotInitialized, repoPath)
	}
	if _, err := runGit(ctx, repoPath, nil, "add", "-A"); err != nil {
		return domain.CommitResult{}, err
	}

	staged, err := runGit(ctx, repoPath, nil, "diff", "--cached", "--name-only")
	if err != nil {
		return domain.CommitResult{}, err
	}
	files := splitLines(staged)
	if len(files) == 0 {
		logging.Logger.Debug("Nothing to commit", "repo", repoPath)
		return domain.CommitResult{Success: false}, nil
	}

	// Identity comes from the environment so repositories without user.name still commit
	env := []string{
		"GIT_AUTHOR_NAME=" + authorName,
		"GIT_AUTHOR_EMAIL=" + authorEmail,
		"GIT_COMMITTER_NAME=" + authorName,
		"GIT_COMMITTER_EMAIL=" + authorEmail,
	}
	if _, err := runGit(ctx, repoPath, env, "commit", "--no-verify", "-m", message); err != nil {
		return domain.CommitResult{}, err
	}

	hash, err := runGit(ctx, repoPath, nil, "rev-parse", "HEAD")
	if err != nil {
		return domain.CommitResult{}, err
	}

	logging.Logger.Info("Committed changes", "repo", repoPath, "files", len(files))
	return domain.CommitResult{
		Author:       authorName,
		FilesChanged: files,
		Hash:         strings.TrimSpace(hash),
		Success:      true,
	}, nil
}

func runGit(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		logging.Logger.Error("Git command failed", "args", args, "error", err, "output", string(output))
		return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(string(output)), err)
	}
	return string(output), nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

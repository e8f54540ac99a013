package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildloop/buildloop/internal/domain"
)

func setupTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()

	runGit := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Test",
			"GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=Test",
			"GIT_COMMITTER_EMAIL=test@test.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v failed: %s", args, out)
	}

	runGit("init")
	readme := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("# Test"), 0644))
	runGit("add", "README.md")
	runGit("commit", "-m", "Initial commit")

	return dir
}

func TestCommitAll_CommitsChanges(t *testing.T) {
	repoPath := setupTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, "main.go"), []byte("package main\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, "README.md"), []byte("# Changed"), 0644))

	repo := NewCLIRepository()
	result, err := repo.CommitAll(context.Background(), repoPath, "🤖 claude: add main")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Hash, 40)
	assert.ElementsMatch(t, []string{"README.md", "main.go"}, result.FilesChanged)

	cmd := exec.Command("git", "log", "-1", "--format=%an|%s")
	cmd.Dir = repoPath
	out, err := cmd.Output()
	require.NoError(t, err)
	assert.Equal(t, "AI Assistant|🤖 claude: add main", strings.TrimSpace(string(out)))
}

func TestCommitAll_CleanTree(t *testing.T) {
	repoPath := setupTestRepo(t)

	result, err := NewCLIRepository().CommitAll(context.Background(), repoPath, "noop")

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.Hash)
}

func TestCommitAll_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := NewCLIRepository().CommitAll(context.Background(), t.TempDir(), "x")
	assert.ErrorIs(t, err, domain.ErrRepoNotInitialized)
}

func TestInitRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	path := filepath.Join(t.TempDir(), "p1", "repo")
	repo := NewCLIRepository()

	require.NoError(t, repo.InitRepository(context.Background(), path))
	ok, _ := repo.IsGitRepo(path)
	assert.True(t, ok)

	// Idempotent
	require.NoError(t, repo.InitRepository(context.Background(), path))
}

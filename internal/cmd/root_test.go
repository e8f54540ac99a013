package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildloop/buildloop/internal/config"
	"github.com/buildloop/buildloop/internal/domain"
)

func parseCLI(t *testing.T, settings *config.Settings, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("BUILDLOOP_HOME", home)
	for _, key := range []string{"API_PORT", "BUILDLOOP_DEBUG", "BUILDLOOP_DEBUG_FILE", "BUILDLOOP_MAX_LOG_FILES"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	var cli CLI
	cli.SetSettings(settings)
	parser, err := kong.New(&cli,
		kong.Name("buildloop"),
		kong.Exit(func(int) { t.Fatal("unexpected exit") }),
		kong.Bind(&cli),
	)
	require.NoError(t, err)

	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return &cli, ctx
}

func TestAfterApply_ResolvesConfigAndContainer(t *testing.T) {
	port := 9191
	cli, _ := parseCLI(t, &config.Settings{APIPort: &port}, "projects", "list")

	require.NotNil(t, cli.Container)
	assert.Equal(t, 9191, cli.Config.APIPort)
	assert.Equal(t, filepath.Join(config.GetHomeDir(), "buildloop.db"), cli.Config.DBPath)
}

func TestAfterApply_SettingsMaxLogFiles(t *testing.T) {
	maxFiles := 7
	cli, _ := parseCLI(t, &config.Settings{MaxLogFiles: &maxFiles}, "projects", "list")
	assert.Equal(t, 7, cli.MaxLogFiles)
}

func TestAfterApply_FlagBeatsSettings(t *testing.T) {
	maxFiles := 7
	cli, _ := parseCLI(t, &config.Settings{MaxLogFiles: &maxFiles}, "--max-log-files", "3", "projects", "list")
	assert.Equal(t, 3, cli.MaxLogFiles)
}

func TestProjectsAdd_CreatesProjectAndAccount(t *testing.T) {
	repoPath := filepath.Join(t.TempDir(), "repo")
	cli, ctx := parseCLI(t, nil, "projects", "add", "demo", "--cli", "codex", "--repo-path", repoPath, "--owner", "alice")
	require.NoError(t, ctx.Run())

	projects, err := cli.Container.ProjectService.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "demo", projects[0].Name)
	assert.Equal(t, domain.CLICodex, projects[0].PreferredCLI)
	assert.True(t, projects[0].FallbackEnabled)
	assert.Equal(t, repoPath, projects[0].RepoPath)

	account, _, err := cli.Container.CreditService.Balance(context.Background(), "alice", 5)
	require.NoError(t, err)
	assert.Equal(t, "20", account.Balance.String())
}

func TestProjectsSet_UpdatesPreferences(t *testing.T) {
	cli, ctx := parseCLI(t, nil, "projects", "add", "demo", "--repo-path", filepath.Join(t.TempDir(), "repo"))
	require.NoError(t, ctx.Run())

	projects, err := cli.Container.ProjectService.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	id := projects[0].ID

	set := ProjectsSetCmd{CLI: "gemini", Fallback: "off", ID: id, Model: "gemini-2.5-pro"}
	require.NoError(t, set.Run(cli))

	project, err := cli.Container.ProjectService.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.CLIGemini, project.PreferredCLI)
	assert.Equal(t, "gemini-2.5-pro", project.SelectedModel)
	assert.False(t, project.FallbackEnabled)
}

func TestCreditsGrant(t *testing.T) {
	cli, ctx := parseCLI(t, nil, "credits", "grant", "5", "--owner", "bob")
	require.NoError(t, ctx.Run())

	account, txs, err := cli.Container.CreditService.Balance(context.Background(), "bob", 10)
	require.NoError(t, err)
	assert.Equal(t, "25", account.Balance.String())
	require.NotEmpty(t, txs)
}

func TestCreditsGrant_RejectsInvalidAmount(t *testing.T) {
	cli, _ := parseCLI(t, nil, "credits", "balance")
	grant := CreditsGrantCmd{Amount: "lots", Owner: "bob"}
	assert.ErrorContains(t, grant.Run(cli), "invalid amount")
}

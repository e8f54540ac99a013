package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/ports"
)

func newManager(store *testStore, b ports.Broadcaster, g Guardrail, adapters ...*fakeAdapter) *CLIManager {
	m := make(map[domain.CLIType]ports.CLIAdapter, len(adapters))
	for _, a := range adapters {
		m[a.cli] = a
	}
	return NewCLIManager(m, store, b, NewActivityLog(), g)
}

func paramsFor(project domain.Project, cli domain.CLIType) ExecuteParams {
	return ExecuteParams{
		CLI:             cli,
		ConversationID:  "conv-1",
		FallbackEnabled: true,
		Instruction:     "add a footer component",
		Model:           "model-a",
		ProjectID:       project.ID,
		ProjectPath:     project.RepoPath,
		SessionID:       "",
	}
}

func succeed(int, domain.ExecuteRequest) ([]domain.Message, error) {
	return []domain.Message{assistantText("done"), resultMessage(0.1, 2, false)}, nil
}

func TestExecuteInstruction_PersistsAndBroadcastsVisibleMessages(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store, "owner-1")
	b := &recordingBroadcaster{}
	claude := newFakeAdapter(domain.CLIClaude, succeed)

	res, err := newManager(store, b, Guardrail{}, claude).ExecuteInstruction(context.Background(), paramsFor(project, domain.CLIClaude))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, domain.CLIClaude, res.CLIUsed)
	assert.Equal(t, 2, res.MessagesCount)
	assert.InDelta(t, 0.1, res.CostUSD, 1e-9)
	assert.Equal(t, 2, res.NumTurns)
	assert.False(t, res.FallbackUsed)

	stored, err := store.RecentMessages(context.Background(), ports.MessageQuery{ProjectID: project.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	for _, m := range stored {
		assert.Equal(t, "conv-1", m.ConversationID)
	}

	// The hidden result is persisted but never broadcast
	broadcast := b.messages()
	require.Len(t, broadcast, 1)
	assert.Equal(t, "done", broadcast[0].Content)
}

func TestExecuteInstruction_RerunYieldsDisjointMessages(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store, "owner-1")
	claude := newFakeAdapter(domain.CLIClaude, succeed)
	manager := newManager(store, nil, Guardrail{}, claude)
	ctx := context.Background()

	_, err := manager.ExecuteInstruction(ctx, paramsFor(project, domain.CLIClaude))
	require.NoError(t, err)
	first, err := store.RecentMessages(ctx, ports.MessageQuery{ProjectID: project.ID})
	require.NoError(t, err)

	_, err = manager.ExecuteInstruction(ctx, paramsFor(project, domain.CLIClaude))
	require.NoError(t, err)
	all, err := store.RecentMessages(ctx, ports.MessageQuery{ProjectID: project.ID})
	require.NoError(t, err)
	require.Len(t, all, 4)

	firstByID := make(map[string]domain.Message)
	for _, m := range first {
		firstByID[m.ID] = m
	}
	carried := 0
	for _, m := range all {
		if prev, ok := firstByID[m.ID]; ok {
			carried++
			assert.Equal(t, prev.Content, m.Content)
			assert.Equal(t, prev.Metadata, m.Metadata)
		}
	}
	assert.Equal(t, len(first), carried)
}

func TestExecuteInstruction_FallbackOnUnavailable(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store, "owner-1")

	cursor := newFakeAdapter(domain.CLICursor, succeed)
	cursor.avail = domain.Availability{Available: false, Error: "cursor-agent not found"}
	claude := newFakeAdapter(domain.CLIClaude, succeed)

	p := paramsFor(project, domain.CLICursor)
	p.Model = "gpt-5"
	p.SubAgent = "frontend"
	res, err := newManager(store, nil, Guardrail{}, cursor, claude).ExecuteInstruction(context.Background(), p)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, domain.CLICursor, res.FallbackFrom)
	assert.Equal(t, domain.CLICursor, res.CLIAttempted)
	assert.Equal(t, domain.CLIClaude, res.CLIUsed)

	assert.Empty(t, cursor.calls())
	calls := claude.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "frontend", calls[0].SubAgent)
	assert.Empty(t, calls[0].Model, "an unsupported model is dropped on fallback")
}

func TestExecuteInstruction_FallbackAtMostOneHop(t *testing.T) {
	brokenPipe := func(int, domain.ExecuteRequest) ([]domain.Message, error) {
		return []domain.Message{assistantText("starting")}, &domain.ProviderExecutionError{CLI: domain.CLIClaude, Err: errors.New("broken pipe")}
	}

	tests := []struct {
		name          string
		cli           domain.CLIType
		fallback      bool
		claudeAvail   bool
		wantClaude    int
		wantErr       bool
		wantSuccess   bool
		wantAttempted domain.CLIType
	}{
		{name: "default unavailable never falls back to itself", cli: domain.CLIClaude, fallback: true, claudeAvail: false, wantAttempted: domain.CLIClaude},
		{name: "fallback disabled", cli: domain.CLICodex, fallback: false, claudeAvail: true, wantAttempted: domain.CLICodex},
		{name: "default unavailable too", cli: domain.CLICodex, fallback: true, claudeAvail: false, wantAttempted: domain.CLICodex},
		{name: "fallback run errors", cli: domain.CLICodex, fallback: true, claudeAvail: true, wantClaude: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			project := seedProject(t, store, "owner-1")

			codex := newFakeAdapter(domain.CLICodex, succeed)
			codex.avail = domain.Availability{Error: "codex not configured"}
			claude := newFakeAdapter(domain.CLIClaude, brokenPipe)
			claude.avail = domain.Availability{Available: tt.claudeAvail, Configured: tt.claudeAvail}

			p := paramsFor(project, tt.cli)
			p.FallbackEnabled = tt.fallback
			res, err := newManager(store, nil, Guardrail{}, codex, claude).ExecuteInstruction(context.Background(), p)

			assert.Len(t, claude.calls(), tt.wantClaude)
			assert.Empty(t, codex.calls())
			if tt.wantErr {
				var perr *domain.ProviderExecutionError
				require.ErrorAs(t, err, &perr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantAttempted, res.CLIAttempted)
			assert.NotEmpty(t, res.Error)
			assert.False(t, res.FallbackUsed)
		})
	}
}

func TestExecuteInstruction_ProviderErrorFallsBackOnce(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store, "owner-1")

	gemini := newFakeAdapter(domain.CLIGemini, func(int, domain.ExecuteRequest) ([]domain.Message, error) {
		return nil, &domain.ProviderExecutionError{CLI: domain.CLIGemini, Err: errors.New("exit status 1")}
	})
	claude := newFakeAdapter(domain.CLIClaude, succeed)

	res, err := newManager(store, nil, Guardrail{}, gemini, claude).ExecuteInstruction(context.Background(), paramsFor(project, domain.CLIGemini))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Len(t, gemini.calls(), 1)
	assert.Len(t, claude.calls(), 1)
}

func TestExecuteInstruction_UnknownCLI(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store, "owner-1")

	p := paramsFor(project, domain.CLIQwen)
	p.FallbackEnabled = false
	res, err := newManager(store, nil, Guardrail{}).ExecuteInstruction(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "CLI type qwen not implemented", res.Error)
}

func TestExecuteInstruction_SuccessDetermination(t *testing.T) {
	tests := []struct {
		name     string
		messages []domain.Message
		want     bool
		wantErr  string
	}{
		{
			name:     "explicit success wins over an earlier error message",
			messages: []domain.Message{errorMessage("transient"), resultMessage(0.1, 1, false)},
			want:     true,
		},
		{
			name:     "explicit failure",
			messages: []domain.Message{assistantText("hm"), resultMessage(0.1, 1, true)},
			want:     false,
			wantErr:  "Execution failed",
		},
		{
			name: "error subtype",
			messages: []domain.Message{domain.NewMessage(domain.RoleSystem, domain.MessageResult, "max turns", map[string]any{
				domain.MetaIsError: false,
				domain.MetaSubtype: "error_max_turns",
			})},
			want:    false,
			wantErr: "max turns",
		},
		{
			name:     "absence of error",
			messages: []domain.Message{assistantText("ok")},
			want:     true,
		},
		{
			name:     "error message without explicit signal",
			messages: []domain.Message{assistantText("ok"), errorMessage("quota exceeded")},
			want:     false,
			wantErr:  "quota exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			project := seedProject(t, store, "owner-1")
			codex := newFakeAdapter(domain.CLICodex, func(int, domain.ExecuteRequest) ([]domain.Message, error) {
				return tt.messages, nil
			})

			res, err := newManager(store, nil, Guardrail{}, codex).ExecuteInstruction(context.Background(), paramsFor(project, domain.CLICodex))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Success)
			assert.Equal(t, tt.wantErr, res.Error)
		})
	}
}

func TestExecuteInstruction_Guardrail(t *testing.T) {
	tests := []struct {
		name       string
		cost       float64
		turns      int
		wantNotice bool
	}{
		{name: "below both", cost: 0.12, turns: 3},
		{name: "cost at threshold", cost: 0.75, turns: 1, wantNotice: true},
		{name: "turns at threshold", cost: 0.01, turns: 10, wantNotice: true},
		{name: "both above", cost: 2, turns: 40, wantNotice: true},
	}

	for _, tt := range tests {
		for _, failed := range []bool{false, true} {
			t.Run(tt.name, func(t *testing.T) {
				store := newTestStore(t)
				project := seedProject(t, store, "owner-1")
				b := &recordingBroadcaster{}
				claude := newFakeAdapter(domain.CLIClaude, func(int, domain.ExecuteRequest) ([]domain.Message, error) {
					return []domain.Message{resultMessage(tt.cost, tt.turns, failed)}, nil
				})

				res, err := newManager(store, b, Guardrail{CostUSD: 0.75, NumTurns: 10}, claude).
					ExecuteInstruction(context.Background(), paramsFor(project, domain.CLIClaude))
				require.NoError(t, err)

				assert.Equal(t, tt.wantNotice, res.CostNoticeTriggered)
				assert.Equal(t, !failed, res.Success, "the notice never changes success")

				notices := 0
				for _, m := range b.messages() {
					if m.Metadata[domain.MetaType] == "cost_notice" {
						notices++
					}
				}
				if tt.wantNotice {
					assert.Equal(t, 1, notices)
				} else {
					assert.Zero(t, notices)
				}
			})
		}
	}
}

func TestExecuteInstruction_UpdatesActivityLog(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store, "owner-1")
	claude := newFakeAdapter(domain.CLIClaude, func(int, domain.ExecuteRequest) ([]domain.Message, error) {
		edit := domain.NewMessage(domain.RoleAssistant, domain.MessageToolUse, "Editing: src/App.tsx", map[string]any{
			domain.MetaChangesMade:   true,
			domain.MetaFilesModified: []string{"src/App.tsx"},
		})
		return []domain.Message{edit, resultMessage(0.2, 3, false)}, nil
	})

	p := paramsFor(project, domain.CLIClaude)
	p.SubAgent = "frontend"
	res, err := newManager(store, nil, Guardrail{}, claude).ExecuteInstruction(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, res.HasChanges)
	assert.Equal(t, []string{"src/App.tsx"}, res.FilesModified)

	data, err := os.ReadFile(filepath.Join(project.RepoPath, "context", "session-summary.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "cli=claude | sub_agent=frontend | success=true | changes=true | files=[src/App.tsx] | cost=$0.20 | turns=3")
}

func TestCheckCLIStatus(t *testing.T) {
	claude := newFakeAdapter(domain.CLIClaude, succeed)
	manager := newManager(nil, nil, Guardrail{}, claude)

	status := manager.CheckCLIStatus(context.Background(), domain.CLIClaude, "model-a")
	assert.True(t, status.Ready())
	assert.True(t, status.ModelValid)

	status = manager.CheckCLIStatus(context.Background(), domain.CLIClaude, "gpt-4")
	assert.False(t, status.ModelValid)
	assert.Contains(t, status.ModelWarning, "gpt-4")
	assert.Equal(t, []string{"model-a"}, status.SuggestedModels)

	status = manager.CheckCLIStatus(context.Background(), domain.CLICursor, "")
	assert.False(t, status.Available)
	assert.Equal(t, "CLI type cursor not implemented", status.Error)

	assert.Equal(t, []domain.CLIType{domain.CLIClaude}, manager.CLIs())
}

func TestExecuteInstruction_ActivityLogRecordsShellChanges(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store, "owner-1")
	claude := newFakeAdapter(domain.CLIClaude, func(int, domain.ExecuteRequest) ([]domain.Message, error) {
		run := domain.NewMessage(domain.RoleAssistant, domain.MessageToolUse, "Running: npm install", map[string]any{
			domain.MetaChangesMade: true,
		})
		return []domain.Message{run, resultMessage(0.1, 1, false)}, nil
	})

	res, err := newManager(store, nil, Guardrail{}, claude).ExecuteInstruction(context.Background(), paramsFor(project, domain.CLIClaude))
	require.NoError(t, err)
	assert.True(t, res.HasChanges)
	assert.Empty(t, res.FilesModified)

	data, err := os.ReadFile(filepath.Join(project.RepoPath, "context", "session-summary.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "success=true | changes=true | files=[]")
}

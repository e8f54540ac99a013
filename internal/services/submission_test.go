package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/ports"
	portsmocks "github.com/buildloop/buildloop/internal/ports/mocks"
)

type submissionFixture struct {
	b         *recordingBroadcaster
	claude    *fakeAdapter
	committer *portsmocks.MockRepoCommitter
	credits   *CreditService
	project   domain.Project
	store     *testStore
	svc       *SubmissionService
}

func newSubmissionFixture(t *testing.T, freeCredits int, script func(int, domain.ExecuteRequest) ([]domain.Message, error)) *submissionFixture {
	t.Helper()
	f := &submissionFixture{
		b:         &recordingBroadcaster{},
		claude:    newFakeAdapter(domain.CLIClaude, script),
		committer: portsmocks.NewMockRepoCommitter(t),
		store:     newTestStore(t),
	}
	f.project = seedProject(t, f.store, "owner-1")
	f.credits = NewCreditService(f.store, 1000, freeCredits)

	manager := newManager(f.store, f.b, Guardrail{CostUSD: 0.75, NumTurns: 10}, f.claude)
	executions := NewExecutionService(f.store, manager, f.committer, f.b, f.credits, testExecutionConfig())
	f.svc = NewSubmissionService(context.Background(), f.store, NewCLIStatusService(manager), f.credits, executions, f.b, NewAgentPicker(nil), t.TempDir())
	t.Cleanup(f.svc.Wait)
	return f
}

func waitOutcome(t *testing.T, accepted *Accepted) Outcome {
	t.Helper()
	select {
	case outcome := <-accepted.Done:
		return outcome
	case <-time.After(10 * time.Second):
		t.Fatal("execution did not finish")
	}
	return Outcome{}
}

func TestSubmit_FooterScenario(t *testing.T) {
	f := newSubmissionFixture(t, 20, func(int, domain.ExecuteRequest) ([]domain.Message, error) {
		toolUse := domain.NewMessage(domain.RoleAssistant, domain.MessageToolUse, "Writing: src/Footer.tsx", map[string]any{
			domain.MetaChangesMade:   true,
			domain.MetaFilesModified: []string{"src/Footer.tsx"},
			domain.MetaToolName:      "Write",
		})
		toolResult := domain.NewMessage(domain.RoleSystem, domain.MessageToolResult, "File created", nil)
		return []domain.Message{assistantText("Adding a footer"), toolUse, toolResult, resultMessage(0.12, 3, false)}, nil
	})
	f.committer.EXPECT().CommitAll(mock.Anything, f.project.RepoPath, "claude: add a footer component").
		Return(domain.CommitResult{Author: "AI Assistant", FilesChanged: []string{"src/Footer.tsx"}, Hash: "f00ter", Success: true}, nil).
		Once()

	accepted, err := f.svc.Submit(context.Background(), SubmitRequest{
		Instruction: "add a footer component",
		ProjectID:   f.project.ID,
		RequestType: domain.RequestAct,
	})
	require.NoError(t, err)
	assert.Equal(t, "frontend", accepted.SubAgent, "picked from the instruction keywords")
	assert.True(t, accepted.Charged.Equal(decimal.NewFromInt(1)))

	outcome := waitOutcome(t, accepted)
	assert.Equal(t, domain.SessionCompleted, outcome.Status)

	calls := f.claude.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, accepted.SessionID, calls[0].SessionID)
	assert.Equal(t, "add a footer component", calls[0].Instruction)

	session, err := f.store.GetSession(context.Background(), accepted.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, session.Status)

	request, err := f.store.GetUserRequest(context.Background(), accepted.RequestID)
	require.NoError(t, err)
	require.NotNil(t, request.IsSuccessful)
	assert.True(t, *request.IsSuccessful)
	assert.Equal(t, domain.CLIClaude, request.CLITypeUsed)
	require.NotNil(t, request.ResultMetadata)
	assert.False(t, request.ResultMetadata.CostNoticeTriggered)
	assert.True(t, request.ResultMetadata.HasChanges)
	assert.Equal(t, 1, int(f.store.countRows(t, "commits")))

	commits := 0
	for _, e := range f.b.types() {
		if e == domain.EventCommit {
			commits++
		}
	}
	assert.Equal(t, 1, commits)
	for _, m := range f.b.messages() {
		assert.NotEqual(t, "cost_notice", m.Metadata[domain.MetaType])
	}
}

func TestSubmit_RejectedDebitLeavesNoRows(t *testing.T) {
	f := newSubmissionFixture(t, 3, succeed)

	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		Instruction: strings.Repeat("a", 4*4500),
		ProjectID:   f.project.ID,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)

	for _, table := range []string{"sessions", "messages", "user_requests"} {
		assert.Zero(t, f.store.countRows(t, table), table)
	}
	account, txs, err := f.credits.Balance(context.Background(), f.project.OwnerID, 10)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(3)))
	assert.Nil(t, findTransaction(txs, domain.TxSpend))
	assert.Empty(t, f.claude.calls())
}

func TestSubmit_RejectsUnreadyCLIBeforeDebit(t *testing.T) {
	f := newSubmissionFixture(t, 20, succeed)
	f.claude.avail = domain.Availability{Available: true, Error: "not logged in"}

	_, err := f.svc.Submit(context.Background(), SubmitRequest{Instruction: "hello", ProjectID: f.project.ID})
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "not logged in")

	assert.Zero(t, f.store.countRows(t, "credit_accounts"))
	assert.Zero(t, f.store.countRows(t, "user_requests"))
}

func TestSubmit_Validation(t *testing.T) {
	f := newSubmissionFixture(t, 20, succeed)

	_, err := f.svc.Submit(context.Background(), SubmitRequest{Instruction: "   ", ProjectID: f.project.ID})
	assert.ErrorIs(t, err, domain.ErrEmptyInstruction)

	_, err = f.svc.Submit(context.Background(), SubmitRequest{Instruction: "hi", ProjectID: "missing"})
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)

	_, err = f.svc.Submit(context.Background(), SubmitRequest{CLI: "copilot", Instruction: "hi", ProjectID: f.project.ID})
	assert.ErrorIs(t, err, domain.ErrUnknownCLI)
}

func TestSubmit_RecordsUserMessage(t *testing.T) {
	f := newSubmissionFixture(t, 20, succeed)
	fallback := false

	accepted, err := f.svc.Submit(context.Background(), SubmitRequest{
		ConversationID:  "conv-9",
		FallbackEnabled: &fallback,
		Images:          []domain.Image{{Name: "mock.png", Path: "/tmp/mock.png"}},
		Instruction:     "match this mockup",
		ProjectID:       f.project.ID,
		RequestType:     domain.RequestChat,
		SubAgent:        "Backend",
	})
	require.NoError(t, err)
	waitOutcome(t, accepted)

	assert.Equal(t, "backend", accepted.SubAgent)
	msgs, err := f.store.RecentMessages(context.Background(), ports.MessageQuery{ConversationID: "conv-9", ProjectID: f.project.ID})
	require.NoError(t, err)

	var user *domain.Message
	for i := range msgs {
		if msgs[i].ID == accepted.UserMessageID {
			user = &msgs[i]
		}
	}
	require.NotNil(t, user)
	assert.Equal(t, "match this mockup\n\nImage #1 path: /tmp/mock.png", user.Content)
	assert.Equal(t, "chat_instruction", user.Metadata[domain.MetaType])
	assert.Equal(t, false, user.Metadata["fallback_enabled"])
	assert.Equal(t, true, user.Metadata["has_images"])

	calls := f.claude.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "backend", calls[0].SubAgent)
	require.Len(t, calls[0].Images, 1)
}

func TestSubmit_InfersRepoPath(t *testing.T) {
	store := newTestStore(t)
	root := t.TempDir()
	project := domain.Project{ID: "p-infer", Name: "infer", OwnerID: "owner-2", Status: "active"}
	require.NoError(t, store.CreateProject(context.Background(), project))

	claude := newFakeAdapter(domain.CLIClaude, succeed)
	manager := newManager(store, nil, Guardrail{}, claude)
	credits := NewCreditService(store, 1000, 20)
	executions := NewExecutionService(store, manager, portsmocks.NewMockRepoCommitter(t), nil, credits, testExecutionConfig())
	svc := NewSubmissionService(context.Background(), store, NewCLIStatusService(manager), credits, executions, nil, nil, root)
	t.Cleanup(svc.Wait)

	_, err := svc.Submit(context.Background(), SubmitRequest{Instruction: "hi", ProjectID: project.ID})
	require.ErrorIs(t, err, domain.ErrRepoNotInitialized)

	repoPath := filepath.Join(root, project.ID, "repo")
	require.NoError(t, os.MkdirAll(repoPath, 0755))

	accepted, err := svc.Submit(context.Background(), SubmitRequest{Instruction: "hi", ProjectID: project.ID})
	require.NoError(t, err)
	waitOutcome(t, accepted)

	stored, err := store.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, repoPath, stored.RepoPath)
	assert.Equal(t, repoPath, claude.calls()[0].ProjectPath)
}

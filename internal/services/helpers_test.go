package services

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/buildloop/buildloop/internal/adapters/storage"
	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/ports"
)

// fakeAdapter is a scripted ports.CLIAdapter
type fakeAdapter struct {
	avail  domain.Availability
	cli    domain.CLIType
	models []string

	mu       sync.Mutex
	requests []domain.ExecuteRequest
	// script returns the messages of the nth call (0-based) and an optional
	// transport error yielded after them
	script func(call int, req domain.ExecuteRequest) ([]domain.Message, error)
}

var _ ports.CLIAdapter = (*fakeAdapter)(nil)

func newFakeAdapter(cli domain.CLIType, script func(int, domain.ExecuteRequest) ([]domain.Message, error)) *fakeAdapter {
	return &fakeAdapter{
		avail:  domain.Availability{Available: true, Configured: true, DefaultModels: []string{"model-a"}},
		cli:    cli,
		models: []string{"model-a"},
		script: script,
	}
}

func (f *fakeAdapter) CLIType() domain.CLIType { return f.cli }

func (f *fakeAdapter) CheckAvailability(context.Context) domain.Availability { return f.avail }

func (f *fakeAdapter) IsModelSupported(model string) bool {
	for _, m := range f.models {
		if m == model {
			return true
		}
	}
	return false
}

func (f *fakeAdapter) ExecuteWithStreaming(_ context.Context, req domain.ExecuteRequest) iter.Seq2[domain.Message, error] {
	f.mu.Lock()
	call := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	msgs, err := f.script(call, req)
	return func(yield func(domain.Message, error) bool) {
		for _, m := range msgs {
			if !yield(m, nil) {
				return
			}
		}
		if err != nil {
			yield(domain.Message{}, err)
		}
	}
}

func (f *fakeAdapter) calls() []domain.ExecuteRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ExecuteRequest(nil), f.requests...)
}

// recordingBroadcaster keeps every broadcast event
type recordingBroadcaster struct {
	events []domain.Event
	mu     sync.Mutex
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, _ string, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBroadcaster) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

func (b *recordingBroadcaster) messages() []domain.MessageEventData {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.MessageEventData
	for _, e := range b.events {
		if data, ok := e.Data.(domain.MessageEventData); ok {
			out = append(out, data)
		}
	}
	return out
}

// scriptedExecutor is an InstructionExecutor failing a fixed number of times
type scriptedExecutor struct {
	calls    int
	failures int
	mu       sync.Mutex
	params   []ExecuteParams
	panics   bool
	result   domain.Result
}

func (e *scriptedExecutor) ExecuteInstruction(_ context.Context, p ExecuteParams) (domain.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.params = append(e.params, p)
	if e.panics {
		panic("adapter exploded")
	}
	if e.calls <= e.failures {
		return domain.Result{}, &domain.ProviderExecutionError{CLI: domain.CLIClaude, Err: errors.New("broken pipe")}
	}
	return e.result, nil
}

type testStore struct {
	*storage.SQLiteRepository
	path string
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buildloop.db")
	repo, err := storage.NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return &testStore{SQLiteRepository: repo, path: path}
}

// countRows counts the rows of a table through a separate connection
func (s *testStore) countRows(t *testing.T, table string) int64 {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	var n int64
	require.NoError(t, db.Table(table).Count(&n).Error)
	return n
}

func seedProject(t *testing.T, store *testStore, owner string) domain.Project {
	t.Helper()
	project := domain.Project{
		FallbackEnabled: true,
		ID:              "proj-" + uuid.NewString(),
		Name:            "demo",
		OwnerID:         owner,
		PreferredCLI:    domain.CLIClaude,
		RepoPath:        t.TempDir(),
		Status:          "active",
	}
	require.NoError(t, store.CreateProject(context.Background(), project))
	return project
}

func assistantText(text string) domain.Message {
	return domain.NewMessage(domain.RoleAssistant, domain.MessageChat, text, nil)
}

func resultMessage(cost float64, turns int, isError bool) domain.Message {
	return domain.NewMessage(domain.RoleSystem, domain.MessageResult, "", map[string]any{
		domain.MetaEventType:    "result",
		domain.MetaHiddenFromUI: true,
		domain.MetaIsError:      isError,
		domain.MetaNumTurns:     turns,
		domain.MetaTotalCostUSD: cost,
	})
}

func errorMessage(text string) domain.Message {
	return domain.NewMessage(domain.RoleAssistant, domain.MessageError, text, nil)
}

// recordJob stores the rows of an accepted submission and returns its job
func recordJob(t *testing.T, store *testStore, project domain.Project, instruction string, reqType domain.RequestType) Job {
	t.Helper()
	msg := domain.NewMessage(domain.RoleUser, domain.MessageChat, instruction, nil)
	msg.ConversationID = "conv-1"
	msg.ProjectID = project.ID
	session := domain.Session{
		CLIType:     domain.CLIClaude,
		ID:          uuid.NewString(),
		Instruction: instruction,
		ProjectID:   project.ID,
		Status:      domain.SessionActive,
	}
	msg.SessionID = session.ID
	request := domain.UserRequest{
		ConversationID: "conv-1",
		ID:             uuid.NewString(),
		Instruction:    instruction,
		ProjectID:      project.ID,
		RequestType:    reqType,
		SessionID:      session.ID,
		UserMessageID:  msg.ID,
	}
	require.NoError(t, store.CreateSubmission(context.Background(), ports.Submission{
		Request:     request,
		Session:     session,
		UserMessage: msg,
	}))

	return Job{
		CLI:            domain.CLIClaude,
		ConversationID: "conv-1",
		Instruction:    instruction,
		OwnerID:        project.OwnerID,
		ProjectID:      project.ID,
		ProjectPath:    project.RepoPath,
		RequestID:      request.ID,
		RequestType:    reqType,
		SessionID:      session.ID,
		UserMessageID:  msg.ID,
	}
}

package ports

import (
	"context"
	"time"

	"github.com/buildloop/buildloop/internal/domain"
)

// ProjectRepository persists projects
type ProjectRepository interface {
	CreateProject(ctx context.Context, project domain.Project) error
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error)
	UpdateProjectPreferences(ctx context.Context, id string, cli domain.CLIType, model string, fallbackEnabled bool) error
	UpdateProjectRepoPath(ctx context.Context, id, repoPath string) error
}

// MessageQuery selects a window of a project conversation
type MessageQuery struct {
	ConversationID string
	Limit          int
	ProjectID      string
}

// MessageRepository is the append-only conversation store.
// Each append commits on its own.
type MessageRepository interface {
	AppendMessage(ctx context.Context, msg domain.Message) error
	// RecentMessages returns the newest messages first
	RecentMessages(ctx context.Context, q MessageQuery) ([]domain.Message, error)
}

// SessionRepository reads and transitions sessions
type SessionRepository interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	MarkSessionRunning(ctx context.Context, id string) error
}

// UserRequestRepository reads and transitions user requests
type UserRequestRepository interface {
	GetUserRequest(ctx context.Context, id string) (*domain.UserRequest, error)
	MarkRequestStarted(ctx context.Context, id string, cli domain.CLIType, model string) error
	// RecentUserRequests returns the newest completed requests of a project first
	RecentUserRequests(ctx context.Context, projectID string, limit int) ([]domain.UserRequest, error)
}

// CommitRepository records agent commits
type CommitRepository interface {
	CreateCommit(ctx context.Context, commit domain.Commit) error
}

// Submission is everything created atomically when an instruction is accepted
type Submission struct {
	Request     domain.UserRequest
	Session     domain.Session
	UserMessage domain.Message
}

// Finalization is the terminal write of an execution
type Finalization struct {
	CompletedAt    time.Time
	ErrorMessage   string
	RequestID      string
	ResultMetadata *domain.ResultMetadata
	SessionID      string
	Success        bool
	// SystemMessage is appended in the same transaction when set
	SystemMessage *domain.Message
}

// ExecutionStore performs the multi-row writes of the execution lifecycle
type ExecutionStore interface {
	CreateSubmission(ctx context.Context, s Submission) error
	// FinalizeExecution writes the session and request terminal state in one
	// transaction. It returns domain.ErrRequestFinalized when the request was
	// already completed.
	FinalizeExecution(ctx context.Context, f Finalization) error
}

// Store is the composite persistence interface
type Store interface {
	CommitRepository
	CreditLedger
	ExecutionStore
	MessageRepository
	ProjectRepository
	SessionRepository
	UserRequestRepository
	Close() error
}

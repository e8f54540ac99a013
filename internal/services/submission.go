package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/ports"
)

// SubmitRequest is an instruction submitted for a project
type SubmitRequest struct {
	// CLI overrides the project's preferred CLI when set
	CLI            string
	ConversationID string
	// FallbackEnabled overrides the project setting when set
	FallbackEnabled *bool
	Images          []domain.Image
	Instruction     string
	IsInitialPrompt bool
	ProjectID       string
	RequestType     domain.RequestType
	SubAgent        string
}

// Accepted describes a submission whose execution started in the background
type Accepted struct {
	Charged        decimal.Decimal
	CLI            domain.CLIType
	ConversationID string
	// Done receives the terminal outcome once the execution finishes
	Done          <-chan Outcome
	RequestID     string
	SessionID     string
	SubAgent      string
	UserMessageID string
}

// JobRunner executes an accepted job
type JobRunner interface {
	Run(ctx context.Context, job Job) Outcome
}

// ReadinessChecker reports whether a CLI can take work for a project
type ReadinessChecker interface {
	Status(ctx context.Context, projectID string, cli domain.CLIType, model string) domain.CLIStatus
}

// CreditCharger debits submissions and reverses a debit when the
// submission could not be recorded
type CreditCharger interface {
	Charge(ctx context.Context, ownerID string, requestType domain.RequestType, instruction string) (decimal.Decimal, error)
	Reverse(ctx context.Context, ownerID string, amount decimal.Decimal) error
}

// SubmissionRepository is the persistence a submission needs
type SubmissionRepository interface {
	ports.ExecutionStore
	ports.ProjectRepository
}

// SubmissionService accepts instructions: it resolves the project, guards
// readiness, debits credits, records the submission and starts the execution
type SubmissionService struct {
	baseCtx      context.Context
	broadcaster  ports.Broadcaster
	credits      CreditCharger
	picker       *AgentPicker
	projectsRoot string
	readiness    ReadinessChecker
	repo         SubmissionRepository
	runner       JobRunner
	wg           sync.WaitGroup
}

// NewSubmissionService creates a SubmissionService. Executions run under
// baseCtx, which should only be cancelled on shutdown.
func NewSubmissionService(
	baseCtx context.Context,
	repo SubmissionRepository,
	readiness ReadinessChecker,
	credits CreditCharger,
	runner JobRunner,
	broadcaster ports.Broadcaster,
	picker *AgentPicker,
	projectsRoot string,
) *SubmissionService {
	return &SubmissionService{
		baseCtx:      baseCtx,
		broadcaster:  broadcaster,
		credits:      credits,
		picker:       picker,
		projectsRoot: projectsRoot,
		readiness:    readiness,
		repo:         repo,
		runner:       runner,
	}
}

// Submit validates and records an instruction, then executes it in the
// background. Nothing is written when the CLI is not ready or credits are
// insufficient.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*Accepted, error) {
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return nil, domain.ErrEmptyInstruction
	}
	if req.RequestType == "" {
		req.RequestType = domain.RequestAct
	}

	project, err := s.repo.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	cli, err := s.resolveCLI(req.CLI, project.PreferredCLI)
	if err != nil {
		return nil, err
	}

	repoPath, err := s.resolveRepoPath(ctx, project)
	if err != nil {
		return nil, err
	}

	status := s.readiness.Status(ctx, project.ID, cli, project.SelectedModel)
	if !status.Ready() {
		reason := status.Error
		if reason == "" {
			reason = "not initialized yet"
		}
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrProviderUnavailable, cli, reason)
	}

	charged, err := s.credits.Charge(ctx, project.OwnerID, req.RequestType, instruction)
	if err != nil {
		return nil, err
	}

	fallback := project.FallbackEnabled
	if req.FallbackEnabled != nil {
		fallback = *req.FallbackEnabled
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	subAgent := strings.ToLower(strings.TrimSpace(req.SubAgent))
	if subAgent == "" && s.picker != nil {
		subAgent = s.picker.Pick(instruction)
	}

	sub := s.newSubmission(project, req, instruction, cli, fallback, conversationID, subAgent)
	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		if rerr := s.credits.Reverse(ctx, project.OwnerID, charged); rerr != nil {
			logging.Logger.Error("Failed to reverse charge", "owner_id", project.OwnerID, "amount", charged.String(), "error", rerr)
		}
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}

	logging.Logger.Info("Submission accepted",
		"project_id", project.ID,
		"request_id", sub.Request.ID,
		"type", req.RequestType,
		"cli", cli,
		"sub_agent", subAgent,
		"charged", charged.String(),
	)

	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(ctx, project.ID, domain.MessageEvent(sub.UserMessage)); err != nil {
			logging.Logger.Warn("Broadcast failed", "project_id", project.ID, "error", err)
		}
	}

	job := Job{
		CLI:             cli,
		ConversationID:  conversationID,
		FallbackEnabled: fallback,
		Images:          req.Images,
		Instruction:     instruction,
		IsInitialPrompt: req.IsInitialPrompt,
		Model:           project.SelectedModel,
		OwnerID:         project.OwnerID,
		ProjectID:       project.ID,
		ProjectPath:     repoPath,
		RequestID:       sub.Request.ID,
		RequestType:     req.RequestType,
		SessionID:       sub.Session.ID,
		SubAgent:        subAgent,
		UserMessageID:   sub.UserMessage.ID,
	}
	done := s.spawn(job)

	return &Accepted{
		Charged:        charged,
		CLI:            cli,
		ConversationID: conversationID,
		Done:           done,
		RequestID:      sub.Request.ID,
		SessionID:      sub.Session.ID,
		SubAgent:       subAgent,
		UserMessageID:  sub.UserMessage.ID,
	}, nil
}

// Wait blocks until every background execution has finished
func (s *SubmissionService) Wait() {
	s.wg.Wait()
}

func (s *SubmissionService) spawn(job Job) <-chan Outcome {
	done := make(chan Outcome, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logging.Logger.Error("Execution task crashed", "request_id", job.RequestID, "panic", r)
			}
		}()
		done <- s.runner.Run(s.baseCtx, job)
	}()
	return done
}

func (s *SubmissionService) resolveCLI(requested string, preferred domain.CLIType) (domain.CLIType, error) {
	if requested != "" {
		return domain.ParseCLIType(requested)
	}
	if preferred == "" {
		return domain.DefaultCLI, nil
	}
	cli, err := domain.ParseCLIType(string(preferred))
	if err != nil {
		logging.Logger.Warn("Unknown preferred CLI, using default", "cli", preferred)
		return domain.DefaultCLI, nil
	}
	return cli, nil
}

// resolveRepoPath returns the project's repository, inferring
// <projects root>/<id>/repo when none is recorded
func (s *SubmissionService) resolveRepoPath(ctx context.Context, project *domain.Project) (string, error) {
	if project.RepoPath != "" {
		return project.RepoPath, nil
	}
	if s.projectsRoot == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrRepoNotInitialized, project.ID)
	}

	inferred := filepath.Join(s.projectsRoot, project.ID, "repo")
	info, err := os.Stat(inferred)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrRepoNotInitialized, project.ID)
	}

	if err := s.repo.UpdateProjectRepoPath(ctx, project.ID, inferred); err != nil {
		logging.Logger.Warn("Failed to persist inferred repo path", "project_id", project.ID, "error", err)
	}
	project.RepoPath = inferred
	return inferred, nil
}

func (s *SubmissionService) newSubmission(
	project *domain.Project,
	req SubmitRequest,
	instruction string,
	cli domain.CLIType,
	fallback bool,
	conversationID string,
	subAgent string,
) ports.Submission {
	now := time.Now().UTC()

	imagePaths := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		if img.Path != "" {
			imagePaths = append(imagePaths, img.Path)
		} else if img.Name != "" {
			imagePaths = append(imagePaths, img.Name)
		}
	}
	content := instruction
	if len(imagePaths) > 0 {
		refs := make([]string, 0, len(imagePaths))
		for i, p := range imagePaths {
			refs = append(refs, fmt.Sprintf("Image #%d path: %s", i+1, p))
		}
		content += "\n\n" + strings.Join(refs, "\n")
	}

	userMessage := domain.NewMessage(domain.RoleUser, domain.MessageChat, content, map[string]any{
		"cli_preference":   string(cli),
		"fallback_enabled": fallback,
		"has_images":       len(req.Images) > 0,
		"image_paths":      imagePaths,
		"sub_agent":        subAgent,
		domain.MetaType:    string(req.RequestType) + "_instruction",
	})
	userMessage.ConversationID = conversationID
	userMessage.ProjectID = project.ID

	session := domain.Session{
		CLIType:     cli,
		ID:          uuid.NewString(),
		Instruction: instruction,
		Model:       project.SelectedModel,
		ProjectID:   project.ID,
		StartedAt:   now,
		Status:      domain.SessionActive,
	}
	userMessage.SessionID = session.ID

	return ports.Submission{
		Request: domain.UserRequest{
			ConversationID: conversationID,
			CreatedAt:      now,
			ID:             uuid.NewString(),
			Instruction:    instruction,
			ProjectID:      project.ID,
			RequestType:    req.RequestType,
			SessionID:      session.ID,
			UserMessageID:  userMessage.ID,
		},
		Session:     session,
		UserMessage: userMessage,
	}
}

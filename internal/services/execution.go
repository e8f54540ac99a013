package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/ports"
)

const (
	planFirstDirective = "Before making any changes, write a brief plan (max 6 bullets, under 10 lines) naming exact files to touch and minimal steps. " +
		"Then proceed to implement using minimal reads/writes and concise chat output."
	historyPreamble  = "You are continuing an ongoing coding session. Reference the recent conversation history below before acting.\n"
	commitSummaryLen = 100
)

// Job is one accepted instruction executed in the background
type Job struct {
	CLI             domain.CLIType
	ConversationID  string
	FallbackEnabled bool
	Images          []domain.Image
	Instruction     string
	IsInitialPrompt bool
	Model           string
	OwnerID         string
	ProjectID       string
	ProjectPath     string
	RequestID       string
	RequestType     domain.RequestType
	SessionID       string
	SubAgent        string
	UserMessageID   string
}

// ExecutionConfig tunes the execution task
type ExecutionConfig struct {
	HistoryLimit      int
	MaxRetries        int
	PlanFirstMinChars int
	RetryDelay        time.Duration
}

// InstructionExecutor runs one instruction against a CLI
type InstructionExecutor interface {
	ExecuteInstruction(ctx context.Context, p ExecuteParams) (domain.Result, error)
}

// CreditRefunder returns a credit after a failed execution
type CreditRefunder interface {
	Refund(ctx context.Context, ownerID string, requestType domain.RequestType) error
}

// ExecutionRepository is the persistence the execution task needs
type ExecutionRepository interface {
	ports.CommitRepository
	ports.ExecutionStore
	ports.MessageRepository
	ports.SessionRepository
	ports.UserRequestRepository
}

// ExecutionService runs the session state machine of a job:
// active -> running -> completed | failed
type ExecutionService struct {
	broadcaster ports.Broadcaster
	cfg         ExecutionConfig
	committer   ports.RepoCommitter
	credits     CreditRefunder
	executor    InstructionExecutor
	repo        ExecutionRepository
}

// NewExecutionService creates an ExecutionService
func NewExecutionService(
	repo ExecutionRepository,
	executor InstructionExecutor,
	committer ports.RepoCommitter,
	broadcaster ports.Broadcaster,
	credits CreditRefunder,
	cfg ExecutionConfig,
) *ExecutionService {
	return &ExecutionService{
		broadcaster: broadcaster,
		cfg:         cfg,
		committer:   committer,
		credits:     credits,
		executor:    executor,
		repo:        repo,
	}
}

// Outcome is the terminal state reported by Run
type Outcome struct {
	Error  string
	Status domain.SessionStatus
}

// completionData is the payload of the act_complete / chat_complete event
type completionData struct {
	Error     string               `json:"error,omitempty"`
	RequestID string               `json:"request_id,omitempty"`
	SessionID string               `json:"session_id"`
	Status    domain.SessionStatus `json:"status"`
}

// Run executes job to a terminal state. It always ends by broadcasting the
// completion event.
func (s *ExecutionService) Run(ctx context.Context, job Job) Outcome {
	outcome := s.execute(ctx, job)

	_, complete := job.RequestType.Events()
	s.broadcast(context.WithoutCancel(ctx), job.ProjectID, domain.NewEvent(complete, completionData{
		Error:     outcome.Error,
		RequestID: job.RequestID,
		SessionID: job.SessionID,
		Status:    outcome.Status,
	}))

	logging.Logger.Info("Execution finished",
		"request_id", job.RequestID,
		"session_id", job.SessionID,
		"type", job.RequestType,
		"status", outcome.Status,
	)
	return outcome
}

func (s *ExecutionService) execute(ctx context.Context, job Job) (outcome Outcome) {
	// Writes outlive a shutdown so the terminal state is always recorded
	dbCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			logging.Logger.Error("Execution panicked", "request_id", job.RequestID, "panic", r, "stack", string(debug.Stack()))
			outcome = s.failWithError(dbCtx, job, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := s.repo.MarkSessionRunning(dbCtx, job.SessionID); err != nil {
		return s.failWithError(dbCtx, job, err)
	}
	if job.RequestID != "" {
		if err := s.repo.MarkRequestStarted(dbCtx, job.RequestID, job.CLI, job.Model); err != nil {
			logging.Logger.Warn("Failed to mark request started", "request_id", job.RequestID, "error", err)
		}
	}

	start, _ := job.RequestType.Events()
	s.broadcast(dbCtx, job.ProjectID, domain.NewEvent(start, map[string]any{
		"instruction": job.Instruction,
		"request_id":  job.RequestID,
		"session_id":  job.SessionID,
	}))

	result, err := s.executeWithRetry(ctx, job, s.buildPayload(dbCtx, job))
	if err != nil {
		return s.failWithError(dbCtx, job, err)
	}

	if !result.Success {
		return s.failWithResult(dbCtx, job, result)
	}

	if job.RequestType == domain.RequestAct && result.HasChanges {
		s.commit(dbCtx, job, result)
	}

	err = s.repo.FinalizeExecution(dbCtx, ports.Finalization{
		RequestID:      job.RequestID,
		ResultMetadata: result.Metadata(),
		SessionID:      job.SessionID,
		Success:        true,
	})
	if errors.Is(err, domain.ErrRequestFinalized) {
		logging.Logger.Warn("Request already finalized", "request_id", job.RequestID)
		return Outcome{Status: domain.SessionCompleted}
	}
	if err != nil {
		return s.failWithError(dbCtx, job, fmt.Errorf("failed to finalize execution: %w", err))
	}
	return Outcome{Status: domain.SessionCompleted}
}

// buildPayload prepends the conversation history and the plan-first directive
func (s *ExecutionService) buildPayload(ctx context.Context, job Job) string {
	payload := job.Instruction

	if !job.IsInitialPrompt {
		if history := s.history(ctx, job); history != "" {
			payload = historyPreamble +
				"<conversation_history>\n" + history + "\n</conversation_history>\n\n" +
				"Latest user instruction: \n" + job.Instruction
		}
	}

	if s.cfg.PlanFirstMinChars > 0 && utf8.RuneCountInString(job.Instruction) >= s.cfg.PlanFirstMinChars {
		payload = planFirstDirective + "\n\n" + payload
	}
	return payload
}

// history renders the most recent visible user/assistant messages, oldest first
func (s *ExecutionService) history(ctx context.Context, job Job) string {
	limit := s.cfg.HistoryLimit
	if limit <= 0 {
		return ""
	}

	recent, err := s.repo.RecentMessages(ctx, ports.MessageQuery{
		ConversationID: job.ConversationID,
		Limit:          limit * 5,
		ProjectID:      job.ProjectID,
	})
	if err != nil {
		logging.Logger.Warn("Failed to load conversation history", "project_id", job.ProjectID, "error", err)
		return ""
	}

	var picked []domain.Message
	for _, msg := range recent {
		if msg.ID == job.UserMessageID || msg.IsHidden() {
			continue
		}
		if msg.Role != domain.RoleUser && msg.Role != domain.RoleAssistant {
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		picked = append(picked, msg)
		if len(picked) >= limit {
			break
		}
	}
	slices.Reverse(picked)

	lines := make([]string, 0, len(picked))
	for _, msg := range picked {
		role := "Assistant"
		if msg.Role == domain.RoleUser {
			role = "User"
		}
		lines = append(lines, role+":\n"+strings.TrimSpace(msg.Content))
	}
	return strings.Join(lines, "\n")
}

// executeWithRetry retries when the manager returns an error. An unsuccessful
// result is not retried.
func (s *ExecutionService) executeWithRetry(ctx context.Context, job Job, payload string) (domain.Result, error) {
	params := ExecuteParams{
		CLI:             job.CLI,
		ConversationID:  job.ConversationID,
		FallbackEnabled: job.FallbackEnabled,
		Images:          job.Images,
		Instruction:     payload,
		IsInitialPrompt: job.IsInitialPrompt,
		Model:           job.Model,
		ProjectID:       job.ProjectID,
		ProjectPath:     job.ProjectPath,
		SessionID:       job.SessionID,
		SubAgent:        job.SubAgent,
	}

	for attempt := 0; ; attempt++ {
		result, err := s.executor.ExecuteInstruction(ctx, params)
		if err == nil {
			return result, nil
		}
		if attempt >= s.cfg.MaxRetries {
			return result, err
		}

		logging.Logger.Warn("Execution attempt failed, retrying",
			"request_id", job.RequestID,
			"attempt", attempt+1,
			"delay", s.cfg.RetryDelay,
			"error", err,
		)
		timer := time.NewTimer(s.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, fmt.Errorf("%w (retry aborted: %v)", err, ctx.Err())
		case <-timer.C:
		}
	}
}

// commit records the agent's changes. A commit failure does not fail the run.
func (s *ExecutionService) commit(ctx context.Context, job Job, result domain.Result) {
	message := fmt.Sprintf("%s: %s", result.CLIUsed, summarize(job.Instruction, commitSummaryLen))

	cr, err := s.committer.CommitAll(ctx, job.ProjectPath, message)
	if err != nil {
		logging.Logger.Warn("Commit failed", "project_id", job.ProjectID, "error", err)
		return
	}
	if !cr.Success {
		logging.Logger.Debug("No changes to commit", "project_id", job.ProjectID)
		return
	}

	record := domain.Commit{
		Author:       cr.Author,
		CreatedAt:    time.Now().UTC(),
		FilesChanged: cr.FilesChanged,
		Hash:         cr.Hash,
		ID:           uuid.NewString(),
		Message:      message,
		ProjectID:    job.ProjectID,
		SessionID:    job.SessionID,
	}
	if err := s.repo.CreateCommit(ctx, record); err != nil {
		logging.Logger.Warn("Failed to record commit", "hash", cr.Hash, "error", err)
	}

	s.broadcast(ctx, job.ProjectID, domain.NewEvent(domain.EventCommit, map[string]any{
		"commit_hash":   cr.Hash,
		"files_changed": len(cr.FilesChanged),
		"message":       message,
	}))
}

// failWithResult records a run the provider reported as failed
func (s *ExecutionService) failWithResult(ctx context.Context, job Job, result domain.Result) Outcome {
	errText := result.Error
	if errText == "" {
		errText = "Failed to execute instruction"
	}

	cli := result.CLIAttempted
	if cli == "" {
		cli = job.CLI
	}
	msg := s.errorMessage(job, errText, map[string]any{
		"cli_attempted": string(cli),
		domain.MetaType: string(job.RequestType) + "_error",
	})

	err := s.repo.FinalizeExecution(ctx, ports.Finalization{
		ErrorMessage:   errText,
		RequestID:      job.RequestID,
		ResultMetadata: result.Metadata(),
		SessionID:      job.SessionID,
		SystemMessage:  &msg,
	})
	switch {
	case errors.Is(err, domain.ErrRequestFinalized):
		logging.Logger.Warn("Request already finalized", "request_id", job.RequestID)
		return Outcome{Error: errText, Status: domain.SessionFailed}
	case err != nil:
		return s.failWithError(ctx, job, fmt.Errorf("failed to finalize execution: %w", err))
	}

	s.broadcast(ctx, job.ProjectID, domain.MessageEvent(msg))
	return Outcome{Error: errText, Status: domain.SessionFailed}
}

// failWithError records a run ended by an error that survived retries and
// refunds one credit
func (s *ExecutionService) failWithError(ctx context.Context, job Job, cause error) Outcome {
	errText := cause.Error()
	logging.Logger.Error("Execution failed", "request_id", job.RequestID, "session_id", job.SessionID, "error", cause)

	prefix := "Execution failed: "
	if job.RequestType == domain.RequestChat {
		prefix = "Chat execution failed: "
	}
	msg := s.errorMessage(job, prefix+errText, map[string]any{
		domain.MetaType: string(job.RequestType) + "_error",
	})

	err := s.repo.FinalizeExecution(ctx, ports.Finalization{
		ErrorMessage:  errText,
		RequestID:     job.RequestID,
		SessionID:     job.SessionID,
		SystemMessage: &msg,
	})
	if errors.Is(err, domain.ErrRequestFinalized) {
		logging.Logger.Warn("Request already finalized, skipping refund", "request_id", job.RequestID)
		return Outcome{Error: errText, Status: domain.SessionFailed}
	}
	if err != nil {
		logging.Logger.Error("Failed to record execution failure", "request_id", job.RequestID, "error", err)
	}

	if job.OwnerID != "" && s.credits != nil {
		if rerr := s.credits.Refund(ctx, job.OwnerID, job.RequestType); rerr != nil {
			logging.Logger.Error("Refund failed", "owner_id", job.OwnerID, "request_id", job.RequestID, "error", rerr)
		}
	}

	if err == nil {
		s.broadcast(ctx, job.ProjectID, domain.MessageEvent(msg))
	}
	return Outcome{Error: errText, Status: domain.SessionFailed}
}

func (s *ExecutionService) errorMessage(job Job, content string, metadata map[string]any) domain.Message {
	msg := domain.NewMessage(domain.RoleAssistant, domain.MessageError, content, metadata)
	msg.ConversationID = job.ConversationID
	msg.ProjectID = job.ProjectID
	msg.SessionID = job.SessionID
	return msg
}

func (s *ExecutionService) broadcast(ctx context.Context, projectID string, event domain.Event) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(ctx, projectID, event); err != nil {
		logging.Logger.Warn("Broadcast failed", "project_id", projectID, "event", event.Type, "error", err)
	}
}

// summarize cuts s to at most n runes
func summarize(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

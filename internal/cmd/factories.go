package cmd

import (
	"context"
	"errors"

	adaptergit "github.com/buildloop/buildloop/internal/adapters/git"
	adapterprompts "github.com/buildloop/buildloop/internal/adapters/prompts"
	adapterproviders "github.com/buildloop/buildloop/internal/adapters/providers"
	adapterrealtime "github.com/buildloop/buildloop/internal/adapters/realtime"
	adapterstorage "github.com/buildloop/buildloop/internal/adapters/storage"
	"github.com/buildloop/buildloop/internal/config"
	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/services"
)

// Container holds all dependencies for the application
type Container struct {
	// Adapters
	Hub *adapterrealtime.Hub

	// Services
	CLIManager        *services.CLIManager
	CLIStatusService  *services.CLIStatusService
	CreditService     *services.CreditService
	ExecutionService  *services.ExecutionService
	MetricsService    *services.MetricsService
	ProjectService    *services.ProjectService
	PromptComposer    *services.PromptComposer
	SubmissionService *services.SubmissionService

	// Internal - for cleanup only
	cancel  context.CancelFunc
	repo    *adapterstorage.SQLiteRepository
	watcher *adapterprompts.Watcher
}

// NewContainer creates a new Container with all dependencies wired
func NewContainer(cfg config.Config) (*Container, error) {
	repo, err := adapterstorage.NewSQLiteRepository(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	// Create adapters
	gitRepo := adaptergit.NewCLIRepository()
	hub := adapterrealtime.NewHub()
	promptSource := adapterprompts.NewFileSource(cfg.PromptDir)
	sessions := adapterproviders.NewSessionStore()

	// Create services
	composer := services.NewPromptComposer(promptSource)
	adapters := adapterproviders.NewAll(cfg, composer, sessions)
	manager := services.NewCLIManager(
		adapters,
		repo,
		hub,
		services.NewActivityLog(),
		services.Guardrail{CostUSD: cfg.CostNoticeUSD, NumTurns: cfg.TurnsNoticeMin},
	)
	statusService := services.NewCLIStatusService(manager)
	creditService := services.NewCreditService(repo, cfg.TokensPerCredit, cfg.FreeCreditsOnSignup)
	executionService := services.NewExecutionService(repo, manager, gitRepo, hub, creditService, services.ExecutionConfig{
		HistoryLimit:      cfg.HistoryLimit,
		MaxRetries:        cfg.JobMaxRetries,
		PlanFirstMinChars: cfg.PlanFirstMinChars,
		RetryDelay:        cfg.JobRetryDelay,
	})

	baseCtx, cancel := context.WithCancel(context.Background())
	submissionService := services.NewSubmissionService(
		baseCtx,
		repo,
		statusService,
		creditService,
		executionService,
		hub,
		services.NewAgentPicker(promptSource),
		cfg.ProjectsRoot,
	)
	projectService := services.NewProjectService(repo, gitRepo, statusService, sessions, cfg.ProjectsRoot)
	metricsService := services.NewMetricsService(repo, cfg.MetricsOutlierMult)

	watcher, err := adapterprompts.Watch(cfg.PromptDir, composer.Invalidate)
	if err != nil {
		// Prompts are still read on demand, only hot reload is lost
		logging.Logger.Warn("Prompt directory not watched", "path", cfg.PromptDir, "error", err)
		watcher = nil
	}

	return &Container{
		CLIManager:        manager,
		CLIStatusService:  statusService,
		CreditService:     creditService,
		ExecutionService:  executionService,
		Hub:               hub,
		MetricsService:    metricsService,
		ProjectService:    projectService,
		PromptComposer:    composer,
		SubmissionService: submissionService,
		cancel:            cancel,
		repo:              repo,
		watcher:           watcher,
	}, nil
}

// Close cancels in-flight executions, waits for them to finalize and
// releases all resources
func (c *Container) Close() error {
	c.cancel()
	c.SubmissionService.Wait()
	c.Hub.Close()

	var errs []error
	if c.watcher != nil {
		errs = append(errs, c.watcher.Close())
	}
	errs = append(errs, c.repo.Close())
	return errors.Join(errs...)
}

package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/ports"
)

const (
	projectStatusActive       = "active"
	projectStatusInitializing = "initializing"
)

// RepoInitializer creates an empty git repository
type RepoInitializer interface {
	InitRepository(ctx context.Context, path string) error
}

// SessionForgetter drops the provider sessions remembered for a project
type SessionForgetter interface {
	Forget(projectID string)
}

// StatusInvalidator drops cached CLI probes of a project
type StatusInvalidator interface {
	InvalidateProject(projectID string)
}

// CreateProjectParams describes a new project
type CreateProjectParams struct {
	FallbackEnabled bool
	Name            string
	OwnerID         string
	PreferredCLI    string
	// RepoPath defaults to <projects root>/<id>/repo
	RepoPath      string
	SelectedModel string
}

// UpdatePreferencesParams changes how a project executes instructions.
// Nil fields are left untouched.
type UpdatePreferencesParams struct {
	FallbackEnabled *bool
	PreferredCLI    *string
	SelectedModel   *string
}

// ProjectService manages projects and their repositories
type ProjectService struct {
	initializer  RepoInitializer
	projectsRoot string
	repo         ports.ProjectRepository
	sessions     SessionForgetter
	status       StatusInvalidator
}

// NewProjectService creates a ProjectService
func NewProjectService(
	repo ports.ProjectRepository,
	initializer RepoInitializer,
	status StatusInvalidator,
	sessions SessionForgetter,
	projectsRoot string,
) *ProjectService {
	return &ProjectService{
		initializer:  initializer,
		projectsRoot: projectsRoot,
		repo:         repo,
		sessions:     sessions,
		status:       status,
	}
}

// Create records a project and initializes its repository
func (s *ProjectService) Create(ctx context.Context, params CreateProjectParams) (*domain.Project, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	if params.OwnerID == "" {
		return nil, fmt.Errorf("project owner is required")
	}

	cli := domain.DefaultCLI
	if params.PreferredCLI != "" {
		parsed, err := domain.ParseCLIType(params.PreferredCLI)
		if err != nil {
			return nil, err
		}
		cli = parsed
	}

	id := uuid.NewString()
	repoPath := params.RepoPath
	if repoPath == "" {
		if s.projectsRoot == "" {
			return nil, fmt.Errorf("no repository path given and no projects root configured")
		}
		repoPath = filepath.Join(s.projectsRoot, id, "repo")
	}
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}

	project := domain.Project{
		CreatedAt:       time.Now().UTC(),
		FallbackEnabled: params.FallbackEnabled,
		ID:              id,
		Name:            name,
		OwnerID:         params.OwnerID,
		PreferredCLI:    cli,
		RepoPath:        repoPath,
		SelectedModel:   params.SelectedModel,
		Status:          projectStatusInitializing,
	}

	if err := s.initializer.InitRepository(ctx, repoPath); err != nil {
		return nil, err
	}
	project.Status = projectStatusActive
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}

	logging.Logger.Info("Project created", "project_id", id, "owner_id", project.OwnerID, "repo_path", repoPath, "cli", cli)
	return &project, nil
}

// Get returns a project by id
func (s *ProjectService) Get(ctx context.Context, id string) (*domain.Project, error) {
	return s.repo.GetProject(ctx, id)
}

// List returns the projects of an owner, or all projects when ownerID is empty
func (s *ProjectService) List(ctx context.Context, ownerID string) ([]domain.Project, error) {
	return s.repo.ListProjects(ctx, ownerID)
}

// UpdatePreferences changes the CLI, model or fallback setting of a
// project. Cached probes and remembered provider sessions are dropped.
func (s *ProjectService) UpdatePreferences(ctx context.Context, id string, params UpdatePreferencesParams) (*domain.Project, error) {
	project, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	cli := project.PreferredCLI
	if params.PreferredCLI != nil {
		if cli, err = domain.ParseCLIType(*params.PreferredCLI); err != nil {
			return nil, err
		}
	}
	model := project.SelectedModel
	if params.SelectedModel != nil {
		model = strings.TrimSpace(*params.SelectedModel)
	}
	fallback := project.FallbackEnabled
	if params.FallbackEnabled != nil {
		fallback = *params.FallbackEnabled
	}

	if err := s.repo.UpdateProjectPreferences(ctx, id, cli, model, fallback); err != nil {
		return nil, err
	}

	if cli != project.PreferredCLI || model != project.SelectedModel {
		if s.status != nil {
			s.status.InvalidateProject(id)
		}
		if s.sessions != nil {
			s.sessions.Forget(id)
		}
		logging.Logger.Info("Project preferences changed", "project_id", id, "cli", cli, "model", model)
	}

	project.PreferredCLI = cli
	project.SelectedModel = model
	project.FallbackEnabled = fallback
	return project, nil
}

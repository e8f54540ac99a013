package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/buildloop/buildloop/internal/domain"
)

// CreateProject implements ProjectRepository.CreateProject
func (r *SQLiteRepository) CreateProject(ctx context.Context, project domain.Project) error {
	model := projectDomainToModel(project)
	return withRetry(func() error {
		return r.db.WithContext(ctx).Create(&model).Error
	}, 3)
}

// GetProject implements ProjectRepository.GetProject
func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var model ProjectModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	}, 3)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProjectNotFound, id)
		}
		return nil, err
	}
	project := projectModelToDomain(model)
	return &project, nil
}

// ListProjects implements ProjectRepository.ListProjects. An empty owner lists all.
func (r *SQLiteRepository) ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error) {
	var models []ProjectModel
	err := withRetry(func() error {
		query := r.db.WithContext(ctx).Order("created_at ASC")
		if ownerID != "" {
			query = query.Where("owner_id = ?", ownerID)
		}
		return query.Find(&models).Error
	}, 3)
	if err != nil {
		return nil, err
	}

	projects := make([]domain.Project, 0, len(models))
	for _, m := range models {
		projects = append(projects, projectModelToDomain(m))
	}
	return projects, nil
}

// UpdateProjectPreferences implements ProjectRepository.UpdateProjectPreferences
func (r *SQLiteRepository) UpdateProjectPreferences(ctx context.Context, id string, cli domain.CLIType, model string, fallbackEnabled bool) error {
	return r.updateProject(ctx, id, map[string]any{
		"fallback_enabled": fallbackEnabled,
		"preferred_cli":    string(cli),
		"selected_model":   model,
	})
}

// UpdateProjectRepoPath implements ProjectRepository.UpdateProjectRepoPath
func (r *SQLiteRepository) UpdateProjectRepoPath(ctx context.Context, id, repoPath string) error {
	return r.updateProject(ctx, id, map[string]any{"repo_path": repoPath})
}

func (r *SQLiteRepository) updateProject(ctx context.Context, id string, values map[string]any) error {
	return withRetry(func() error {
		result := r.db.WithContext(ctx).Model(&ProjectModel{}).Where("id = ?", id).Updates(values)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", domain.ErrProjectNotFound, id)
		}
		return nil
	}, 3)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/ports"
)

// CreateSubmission implements ExecutionStore.CreateSubmission
func (r *SQLiteRepository) CreateSubmission(ctx context.Context, s ports.Submission) error {
	message := messageDomainToModel(s.UserMessage)
	session := sessionDomainToModel(s.Session)
	request := userRequestDomainToModel(s.Request)

	return withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&message).Error; err != nil {
				return fmt.Errorf("failed to insert user message: %w", err)
			}
			if err := tx.Create(&session).Error; err != nil {
				return fmt.Errorf("failed to insert session: %w", err)
			}
			if err := tx.Create(&request).Error; err != nil {
				return fmt.Errorf("failed to insert user request: %w", err)
			}
			return nil
		})
	}, 3)
}

// FinalizeExecution implements ExecutionStore.FinalizeExecution
func (r *SQLiteRepository) FinalizeExecution(ctx context.Context, f ports.Finalization) error {
	completedAt := f.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	sessionStatus := domain.SessionFailed
	if f.Success {
		sessionStatus = domain.SessionCompleted
	}
	success := f.Success

	return withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if f.SystemMessage != nil {
				msg := messageDomainToModel(*f.SystemMessage)
				if err := tx.Create(&msg).Error; err != nil {
					return fmt.Errorf("failed to insert error message: %w", err)
				}
			}

			if f.SessionID != "" {
				result := tx.Model(&SessionModel{}).
					Where("id = ?", f.SessionID).
					Select("status", "error_message", "completed_at").
					Updates(&SessionModel{
						CompletedAt:  &completedAt,
						ErrorMessage: f.ErrorMessage,
						Status:       string(sessionStatus),
					})
				if result.Error != nil {
					return result.Error
				}
				if result.RowsAffected == 0 {
					return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, f.SessionID)
				}
			}

			if f.RequestID == "" {
				return nil
			}

			result := tx.Model(&UserRequestModel{}).
				Where("id = ? AND is_completed = ?", f.RequestID, false).
				Select("is_completed", "is_successful", "result_metadata", "error_message", "completed_at").
				Updates(&UserRequestModel{
					CompletedAt:    &completedAt,
					ErrorMessage:   f.ErrorMessage,
					IsCompleted:    true,
					IsSuccessful:   &success,
					ResultMetadata: f.ResultMetadata,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				var count int64
				if err := tx.Model(&UserRequestModel{}).Where("id = ?", f.RequestID).Count(&count).Error; err != nil {
					return err
				}
				if count == 0 {
					return fmt.Errorf("%w: %s", domain.ErrRequestNotFound, f.RequestID)
				}
				return fmt.Errorf("%w: %s", domain.ErrRequestFinalized, f.RequestID)
			}
			return nil
		})
	}, 3)
}

// GetSession implements SessionRepository.GetSession
func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var model SessionModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	}, 3)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
		}
		return nil, err
	}
	session := sessionModelToDomain(model)
	return &session, nil
}

// MarkSessionRunning implements SessionRepository.MarkSessionRunning.
// Terminal sessions are left untouched.
func (r *SQLiteRepository) MarkSessionRunning(ctx context.Context, id string) error {
	return withRetry(func() error {
		return r.db.WithContext(ctx).Model(&SessionModel{}).
			Where("id = ? AND status IN ?", id, []string{string(domain.SessionActive), string(domain.SessionRunning)}).
			Update("status", string(domain.SessionRunning)).Error
	}, 3)
}

// GetUserRequest implements UserRequestRepository.GetUserRequest
func (r *SQLiteRepository) GetUserRequest(ctx context.Context, id string) (*domain.UserRequest, error) {
	var model UserRequestModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	}, 3)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRequestNotFound, id)
		}
		return nil, err
	}
	request := userRequestModelToDomain(model)
	return &request, nil
}

// MarkRequestStarted implements UserRequestRepository.MarkRequestStarted.
// The first start time wins; completed requests are left untouched.
func (r *SQLiteRepository) MarkRequestStarted(ctx context.Context, id string, cli domain.CLIType, model string) error {
	now := time.Now().UTC()
	return withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			base := tx.Model(&UserRequestModel{}).Where("id = ? AND is_completed = ?", id, false)
			if err := base.Updates(map[string]any{
				"cli_type_used": string(cli),
				"model_used":    model,
			}).Error; err != nil {
				return err
			}
			return tx.Model(&UserRequestModel{}).
				Where("id = ? AND is_completed = ? AND started_at IS NULL", id, false).
				Update("started_at", now).Error
		})
	}, 3)
}

// RecentUserRequests implements UserRequestRepository.RecentUserRequests
func (r *SQLiteRepository) RecentUserRequests(ctx context.Context, projectID string, limit int) ([]domain.UserRequest, error) {
	var models []UserRequestModel
	err := withRetry(func() error {
		query := r.db.WithContext(ctx).
			Where("project_id = ? AND is_completed = ?", projectID, true).
			Order("created_at DESC")
		if limit > 0 {
			query = query.Limit(limit)
		}
		return query.Find(&models).Error
	}, 3)
	if err != nil {
		return nil, err
	}

	requests := make([]domain.UserRequest, 0, len(models))
	for _, m := range models {
		requests = append(requests, userRequestModelToDomain(m))
	}
	return requests, nil
}

// CreateCommit implements CommitRepository.CreateCommit
func (r *SQLiteRepository) CreateCommit(ctx context.Context, commit domain.Commit) error {
	model := CommitModel{
		Author:       commit.Author,
		CreatedAt:    commit.CreatedAt,
		FilesChanged: commit.FilesChanged,
		Hash:         commit.Hash,
		ID:           commit.ID,
		Message:      commit.Message,
		ProjectID:    commit.ProjectID,
		SessionID:    commit.SessionID,
	}
	return withRetry(func() error {
		return r.db.WithContext(ctx).Create(&model).Error
	}, 3)
}

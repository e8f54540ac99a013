package storage

import (
	"context"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/ports"
)

// AppendMessage implements MessageRepository.AppendMessage.
// Every append is its own commit.
func (r *SQLiteRepository) AppendMessage(ctx context.Context, msg domain.Message) error {
	model := messageDomainToModel(msg)
	return withRetry(func() error {
		return r.db.WithContext(ctx).Create(&model).Error
	}, 3)
}

// RecentMessages implements MessageRepository.RecentMessages (newest first)
func (r *SQLiteRepository) RecentMessages(ctx context.Context, q ports.MessageQuery) ([]domain.Message, error) {
	var models []MessageModel
	err := withRetry(func() error {
		query := r.db.WithContext(ctx).
			Where("project_id = ?", q.ProjectID).
			Order("created_at DESC")
		if q.ConversationID != "" {
			query = query.Where("conversation_id = ?", q.ConversationID)
		}
		if q.Limit > 0 {
			query = query.Limit(q.Limit)
		}
		return query.Find(&models).Error
	}, 3)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(models))
	for _, m := range models {
		messages = append(messages, messageModelToDomain(m))
	}
	return messages, nil
}

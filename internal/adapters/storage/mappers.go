package storage

import (
	"github.com/buildloop/buildloop/internal/domain"
)

func projectModelToDomain(m ProjectModel) domain.Project {
	return domain.Project{
		CreatedAt:       m.CreatedAt,
		FallbackEnabled: m.FallbackEnabled,
		ID:              m.ID,
		Name:            m.Name,
		OwnerID:         m.OwnerID,
		PreferredCLI:    domain.CLIType(m.PreferredCLI),
		RepoPath:        m.RepoPath,
		SelectedModel:   m.SelectedModel,
		Status:          m.Status,
	}
}

func projectDomainToModel(p domain.Project) ProjectModel {
	preferred := string(p.PreferredCLI)
	if preferred == "" {
		preferred = string(domain.DefaultCLI)
	}
	status := p.Status
	if status == "" {
		status = "active"
	}
	return ProjectModel{
		CreatedAt:       p.CreatedAt,
		FallbackEnabled: p.FallbackEnabled,
		ID:              p.ID,
		Name:            p.Name,
		OwnerID:         p.OwnerID,
		PreferredCLI:    preferred,
		RepoPath:        p.RepoPath,
		SelectedModel:   p.SelectedModel,
		Status:          status,
	}
}

func sessionModelToDomain(m SessionModel) domain.Session {
	return domain.Session{
		CLIType:      domain.CLIType(m.CLIType),
		CompletedAt:  m.CompletedAt,
		ErrorMessage: m.ErrorMessage,
		ID:           m.ID,
		Instruction:  m.Instruction,
		Model:        m.Model,
		ProjectID:    m.ProjectID,
		StartedAt:    m.StartedAt,
		Status:       domain.SessionStatus(m.Status),
	}
}

func sessionDomainToModel(s domain.Session) SessionModel {
	status := s.Status
	if status == "" {
		status = domain.SessionActive
	}
	return SessionModel{
		CLIType:      string(s.CLIType),
		CompletedAt:  s.CompletedAt,
		ErrorMessage: s.ErrorMessage,
		ID:           s.ID,
		Instruction:  s.Instruction,
		Model:        s.Model,
		ProjectID:    s.ProjectID,
		StartedAt:    s.StartedAt,
		Status:       string(status),
	}
}

func messageModelToDomain(m MessageModel) domain.Message {
	metadata := m.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return domain.Message{
		CLISource:       domain.CLIType(m.CLISource),
		Content:         m.Content,
		ConversationID:  m.ConversationID,
		CreatedAt:       m.CreatedAt,
		ID:              m.ID,
		Metadata:        metadata,
		MessageType:     domain.MessageType(m.MessageType),
		ParentMessageID: derefString(m.ParentMessageID),
		ProjectID:       m.ProjectID,
		Role:            domain.Role(m.Role),
		SessionID:       derefString(m.SessionID),
	}
}

func messageDomainToModel(msg domain.Message) MessageModel {
	return MessageModel{
		CLISource:       string(msg.CLISource),
		Content:         msg.Content,
		ConversationID:  msg.ConversationID,
		CreatedAt:       msg.CreatedAt,
		ID:              msg.ID,
		Metadata:        msg.Metadata,
		MessageType:     string(msg.MessageType),
		ParentMessageID: optionalString(msg.ParentMessageID),
		ProjectID:       msg.ProjectID,
		Role:            string(msg.Role),
		SessionID:       optionalString(msg.SessionID),
	}
}

func userRequestModelToDomain(m UserRequestModel) domain.UserRequest {
	return domain.UserRequest{
		CLITypeUsed:    domain.CLIType(m.CLITypeUsed),
		CompletedAt:    m.CompletedAt,
		ConversationID: m.ConversationID,
		CreatedAt:      m.CreatedAt,
		ErrorMessage:   m.ErrorMessage,
		ID:             m.ID,
		Instruction:    m.Instruction,
		IsCompleted:    m.IsCompleted,
		IsSuccessful:   m.IsSuccessful,
		ModelUsed:      m.ModelUsed,
		ProjectID:      m.ProjectID,
		RequestType:    domain.RequestType(m.RequestType),
		ResultMetadata: m.ResultMetadata,
		SessionID:      m.SessionID,
		StartedAt:      m.StartedAt,
		UserMessageID:  m.UserMessageID,
	}
}

func userRequestDomainToModel(r domain.UserRequest) UserRequestModel {
	requestType := r.RequestType
	if requestType == "" {
		requestType = domain.RequestAct
	}
	return UserRequestModel{
		CLITypeUsed:    string(r.CLITypeUsed),
		CompletedAt:    r.CompletedAt,
		ConversationID: r.ConversationID,
		CreatedAt:      r.CreatedAt,
		ErrorMessage:   r.ErrorMessage,
		ID:             r.ID,
		Instruction:    r.Instruction,
		IsCompleted:    r.IsCompleted,
		IsSuccessful:   r.IsSuccessful,
		ModelUsed:      r.ModelUsed,
		ProjectID:      r.ProjectID,
		RequestType:    string(requestType),
		ResultMetadata: r.ResultMetadata,
		SessionID:      r.SessionID,
		StartedAt:      r.StartedAt,
		UserMessageID:  r.UserMessageID,
	}
}

func creditAccountModelToDomain(m CreditAccountModel) domain.CreditAccount {
	return domain.CreditAccount{
		Balance:            m.Balance,
		CreatedAt:          m.CreatedAt,
		OwnerID:            m.OwnerID,
		Plan:               m.Plan,
		SubscriptionStatus: m.SubscriptionStatus,
		UpdatedAt:          m.UpdatedAt,
	}
}

func creditTransactionModelToDomain(m CreditTransactionModel) domain.CreditTransaction {
	return domain.CreditTransaction{
		Amount:       m.Amount,
		BalanceAfter: m.BalanceAfter,
		CreatedAt:    m.CreatedAt,
		Description:  m.Description,
		ID:           m.ID,
		OwnerID:      m.OwnerID,
		Type:         domain.TransactionType(m.Type),
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

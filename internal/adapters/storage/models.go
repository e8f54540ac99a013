package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/buildloop/buildloop/internal/domain"
)

// ProjectModel is the GORM model for projects table
type ProjectModel struct {
	CreatedAt       time.Time
	FallbackEnabled bool   `gorm:"not null"`
	ID              string `gorm:"primaryKey"`
	Name            string `gorm:"not null;default:''"`
	OwnerID         string `gorm:"not null;index:idx_projects_owner"`
	PreferredCLI    string `gorm:"not null;default:'claude'"`
	RepoPath        string `gorm:"default:''"`
	SelectedModel   string `gorm:"default:''"`
	Status          string `gorm:"not null;default:'active'"`
	UpdatedAt       time.Time
}

// TableName specifies the table name for GORM
func (ProjectModel) TableName() string { return "projects" }

// SessionModel is the GORM model for sessions table
type SessionModel struct {
	CLIType      string `gorm:"default:''"`
	CompletedAt  *time.Time
	CreatedAt    time.Time
	ErrorMessage string        `gorm:"default:''"`
	ID           string        `gorm:"primaryKey"`
	Instruction  string        `gorm:"type:text"`
	Model        string        `gorm:"default:''"`
	Project      *ProjectModel `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	ProjectID    string        `gorm:"not null;index:idx_sessions_project"`
	StartedAt    time.Time
	Status       string `gorm:"not null;default:'active';check:status IN ('active','running','completed','failed')"`
	UpdatedAt    time.Time
}

// TableName specifies the table name for GORM
func (SessionModel) TableName() string { return "sessions" }

// MessageModel is the GORM model for the append-only messages table
type MessageModel struct {
	CLISource       string         `gorm:"default:''"`
	Content         string         `gorm:"type:text"`
	ConversationID  string         `gorm:"index:idx_messages_window,priority:2;default:''"`
	CreatedAt       time.Time      `gorm:"index:idx_messages_window,priority:3"`
	ID              string         `gorm:"primaryKey"`
	MessageType     string         `gorm:"not null"`
	Metadata        map[string]any `gorm:"serializer:json"`
	ParentMessageID *string
	Project         *ProjectModel `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	ProjectID       string        `gorm:"not null;index:idx_messages_window,priority:1"`
	Role            string        `gorm:"not null"`
	SessionID       *string       `gorm:"index:idx_messages_session"`
}

// TableName specifies the table name for GORM
func (MessageModel) TableName() string { return "messages" }

// UserRequestModel is the GORM model for user_requests table
type UserRequestModel struct {
	CLITypeUsed    string `gorm:"default:''"`
	CompletedAt    *time.Time
	ConversationID string `gorm:"default:''"`
	CreatedAt      time.Time
	ErrorMessage   string `gorm:"type:text;default:''"`
	ID             string `gorm:"primaryKey"`
	Instruction    string `gorm:"type:text"`
	IsCompleted    bool   `gorm:"not null;default:false"`
	IsSuccessful   *bool
	ModelUsed      string                 `gorm:"default:''"`
	Project        *ProjectModel          `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	ProjectID      string                 `gorm:"not null;index:idx_requests_project"`
	RequestType    string                 `gorm:"not null;default:'act'"`
	ResultMetadata *domain.ResultMetadata `gorm:"serializer:json"`
	SessionID      string                 `gorm:"index:idx_requests_session"`
	StartedAt      *time.Time
	UserMessageID  string `gorm:"not null;uniqueIndex"`
}

// TableName specifies the table name for GORM
func (UserRequestModel) TableName() string { return "user_requests" }

// CommitModel is the GORM model for commits table
type CommitModel struct {
	Author       string `gorm:"default:''"`
	CreatedAt    time.Time
	FilesChanged []string      `gorm:"serializer:json"`
	Hash         string        `gorm:"not null;index"`
	ID           string        `gorm:"primaryKey"`
	Message      string        `gorm:"type:text"`
	Project      *ProjectModel `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	ProjectID    string        `gorm:"not null;index"`
	SessionID    string        `gorm:"index"`
}

// TableName specifies the table name for GORM
func (CommitModel) TableName() string { return "commits" }

// CreditAccountModel is the GORM model for credit_accounts table.
// Amounts are stored as decimal text to keep them exact.
type CreditAccountModel struct {
	Balance            decimal.Decimal `gorm:"type:varchar(64);not null"`
	CreatedAt          time.Time
	OwnerID            string `gorm:"primaryKey"`
	Plan               string `gorm:"not null;default:'free'"`
	SubscriptionStatus string `gorm:"not null;default:'none'"`
	UpdatedAt          time.Time
}

// TableName specifies the table name for GORM
func (CreditAccountModel) TableName() string { return "credit_accounts" }

// CreditTransactionModel is the GORM model for the append-only credit_transactions table
type CreditTransactionModel struct {
	Amount       decimal.Decimal `gorm:"type:varchar(64);not null"`
	BalanceAfter decimal.Decimal `gorm:"type:varchar(64);not null"`
	CreatedAt    time.Time       `gorm:"index:idx_credit_tx_owner,priority:2"`
	Description  string          `gorm:"default:''"`
	ID           string          `gorm:"primaryKey"`
	OwnerID      string          `gorm:"not null;index:idx_credit_tx_owner,priority:1"`
	Type         string          `gorm:"not null;check:type IN ('grant','purchase','spend','refund','usage')"`
}

// TableName specifies the table name for GORM
func (CreditTransactionModel) TableName() string { return "credit_transactions" }

package domain

import "time"

// RequestType distinguishes code-changing runs from conversational runs
type RequestType string

const (
	RequestAct  RequestType = "act"
	RequestChat RequestType = "chat"
)

// ResultMetadata is the persisted summary of a finished execution
type ResultMetadata struct {
	APIDurationMS       int64    `json:"api_duration_ms,omitempty"`
	CLIUsed             CLIType  `json:"cli_used,omitempty"`
	CostNoticeTriggered bool     `json:"cost_notice_triggered"`
	CostUSD             float64  `json:"cost_usd"`
	DurationMS          int64    `json:"duration_ms,omitempty"`
	FilesModified       []string `json:"files_modified"`
	HasChanges          bool     `json:"has_changes"`
	NumTurns            int      `json:"num_turns"`
}

// UserRequest correlates a user message with the execution it triggered.
// Terminal fields are written exactly once.
type UserRequest struct {
	CLITypeUsed    CLIType
	CompletedAt    *time.Time
	ConversationID string
	CreatedAt      time.Time
	ErrorMessage   string
	ID             string
	Instruction    string
	IsCompleted    bool
	IsSuccessful   *bool
	ModelUsed      string
	ProjectID      string
	RequestType    RequestType
	ResultMetadata *ResultMetadata
	SessionID      string
	StartedAt      *time.Time
	UserMessageID  string
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the author of a conversation message
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
)

// MessageType classifies the content of a message
type MessageType string

const (
	MessageChat       MessageType = "chat"
	MessageError      MessageType = "error"
	MessageResult     MessageType = "result"
	MessageSystem     MessageType = "system"
	MessageToolResult MessageType = "tool_result"
	MessageToolUse    MessageType = "tool_use"
)

// Well-known metadata keys shared by adapters, the manager and the task
const (
	MetaChangesMade   = "changes_made"
	MetaCLIType       = "cli_type"
	MetaDurationAPIMS = "duration_api_ms"
	MetaDurationMS    = "duration_ms"
	MetaEventType     = "event_type"
	MetaFilesModified = "files_modified"
	MetaHiddenFromUI  = "hidden_from_ui"
	MetaIsError       = "is_error"
	MetaNumTurns      = "num_turns"
	MetaSessionID     = "session_id"
	MetaSubtype       = "subtype"
	MetaToolID        = "tool_id"
	MetaToolInput     = "tool_input"
	MetaToolName      = "tool_name"
	MetaTotalCostUSD  = "total_cost_usd"
	MetaType          = "type"
)

// Message is an immutable entry in a project conversation
type Message struct {
	CLISource       CLIType
	Content         string
	ConversationID  string
	CreatedAt       time.Time
	ID              string
	Metadata        map[string]any
	MessageType     MessageType
	ParentMessageID string
	ProjectID       string
	Role            Role
	SessionID       string
}

// NewMessage builds a message with a fresh id and timestamp
func NewMessage(role Role, messageType MessageType, content string, metadata map[string]any) Message {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Message{
		Content:     content,
		CreatedAt:   time.Now().UTC(),
		ID:          uuid.NewString(),
		Metadata:    metadata,
		MessageType: messageType,
		Role:        role,
	}
}

// IsHidden reports whether the message must be kept out of UI broadcasts
func (m Message) IsHidden() bool {
	hidden, _ := m.Metadata[MetaHiddenFromUI].(bool)
	return hidden
}

// IsResultEvent reports whether the message carries a provider terminal result
func (m Message) IsResultEvent() bool {
	if m.MessageType == MessageResult {
		return true
	}
	eventType, _ := m.Metadata[MetaEventType].(string)
	return eventType == "result"
}

// MetaFloat reads a numeric metadata value regardless of its decoded type
func (m Message) MetaFloat(key string) (float64, bool) {
	switch v := m.Metadata[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// MetaString reads a string metadata value
func (m Message) MetaString(key string) string {
	s, _ := m.Metadata[key].(string)
	return s
}

// MetaStrings reads a list of strings from metadata, accepting []any from JSON
func (m Message) MetaStrings(key string) []string {
	switch v := m.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

package domain

import "time"

// EventType names a realtime event pushed to project subscribers
type EventType string

const (
	EventActComplete   EventType = "act_complete"
	EventActStart      EventType = "act_start"
	EventChatComplete  EventType = "chat_complete"
	EventChatStart     EventType = "chat_start"
	EventCommit        EventType = "commit"
	EventMessage       EventType = "message"
	EventProjectStatus EventType = "project_status"
)

// Event is the envelope delivered over the realtime channel
type Event struct {
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// NewEvent stamps an event with the current time
func NewEvent(t EventType, data any) Event {
	return Event{Data: data, Timestamp: time.Now().UTC(), Type: t}
}

// MessageEventData is the broadcast payload of a persisted message
type MessageEventData struct {
	Content         string         `json:"content"`
	ConversationID  string         `json:"conversation_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ID              string         `json:"id"`
	MessageType     MessageType    `json:"message_type"`
	Metadata        map[string]any `json:"metadata"`
	ParentMessageID string         `json:"parent_message_id,omitempty"`
	Role            Role           `json:"role"`
	SessionID       string         `json:"session_id,omitempty"`
}

// MessageEvent wraps a message for broadcast
func MessageEvent(m Message) Event {
	return NewEvent(EventMessage, MessageEventData{
		Content:         m.Content,
		ConversationID:  m.ConversationID,
		CreatedAt:       m.CreatedAt,
		ID:              m.ID,
		MessageType:     m.MessageType,
		Metadata:        m.Metadata,
		ParentMessageID: m.ParentMessageID,
		Role:            m.Role,
		SessionID:       m.SessionID,
	})
}

// Events returns the start and complete event types for a request type
func (t RequestType) Events() (start, complete EventType) {
	if t == RequestChat {
		return EventChatStart, EventChatComplete
	}
	return EventActStart, EventActComplete
}

package domain

import "time"

// SessionStatus is the lifecycle state of an execution session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionRunning   SessionStatus = "running"
)

// IsTerminal reports whether no further transition is allowed
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Session tracks one execution of an instruction against a provider
type Session struct {
	CLIType      CLIType
	CompletedAt  *time.Time
	ErrorMessage string
	ID           string
	Instruction  string
	Model        string
	ProjectID    string
	StartedAt    time.Time
	Status       SessionStatus
}

package providers

import (
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type sessionEntry struct {
	id        string
	model     string
	updatedAt time.Time
}

// SessionStore maps (project, sub-agent, model) to the provider-native
// session id and the model last used with it. It is process scoped.
type SessionStore struct {
	entries map[string]sessionEntry
	mu      sync.Mutex
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{entries: make(map[string]sessionEntry)}
}

// sessionKey builds the continuity key for an invocation
func sessionKey(projectID, projectPath, subAgent, model string) string {
	if projectID == "" {
		projectID = filepath.Base(filepath.Clean(projectPath))
	}
	agent := strings.ToLower(strings.TrimSpace(subAgent))
	if agent == "" {
		agent = "default"
	}
	return projectID + "::" + agent + "::" + model
}

// plan decides whether the stored session can be resumed and records the
// model for this call. A session that is not reused is forgotten so the
// provider establishes a new one.
func (s *SessionStore) plan(key, model string, initial bool) (resumeID string, reuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[key]
	reuse = entry.id != "" && entry.model == model && !initial
	if reuse {
		resumeID = entry.id
	} else {
		entry.id = ""
	}
	entry.model = model
	entry.updatedAt = time.Now()
	s.entries[key] = entry
	return resumeID, reuse
}

// remember stores the provider-native session id for key
func (s *SessionStore) remember(key, id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entries[key]
	entry.id = id
	entry.updatedAt = time.Now()
	s.entries[key] = entry
}

// SessionID returns the stored session id for key
func (s *SessionStore) SessionID(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key].id
}

// Forget drops every session of a project (e.g. after its repository is reset)
func (s *SessionStore) Forget(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := projectID + "::"
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
		}
	}
}

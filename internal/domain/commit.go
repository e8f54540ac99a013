package domain

import "time"

// CommitResult is what the repository committer reports back
type CommitResult struct {
	Author       string
	FilesChanged []string
	Hash         string
	Success      bool
}

// Commit is the persisted record of an agent commit
type Commit struct {
	Author       string
	CreatedAt    time.Time
	FilesChanged []string
	Hash         string
	ID           string
	Message      string
	ProjectID    string
	SessionID    string
}

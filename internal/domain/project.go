package domain

import "time"

// Project is a per-user workspace backed by a git repository
type Project struct {
	CreatedAt       time.Time
	FallbackEnabled bool
	ID              string
	Name            string
	OwnerID         string
	PreferredCLI    CLIType
	RepoPath        string
	SelectedModel   string
	Status          string
}

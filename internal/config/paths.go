package config

import (
	"os"
	"path/filepath"
)

// GetHomeDir returns BUILDLOOP_HOME or ~/.buildloop
func GetHomeDir() string {
	home := os.Getenv("BUILDLOOP_HOME")
	if home == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ".buildloop"
		}
		return filepath.Join(homeDir, ".buildloop")
	}
	return ExpandPath(home)
}

// GetDBPath returns $BUILDLOOP_HOME/buildloop.db
func GetDBPath() string {
	return filepath.Join(GetHomeDir(), "buildloop.db")
}

// GetProjectsRoot returns $BUILDLOOP_HOME/projects
func GetProjectsRoot() string {
	return filepath.Join(GetHomeDir(), "projects")
}

// GetPromptDir returns $BUILDLOOP_HOME/prompts
func GetPromptDir() string {
	return filepath.Join(GetHomeDir(), "prompts")
}

// GetSettingsPath returns $BUILDLOOP_HOME/settings.json
func GetSettingsPath() string {
	return filepath.Join(GetHomeDir(), "settings.json")
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			if len(path) == 1 {
				return homeDir
			}
			return filepath.Join(homeDir, path[1:])
		}
	}
	return path
}

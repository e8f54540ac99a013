package providers

import (
	"os"
	"os/exec"
	"path/filepath"
)

// resolveExec picks the provider binary: explicit override, then the first
// set environment variable, then PATH, then well-known install locations.
func resolveExec(override, defaultExec string, fallbackPaths []string, envKeys ...string) string {
	if override != "" {
		return override
	}
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if _, err := exec.LookPath(defaultExec); err == nil {
		return defaultExec
	}
	for _, path := range fallbackPaths {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return defaultExec
}

// homePath joins elements onto the user's home directory
func homePath(elem ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	parts := append([]string{home}, elem...)
	return filepath.Join(parts...)
}

// anyFileExists reports whether at least one of the paths exists
func anyFileExists(paths ...string) bool {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// anyEnvSet reports whether at least one of the environment variables is non-empty
func anyEnvSet(keys ...string) bool {
	for _, k := range keys {
		if os.Getenv(k) != "" {
			return true
		}
	}
	return false
}

package providers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
)

const (
	maxRepoMapDirs      = 20
	projectSettingsFile = ".claude/settings.json"
)

var ignoredDirs = map[string]bool{
	".git":         true,
	".next":        true,
	".venv":        true,
	"build":        true,
	"coverage":     true,
	"dist":         true,
	"node_modules": true,
}

var notableFiles = []string{
	"package.json",
	"pnpm-lock.yaml",
	"package-lock.json",
	"yarn.lock",
	"tsconfig.json",
	"next.config.js",
	"next.config.mjs",
	"next.config.ts",
	"vite.config.ts",
	"tailwind.config.js",
	"tailwind.config.ts",
	"go.mod",
	"pyproject.toml",
	"requirements.txt",
	"Dockerfile",
	"README.md",
	".env.example",
}

// conservativeSettings bounds reads and tool usage per turn
func conservativeSettings() map[string]any {
	return map[string]any{
		"autoApplyEdits":      true,
		"ignorePaths":         []any{"node_modules", ".next", "dist", "build", "coverage", ".git", ".venv", "**/*.min.js", "**/*.map"},
		"maxReadBytes":        200000,
		"maxToolReadsPerTurn": 30,
		"preferDiffEdits":     true,
	}
}

// ensureProjectSettings writes the conservative defaults if the project has no settings file
func ensureProjectSettings(projectPath string) error {
	path := filepath.Join(projectPath, projectSettingsFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := json.MarshalIndent(conservativeSettings(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// mergedSettings layers the defaults under the project settings without
// overwriting them; ignore paths are unioned.
func mergedSettings(projectPath, systemPrompt string) map[string]any {
	settings := map[string]any{}
	if data, err := os.ReadFile(filepath.Join(projectPath, projectSettingsFile)); err == nil {
		if err := json.Unmarshal(data, &settings); err != nil {
			logging.Logger.Warn("Ignoring unreadable project settings", "path", projectPath, "error", err)
			settings = map[string]any{}
		}
	}

	for k, v := range conservativeSettings() {
		if k == "ignorePaths" {
			settings[k] = unionStrings(settings[k], v)
			continue
		}
		if _, ok := settings[k]; !ok {
			settings[k] = v
		}
	}
	if systemPrompt != "" {
		settings["customSystemPrompt"] = systemPrompt
	}
	return settings
}

// writeTempSettings writes a per-invocation settings file and returns its path
func writeTempSettings(settings map[string]any) (string, error) {
	f, err := os.CreateTemp("", "buildloop-settings-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(settings); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

type repoMapFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type repoMap struct {
	Dirs         []string      `json:"dirs"`
	GeneratedAt  string        `json:"generatedAt"`
	NotableFiles []repoMapFile `json:"notableFiles"`
}

// writeRepoMap writes a compact description of the repository top level
func writeRepoMap(projectPath string) error {
	entries, err := os.ReadDir(projectPath)
	if err != nil {
		return err
	}

	m := repoMap{Dirs: []string{}, NotableFiles: []repoMapFile{}, GeneratedAt: time.Now().UTC().Format(time.RFC3339)}
	for _, e := range entries {
		if e.IsDir() && !ignoredDirs[e.Name()] {
			m.Dirs = append(m.Dirs, e.Name())
		}
	}
	sort.Strings(m.Dirs)
	if len(m.Dirs) > maxRepoMapDirs {
		m.Dirs = m.Dirs[:maxRepoMapDirs]
	}
	for _, name := range notableFiles {
		if info, err := os.Stat(filepath.Join(projectPath, name)); err == nil && !info.IsDir() {
			m.NotableFiles = append(m.NotableFiles, repoMapFile{Path: name, Size: info.Size()})
		}
	}

	path := filepath.Join(projectPath, domain.RepoMapFile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ensureSessionSummary creates the activity log with its header
func ensureSessionSummary(projectPath string) error {
	path := filepath.Join(projectPath, domain.SessionSummaryFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(domain.SessionSummaryHeader), 0644)
}

const contextHint = "\n\nProject context: context/repo-map.json holds a compact repository map and " +
	"context/session-summary.md the recent activity. Read them before listing the tree."

func unionStrings(existing, defaults any) []any {
	var out []any
	seen := map[string]bool{}
	add := func(v any) {
		items, _ := v.([]any)
		for _, item := range items {
			s, ok := item.(string)
			if !ok || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	add(existing)
	add(defaults)
	return out
}

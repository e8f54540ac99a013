package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/buildloop/buildloop/internal/domain"
)

const (
	activityLogMaxEntries   = 200
	activityLogFilesPreview = 8
)

// ActivityEntry is one line of the rolling session activity log
type ActivityEntry struct {
	CLI           domain.CLIType
	CostUSD       float64
	FilesModified []string
	HasChanges    bool
	NumTurns      int
	SubAgent      string
	Success       bool
	Timestamp     time.Time
}

// Line renders the entry as a single log line
func (e ActivityEntry) Line() string {
	files := slices.Clone(e.FilesModified)
	slices.Sort(files)
	preview := files
	if len(preview) > activityLogFilesPreview {
		preview = preview[:activityLogFilesPreview]
	}
	filesText := strings.Join(preview, ", ")
	if extra := len(files) - len(preview); extra > 0 {
		filesText += fmt.Sprintf(" +%d", extra)
	}

	agent := e.SubAgent
	if agent == "" {
		agent = "-"
	}
	return fmt.Sprintf("%s | cli=%s | sub_agent=%s | success=%t | changes=%t | files=[%s] | cost=$%.2f | turns=%d",
		e.Timestamp.UTC().Format(time.RFC3339), e.CLI, agent, e.Success, e.HasChanges, filesText, e.CostUSD, e.NumTurns)
}

// ActivityLog appends entries to context/session-summary.md inside a project,
// keeping the header and the most recent entries
type ActivityLog struct {
	maxEntries int
	mu         sync.Mutex
}

// NewActivityLog creates a log keeping the most recent 200 entries
func NewActivityLog() *ActivityLog {
	return &ActivityLog{maxEntries: activityLogMaxEntries}
}

// Append writes entry to the project's session summary and trims it
func (l *ActivityLog) Append(projectPath string, entry ActivityEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := filepath.Join(projectPath, domain.SessionSummaryFile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open session summary: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("failed to lock session summary: %w", err)
	}
	defer unlockFile(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read session summary: %w", err)
	}

	header, body := splitSummary(string(data))
	body = append(body, entry.Line())
	if len(body) > l.maxEntries {
		body = body[len(body)-l.maxEntries:]
	}

	content := header + strings.Join(body, "\n") + "\n"
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate session summary: %w", err)
	}
	if _, err := file.WriteAt([]byte(content), 0); err != nil {
		return fmt.Errorf("failed to write session summary: %w", err)
	}
	return nil
}

// splitSummary separates the markdown header (title and blank line) from entry lines
func splitSummary(content string) (string, []string) {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		lines = nil
	}

	header := domain.SessionSummaryHeader
	if len(lines) > 0 && strings.HasPrefix(lines[0], "#") {
		header = lines[0] + "\n\n"
		lines = lines[1:]
		if len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
			lines = lines[1:]
		}
	}

	body := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			body = append(body, line)
		}
	}
	return header, body
}

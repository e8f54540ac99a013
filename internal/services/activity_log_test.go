package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildloop/buildloop/internal/domain"
)

func TestActivityEntry_Line(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry ActivityEntry
		want  string
	}{
		{
			name:  "no files and no sub-agent",
			entry: ActivityEntry{CLI: domain.CLICodex, Success: false, Timestamp: ts},
			want:  "2025-03-01T12:00:00Z | cli=codex | sub_agent=- | success=false | changes=false | files=[] | cost=$0.00 | turns=0",
		},
		{
			name: "files sorted and capped",
			entry: ActivityEntry{
				CLI:           domain.CLIClaude,
				CostUSD:       1.234,
				FilesModified: []string{"j", "i", "h", "g", "f", "e", "d", "c", "b", "a"},
				HasChanges:    true,
				NumTurns:      7,
				SubAgent:      "frontend",
				Success:       true,
				Timestamp:     ts,
			},
			want: "2025-03-01T12:00:00Z | cli=claude | sub_agent=frontend | success=true | changes=true | files=[a, b, c, d, e, f, g, h +2] | cost=$1.23 | turns=7",
		},
		{
			name:  "shell change without file list",
			entry: ActivityEntry{CLI: domain.CLIGemini, HasChanges: true, Success: true, Timestamp: ts},
			want:  "2025-03-01T12:00:00Z | cli=gemini | sub_agent=- | success=true | changes=true | files=[] | cost=$0.00 | turns=0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.Line())
		})
	}
}

func TestActivityLog_AppendKeepsHeaderAndTrims(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, domain.SessionSummaryFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("# Project Notes\n\nold entry\n"), 0644))

	log := &ActivityLog{maxEntries: 3}
	for i := range 4 {
		require.NoError(t, log.Append(dir, ActivityEntry{CLI: domain.CLIClaude, NumTurns: i, Timestamp: time.Now()}))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "# Project Notes", lines[0])
	assert.Empty(t, lines[1])
	for i, line := range lines[2:] {
		assert.True(t, strings.HasSuffix(line, fmt.Sprintf("turns=%d", i+1)), line)
	}
}

func TestActivityLog_CreatesSummary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewActivityLog().Append(dir, ActivityEntry{CLI: domain.CLIGemini, Timestamp: time.Now()}))

	data, err := os.ReadFile(filepath.Join(dir, domain.SessionSummaryFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), domain.SessionSummaryHeader))
	assert.Contains(t, string(data), "cli=gemini")
}

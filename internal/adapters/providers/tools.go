package providers

import (
	"fmt"
	"strings"

	"github.com/buildloop/buildloop/internal/domain"
)

const todoTool = "TodoWrite"

var baseTools = []string{
	"Read", "Write", "Edit", "MultiEdit", "Bash", "Glob", "Grep", "LS", "WebFetch", "WebSearch",
}

// toolPolicy returns the allowed and disallowed tool sets. The todo tool is
// withheld while a project is being bootstrapped.
func toolPolicy(initial bool) (allowed, disallowed []string) {
	allowed = append([]string(nil), baseTools...)
	if initial {
		return allowed, []string{todoTool}
	}
	return append(allowed, todoTool), nil
}

// fileWritingTools change files in the working tree
var fileWritingTools = map[string]bool{
	"Edit":         true,
	"MultiEdit":    true,
	"NotebookEdit": true,
	"Write":        true,
	"edit":         true,
	"replace":      true,
	"write_file":   true,
}

// shellTools may change files as a side effect
var shellTools = map[string]bool{
	"Bash":              true,
	"run_shell_command": true,
	"shell":             true,
}

// toolSummary renders a short human readable description of a tool call
func toolSummary(name string, input map[string]any) string {
	str := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := input[k].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}

	switch name {
	case "Read", "read_file":
		return "Reading: " + str("file_path", "path", "absolute_path")
	case "Write", "write_file":
		return "Writing: " + str("file_path", "path")
	case "Edit", "MultiEdit", "NotebookEdit", "edit", "replace":
		return "Editing: " + str("file_path", "notebook_path", "path")
	case "Bash", "run_shell_command", "shell":
		return "Running: " + truncate(str("command", "cmd"), 60)
	case "Glob", "glob":
		return "Searching: " + str("pattern")
	case "Grep", "search_file_content":
		return "Grepping: " + str("pattern")
	case "LS", "list_directory":
		return "Listing: " + str("path")
	case "WebFetch", "web_fetch":
		return "Fetching: " + str("url", "prompt")
	case "WebSearch", "google_web_search":
		return "Searching web: " + str("query")
	case "TodoWrite", "todo_write":
		return "Managing todos"
	}
	return "Using " + name
}

// toolUseMessage normalizes one tool invocation
func toolUseMessage(name, id string, input map[string]any) domain.Message {
	if input == nil {
		input = map[string]any{}
	}
	metadata := map[string]any{
		domain.MetaToolID:    id,
		domain.MetaToolInput: input,
		domain.MetaToolName:  name,
	}
	if fileWritingTools[name] {
		metadata[domain.MetaChangesMade] = true
		if path := firstString(input, "file_path", "notebook_path", "path", "absolute_path"); path != "" {
			metadata[domain.MetaFilesModified] = []string{path}
		}
	} else if shellTools[name] {
		metadata[domain.MetaChangesMade] = true
	}
	return domain.NewMessage(domain.RoleAssistant, domain.MessageToolUse, toolSummary(name, input), metadata)
}

// toolResultMessage normalizes the output of a tool invocation
func toolResultMessage(toolID, output string, isError bool) domain.Message {
	const maxResult = 2000
	if runes := []rune(output); len(runes) > maxResult {
		output = string(runes[:maxResult]) + fmt.Sprintf("\n... (%d more characters)", len(runes)-maxResult)
	}
	return domain.NewMessage(domain.RoleAssistant, domain.MessageToolResult, output, map[string]any{
		domain.MetaIsError: isError,
		domain.MetaToolID:  toolID,
	})
}

// errorMessage reports a provider-side failure inside the stream
func errorMessage(cli domain.CLIType, text string) domain.Message {
	text = strings.TrimSpace(text)
	if text == "" {
		text = fmt.Sprintf("%s reported an error", cli)
	}
	return domain.NewMessage(domain.RoleAssistant, domain.MessageError, text, nil)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// imageHints lists attached images by path for providers without native image flags
func imageHints(images []domain.Image) string {
	if len(images) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nAttached images (open them by path):")
	for i, img := range images {
		fmt.Fprintf(&b, "\n- Image #%d: %s", i+1, img.Path)
	}
	return b.String()
}

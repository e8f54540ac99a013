package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
)

var codexCatalog = modelCatalog{
	aliases:      map[string]string{"gpt5": "gpt-5", "codex": "gpt-5-codex"},
	defaultModel: "gpt-5-codex",
	models:       []string{"gpt-5", "gpt-5-codex", "gpt-5.1-codex"},
}

// NewCodex creates the Codex CLI adapter
func NewCodex(opts Options) *Adapter {
	return newAdapter(opts, Adapter{
		catalog: codexCatalog,
		cli:     domain.CLICodex,
		credentials: func() (bool, string) {
			if anyEnvSet("OPENAI_API_KEY") || anyFileExists(homePath(".codex", "auth.json")) {
				return true, ""
			}
			return false, "Codex CLI not authenticated: run `codex login` or set OPENAI_API_KEY"
		},
		dialect:    &codexDialect{},
		exec:       resolveExec(opts.Exec, "codex", nil, "CODEX_CMD", "CODEX_EXEC"),
		healthArgs: []string{"--version"},
		resumable:  true,
	})
}

type codexDialect struct{}

func (d *codexDialect) args(inv *invocation) []string {
	args := []string{
		"exec",
		"--json",
		"--skip-git-repo-check",
		"--dangerously-bypass-approvals-and-sandbox",
		"-m", inv.model,
	}
	for _, img := range inv.images {
		args = append(args, "-i", img.Path)
	}
	if inv.resumeID != "" {
		args = append(args, "resume", inv.resumeID)
	}
	return append(args, withSystemPrompt(inv))
}

func (d *codexDialect) newParser() streamParser {
	return &codexParser{}
}

type codexEvent struct {
	Error    *codexError `json:"error"`
	Item     *codexItem  `json:"item"`
	Message  string      `json:"message"`
	ThreadID string      `json:"thread_id"`
	Type     string      `json:"type"`
	Usage    *codexUsage `json:"usage"`
}

type codexError struct {
	Message string `json:"message"`
}

type codexItem struct {
	AggregatedOutput string        `json:"aggregated_output"`
	Changes          []codexChange `json:"changes"`
	Command          string        `json:"command"`
	ExitCode         *int          `json:"exit_code"`
	ID               string        `json:"id"`
	Message          string        `json:"message"`
	Status           string        `json:"status"`
	Text             string        `json:"text"`
	Type             string        `json:"type"`
}

type codexChange struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

type codexUsage struct {
	CachedInputTokens int64 `json:"cached_input_tokens"`
	InputTokens       int64 `json:"input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
}

// codexParser maps `codex exec --json` thread events. Codex has no explicit
// failure flag on its terminal event; failures surface as error messages.
type codexParser struct {
	finished bool
	thread   string
}

func (p *codexParser) parse(line []byte) []domain.Message {
	var ev codexEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		logging.Logger.Debug("Skipping non-JSON provider output", "cli", domain.CLICodex, "line", truncate(string(line), 200))
		return nil
	}

	switch ev.Type {
	case "thread.started":
		p.thread = ev.ThreadID
		return []domain.Message{domain.NewMessage(domain.RoleSystem, domain.MessageSystem, "Codex session started",
			map[string]any{domain.MetaHiddenFromUI: true, domain.MetaSessionID: ev.ThreadID})}

	case "item.started":
		if ev.Item != nil && ev.Item.Type == "command_execution" {
			return []domain.Message{toolUseMessage("shell", ev.Item.ID, map[string]any{"command": ev.Item.Command})}
		}

	case "item.completed":
		if ev.Item != nil {
			return p.completed(ev.Item)
		}

	case "turn.completed":
		p.finished = true
		metadata := map[string]any{
			domain.MetaHiddenFromUI: true,
			domain.MetaNumTurns:     1,
			domain.MetaSessionID:    p.thread,
		}
		if ev.Usage != nil {
			metadata["input_tokens"] = ev.Usage.InputTokens
			metadata["output_tokens"] = ev.Usage.OutputTokens
		}
		return []domain.Message{domain.NewMessage(domain.RoleSystem, domain.MessageResult, "", metadata)}

	case "turn.failed":
		p.finished = true
		text := ""
		if ev.Error != nil {
			text = ev.Error.Message
		}
		return []domain.Message{errorMessage(domain.CLICodex, text)}

	case "error":
		return []domain.Message{errorMessage(domain.CLICodex, ev.Message)}
	}
	return nil
}

func (p *codexParser) completed(item *codexItem) []domain.Message {
	switch item.Type {
	case "agent_message":
		if strings.TrimSpace(item.Text) == "" {
			return nil
		}
		return []domain.Message{domain.NewMessage(domain.RoleAssistant, domain.MessageChat, item.Text, nil)}

	case "reasoning":
		if strings.TrimSpace(item.Text) == "" {
			return nil
		}
		return []domain.Message{domain.NewMessage(domain.RoleAssistant, domain.MessageSystem, item.Text,
			map[string]any{domain.MetaHiddenFromUI: true, "reasoning": true})}

	case "command_execution":
		failed := item.Status == "failed" || (item.ExitCode != nil && *item.ExitCode != 0)
		return []domain.Message{toolResultMessage(item.ID, item.AggregatedOutput, failed)}

	case "file_change":
		paths := make([]string, 0, len(item.Changes))
		kinds := make([]string, 0, len(item.Changes))
		for _, c := range item.Changes {
			paths = append(paths, c.Path)
			kinds = append(kinds, fmt.Sprintf("%s %s", c.Kind, c.Path))
		}
		msg := domain.NewMessage(domain.RoleAssistant, domain.MessageToolUse, "Editing: "+strings.Join(kinds, ", "),
			map[string]any{
				domain.MetaChangesMade:   true,
				domain.MetaFilesModified: paths,
				domain.MetaToolID:        item.ID,
				domain.MetaToolName:      "apply_patch",
			})
		return []domain.Message{msg}

	case "error":
		return []domain.Message{errorMessage(domain.CLICodex, item.Message)}
	}
	return nil
}

func (p *codexParser) flush() []domain.Message { return nil }
func (p *codexParser) sessionID() string       { return p.thread }
func (p *codexParser) done() bool              { return p.finished }

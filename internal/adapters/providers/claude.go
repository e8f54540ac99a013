package providers

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
)

const concisenessDirective = "\n\nKeep chat output concise: short status lines, no long file dumps, summarize diffs."

var claudeCatalog = modelCatalog{
	aliases: map[string]string{
		"claude-haiku-4.5":  "claude-haiku-4-5-20251001",
		"claude-opus-4.1":   "claude-opus-4-1-20250805",
		"claude-sonnet-4":   "claude-sonnet-4-20250514",
		"claude-sonnet-4.5": "claude-sonnet-4-5-20250929",
		"haiku":             "claude-haiku-4-5-20251001",
		"opus":              "claude-opus-4-1-20250805",
		"sonnet":            "claude-sonnet-4-5-20250929",
	},
	defaultModel: "claude-sonnet-4-5-20250929",
	models: []string{
		"claude-sonnet-4-5-20250929",
		"claude-opus-4-1-20250805",
		"claude-haiku-4-5-20251001",
		"claude-sonnet-4-20250514",
	},
}

// NewClaude creates the Claude Code adapter
func NewClaude(opts Options) *Adapter {
	return newAdapter(opts, Adapter{
		catalog:    claudeCatalog,
		cli:        domain.CLIClaude,
		dialect:    &claudeDialect{},
		exec:       resolveExec(opts.Exec, "claude", []string{homePath(".claude", "local", "claude")}, "CLAUDE_CMD", "CLAUDE_EXEC"),
		healthArgs: []string{"--version"},
		resumable:  true,
	})
}

type claudeDialect struct{}

func (d *claudeDialect) prepare(inv *invocation) (func(), error) {
	if err := ensureProjectSettings(inv.projectPath); err != nil {
		logging.Logger.Warn("Failed to persist project settings", "path", inv.projectPath, "error", err)
	}

	if inv.initial {
		if err := writeRepoMap(inv.projectPath); err != nil {
			logging.Logger.Warn("Failed to write repo map", "path", inv.projectPath, "error", err)
		}
		if err := ensureSessionSummary(inv.projectPath); err != nil {
			logging.Logger.Warn("Failed to create session summary", "path", inv.projectPath, "error", err)
		}
		inv.instruction += contextHint
	}

	if inv.reuse {
		return func() {}, nil
	}

	inv.systemPrompt += concisenessDirective
	path, err := writeTempSettings(mergedSettings(inv.projectPath, inv.systemPrompt))
	if err != nil {
		// The prompt still reaches the provider through the flag
		logging.Logger.Warn("Failed to write session settings, passing prompt inline", "error", err)
		return func() {}, nil
	}
	inv.settingsPath = path
	return func() { _ = os.Remove(path) }, nil
}

func (d *claudeDialect) args(inv *invocation) []string {
	allowed, disallowed := toolPolicy(inv.initial)
	args := []string{
		"-p", inv.instruction + imageHints(inv.images),
		"--output-format", "stream-json",
		"--verbose",
		"--model", inv.model,
		"--permission-mode", "bypassPermissions",
		"--allowedTools", strings.Join(allowed, ","),
	}
	if len(disallowed) > 0 {
		args = append(args, "--disallowedTools", strings.Join(disallowed, ","))
	}
	if inv.resumeID != "" {
		args = append(args, "--resume", inv.resumeID)
	}
	if inv.settingsPath != "" {
		args = append(args, "--settings", inv.settingsPath)
	} else if inv.systemPrompt != "" {
		args = append(args, "--append-system-prompt", inv.systemPrompt)
	}
	return args
}

func (d *claudeDialect) newParser() streamParser {
	return &claudeParser{cli: domain.CLIClaude, explicitResult: true, label: "Claude Code"}
}

// claudeEvent is one line of the stream-json protocol shared by Claude Code and Qwen Code
type claudeEvent struct {
	DurationAPIMS int64          `json:"duration_api_ms"`
	DurationMS    int64          `json:"duration_ms"`
	IsError       bool           `json:"is_error"`
	Message       *claudeMessage `json:"message"`
	Model         string         `json:"model"`
	NumTurns      int            `json:"num_turns"`
	Result        string         `json:"result"`
	SessionID     string         `json:"session_id"`
	Subtype       string         `json:"subtype"`
	TotalCostUSD  float64        `json:"total_cost_usd"`
	Type          string         `json:"type"`
}

type claudeMessage struct {
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Content   json.RawMessage `json:"content"`
	ID        string          `json:"id"`
	Input     map[string]any  `json:"input"`
	IsError   bool            `json:"is_error"`
	Name      string          `json:"name"`
	Text      string          `json:"text"`
	ToolUseID string          `json:"tool_use_id"`
	Type      string          `json:"type"`
}

// claudeParser maps stream-json events. With explicitResult the terminal
// result carries is_error/subtype for the manager; otherwise a failed
// result is reported as an error message.
type claudeParser struct {
	cli            domain.CLIType
	explicitResult bool
	finished       bool
	label          string
	session        string
}

func (p *claudeParser) parse(line []byte) []domain.Message {
	var ev claudeEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		logging.Logger.Debug("Skipping non-JSON provider output", "cli", p.cli, "line", truncate(string(line), 200))
		return nil
	}
	if ev.SessionID != "" {
		p.session = ev.SessionID
	}

	switch ev.Type {
	case "system":
		if ev.Subtype != "" && ev.Subtype != "init" {
			return nil
		}
		model := ev.Model
		if model == "" {
			model = "default"
		}
		return []domain.Message{domain.NewMessage(domain.RoleSystem, domain.MessageSystem,
			fmt.Sprintf("%s initialized (Model: %s)", p.label, model),
			map[string]any{
				domain.MetaHiddenFromUI: true,
				domain.MetaSessionID:    ev.SessionID,
				"model":                 model,
			})}

	case "assistant":
		if ev.Message == nil {
			return nil
		}
		var out []domain.Message
		for _, block := range ev.Message.Content {
			switch block.Type {
			case "text":
				if strings.TrimSpace(block.Text) != "" {
					out = append(out, domain.NewMessage(domain.RoleAssistant, domain.MessageChat, block.Text, nil))
				}
			case "tool_use":
				out = append(out, toolUseMessage(block.Name, block.ID, block.Input))
			}
		}
		return out

	case "user":
		if ev.Message == nil {
			return nil
		}
		var out []domain.Message
		for _, block := range ev.Message.Content {
			if block.Type == "tool_result" {
				out = append(out, toolResultMessage(block.ToolUseID, flattenContent(block.Content), block.IsError))
			}
		}
		return out

	case "result":
		p.finished = true
		metadata := map[string]any{
			domain.MetaDurationAPIMS: ev.DurationAPIMS,
			domain.MetaDurationMS:    ev.DurationMS,
			domain.MetaHiddenFromUI:  true,
			domain.MetaNumTurns:      ev.NumTurns,
			domain.MetaSessionID:     ev.SessionID,
			domain.MetaTotalCostUSD:  ev.TotalCostUSD,
		}
		failed := ev.IsError || strings.HasPrefix(ev.Subtype, "error")
		if p.explicitResult {
			metadata[domain.MetaIsError] = ev.IsError
			metadata[domain.MetaSubtype] = ev.Subtype
			return []domain.Message{domain.NewMessage(domain.RoleSystem, domain.MessageResult, ev.Result, metadata)}
		}
		out := []domain.Message{}
		if failed {
			out = append(out, errorMessage(p.cli, ev.Result))
		}
		return append(out, domain.NewMessage(domain.RoleSystem, domain.MessageResult, ev.Result, metadata))
	}
	return nil
}

func (p *claudeParser) flush() []domain.Message { return nil }
func (p *claudeParser) sessionID() string       { return p.session }
func (p *claudeParser) done() bool              { return p.finished }

// flattenContent reads tool output given either as a string or as text blocks
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}

// truncate cuts s to n characters
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

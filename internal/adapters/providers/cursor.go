package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
)

var cursorCatalog = modelCatalog{
	aliases: map[string]string{
		"claude-opus-4.1":   "opus-4.1",
		"claude-sonnet-4.5": "sonnet-4.5",
		"gpt5":              "gpt-5",
	},
	defaultModel: "gpt-5",
	models:       []string{"gpt-5", "sonnet-4.5", "sonnet-4.5-thinking", "opus-4.1", "grok"},
}

// NewCursor creates the Cursor Agent adapter. cursor-agent only flushes its
// stream per line when attached to a terminal, so it runs under a pty.
func NewCursor(opts Options) *Adapter {
	return newAdapter(opts, Adapter{
		catalog: cursorCatalog,
		cli:     domain.CLICursor,
		credentials: func() (bool, string) {
			if anyEnvSet("CURSOR_API_KEY") || anyFileExists(homePath(".cursor", "cli-config.json")) {
				return true, ""
			}
			return false, "Cursor CLI not authenticated: run `cursor-agent login` or set CURSOR_API_KEY"
		},
		dialect:    &cursorDialect{},
		exec:       resolveExec(opts.Exec, "cursor-agent", []string{homePath(".local", "bin", "cursor-agent")}, "CURSOR_CMD", "CURSOR_AGENT_EXEC"),
		healthArgs: []string{"--version"},
		resumable:  true,
		usePTY:     true,
	})
}

type cursorDialect struct{}

func (d *cursorDialect) args(inv *invocation) []string {
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--force",
		"--model", inv.model,
	}
	if inv.resumeID != "" {
		args = append(args, "--resume", inv.resumeID)
	}
	return append(args, withSystemPrompt(inv)+imageHints(inv.images))
}

func (d *cursorDialect) newParser() streamParser {
	return &cursorParser{}
}

type cursorEvent struct {
	CallID     string                    `json:"call_id"`
	DurationMS int64                     `json:"duration_ms"`
	IsError    bool                      `json:"is_error"`
	Message    *claudeMessage            `json:"message"`
	Model      string                    `json:"model"`
	Result     string                    `json:"result"`
	SessionID  string                    `json:"session_id"`
	Subtype    string                    `json:"subtype"`
	ToolCall   map[string]cursorToolCall `json:"tool_call"`
	Type       string                    `json:"type"`
}

type cursorToolCall struct {
	Args   map[string]any  `json:"args"`
	Result json.RawMessage `json:"result"`
}

// cursorToolNames maps cursor tool call keys onto the common tool vocabulary
var cursorToolNames = map[string]string{
	"deleteToolCall": "Delete",
	"editToolCall":   "Edit",
	"globToolCall":   "Glob",
	"grepToolCall":   "Grep",
	"lsToolCall":     "LS",
	"readToolCall":   "Read",
	"shellToolCall":  "Bash",
	"todoToolCall":   "TodoWrite",
	"writeToolCall":  "Write",
}

type cursorParser struct {
	finished bool
	session  string
}

func (p *cursorParser) parse(line []byte) []domain.Message {
	var ev cursorEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		logging.Logger.Debug("Skipping non-JSON provider output", "cli", domain.CLICursor, "line", truncate(string(line), 200))
		return nil
	}
	if ev.SessionID != "" {
		p.session = ev.SessionID
	}

	switch ev.Type {
	case "system":
		model := ev.Model
		if model == "" {
			model = "default"
		}
		return []domain.Message{domain.NewMessage(domain.RoleSystem, domain.MessageSystem,
			fmt.Sprintf("Cursor Agent initialized (Model: %s)", model),
			map[string]any{domain.MetaHiddenFromUI: true, domain.MetaSessionID: ev.SessionID, "model": model})}

	case "assistant":
		if ev.Message == nil {
			return nil
		}
		var parts []string
		for _, block := range ev.Message.Content {
			if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
				parts = append(parts, block.Text)
			}
		}
		if len(parts) == 0 {
			return nil
		}
		return []domain.Message{domain.NewMessage(domain.RoleAssistant, domain.MessageChat, strings.Join(parts, ""), nil)}

	case "tool_call":
		name, call := cursorTool(ev.ToolCall)
		switch ev.Subtype {
		case "started":
			return []domain.Message{toolUseMessage(name, ev.CallID, cursorToolInput(name, call.Args))}
		case "completed":
			output, failed := cursorToolOutput(call.Result)
			return []domain.Message{toolResultMessage(ev.CallID, output, failed)}
		}
		return nil

	case "result":
		p.finished = true
		return []domain.Message{domain.NewMessage(domain.RoleSystem, domain.MessageResult, ev.Result, map[string]any{
			domain.MetaDurationMS:   ev.DurationMS,
			domain.MetaEventType:    "result",
			domain.MetaHiddenFromUI: true,
			domain.MetaIsError:      ev.IsError,
			domain.MetaSessionID:    ev.SessionID,
			domain.MetaSubtype:      ev.Subtype,
		})}
	}
	return nil
}

func (p *cursorParser) flush() []domain.Message { return nil }
func (p *cursorParser) sessionID() string       { return p.session }
func (p *cursorParser) done() bool              { return p.finished }

func cursorTool(calls map[string]cursorToolCall) (string, cursorToolCall) {
	for key, call := range calls {
		if name, ok := cursorToolNames[key]; ok {
			return name, call
		}
		if key == "function" {
			if fn, ok := call.Args["name"].(string); ok && fn != "" {
				return fn, call
			}
		}
		return strings.TrimSuffix(key, "ToolCall"), call
	}
	return "tool", cursorToolCall{}
}

// cursorToolInput renames cursor argument keys to the ones tool summaries read
func cursorToolInput(name string, args map[string]any) map[string]any {
	input := make(map[string]any, len(args)+1)
	for k, v := range args {
		input[k] = v
	}
	if path, ok := args["path"].(string); ok && name != "LS" {
		input["file_path"] = path
	}
	return input
}

func cursorToolOutput(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var result struct {
		Error   json.RawMessage `json:"error"`
		Success json.RawMessage `json:"success"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return string(raw), false
	}
	if len(result.Error) > 0 && string(result.Error) != "null" {
		return flattenContent(result.Error), true
	}
	var success map[string]any
	if err := json.Unmarshal(result.Success, &success); err == nil {
		if s := firstString(success, "content", "stdout", "output", "message"); s != "" {
			return s, false
		}
	}
	return string(result.Success), false
}

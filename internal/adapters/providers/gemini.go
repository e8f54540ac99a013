package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
)

var geminiCatalog = modelCatalog{
	aliases:      map[string]string{"pro": "gemini-2.5-pro", "flash": "gemini-2.5-flash"},
	defaultModel: "gemini-2.5-pro",
	models:       []string{"gemini-2.5-pro", "gemini-2.5-flash"},
}

// NewGemini creates the Gemini CLI adapter
func NewGemini(opts Options) *Adapter {
	return newAdapter(opts, Adapter{
		catalog: geminiCatalog,
		cli:     domain.CLIGemini,
		credentials: func() (bool, string) {
			if anyEnvSet("GEMINI_API_KEY", "GOOGLE_API_KEY") ||
				anyFileExists(homePath(".gemini", "oauth_creds.json"), homePath(".gemini", "settings.json")) {
				return true, ""
			}
			return false, "Gemini CLI not authenticated: run `gemini` once to log in or set GEMINI_API_KEY"
		},
		dialect:    &geminiDialect{},
		exec:       resolveExec(opts.Exec, "gemini", nil, "GEMINI_CMD", "GEMINI_EXEC"),
		healthArgs: []string{"--version"},
	})
}

type geminiDialect struct{}

func (d *geminiDialect) args(inv *invocation) []string {
	return []string{
		"-p", withSystemPrompt(inv) + imageHints(inv.images),
		"-o", "stream-json",
		"--yolo",
		"-m", inv.model,
	}
}

func (d *geminiDialect) newParser() streamParser {
	return &geminiParser{}
}

type geminiEvent struct {
	Content    string         `json:"content"`
	Delta      bool           `json:"delta"`
	Error      *codexError    `json:"error"`
	Message    string         `json:"message"`
	Model      string         `json:"model"`
	Output     string         `json:"output"`
	Parameters map[string]any `json:"parameters"`
	Role       string         `json:"role"`
	SessionID  string         `json:"session_id"`
	Stats      *geminiStats   `json:"stats"`
	Status     string         `json:"status"`
	ToolID     string         `json:"tool_id"`
	ToolName   string         `json:"tool_name"`
	Type       string         `json:"type"`
}

type geminiStats struct {
	DurationMS   int64 `json:"duration_ms"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	ToolCalls    int   `json:"tool_calls"`
}

// geminiParser maps gemini stream-json events. Assistant text may arrive as
// deltas, which are buffered until the next non-delta event.
type geminiParser struct {
	buffer   strings.Builder
	finished bool
	session  string
}

func (p *geminiParser) parse(line []byte) []domain.Message {
	var ev geminiEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		logging.Logger.Debug("Skipping non-JSON provider output", "cli", domain.CLIGemini, "line", truncate(string(line), 200))
		return nil
	}
	if ev.SessionID != "" {
		p.session = ev.SessionID
	}

	if ev.Type == "message" && ev.Role == "assistant" && ev.Delta {
		p.buffer.WriteString(ev.Content)
		return nil
	}
	out := p.flush()

	switch ev.Type {
	case "init":
		model := ev.Model
		if model == "" {
			model = "default"
		}
		return append(out, domain.NewMessage(domain.RoleSystem, domain.MessageSystem,
			fmt.Sprintf("Gemini CLI initialized (Model: %s)", model),
			map[string]any{domain.MetaHiddenFromUI: true, domain.MetaSessionID: ev.SessionID, "model": model}))

	case "message":
		if ev.Role == "assistant" && strings.TrimSpace(ev.Content) != "" {
			out = append(out, domain.NewMessage(domain.RoleAssistant, domain.MessageChat, ev.Content, nil))
		}
		return out

	case "tool_use":
		return append(out, toolUseMessage(ev.ToolName, ev.ToolID, ev.Parameters))

	case "tool_result":
		output := ev.Output
		if ev.Error != nil && ev.Error.Message != "" {
			output = ev.Error.Message
		}
		return append(out, toolResultMessage(ev.ToolID, output, ev.Status == "error"))

	case "error":
		text := ev.Message
		if ev.Error != nil && text == "" {
			text = ev.Error.Message
		}
		return append(out, errorMessage(domain.CLIGemini, text))

	case "result":
		p.finished = true
		if ev.Status == "error" {
			text := "Gemini CLI run failed"
			if ev.Error != nil && ev.Error.Message != "" {
				text = ev.Error.Message
			}
			out = append(out, errorMessage(domain.CLIGemini, text))
		}
		metadata := map[string]any{
			domain.MetaHiddenFromUI: true,
			domain.MetaSessionID:    p.session,
		}
		if ev.Stats != nil {
			metadata[domain.MetaDurationMS] = ev.Stats.DurationMS
			metadata["input_tokens"] = ev.Stats.InputTokens
			metadata["output_tokens"] = ev.Stats.OutputTokens
		}
		return append(out, domain.NewMessage(domain.RoleSystem, domain.MessageResult, "", metadata))
	}
	return out
}

func (p *geminiParser) flush() []domain.Message {
	if p.buffer.Len() == 0 {
		return nil
	}
	text := p.buffer.String()
	p.buffer.Reset()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []domain.Message{domain.NewMessage(domain.RoleAssistant, domain.MessageChat, text, nil)}
}

func (p *geminiParser) sessionID() string { return p.session }
func (p *geminiParser) done() bool        { return p.finished }

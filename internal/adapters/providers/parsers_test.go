package providers

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildloop/buildloop/internal/domain"
)

func parseAll(p streamParser, stream string) []domain.Message {
	var out []domain.Message
	for _, line := range strings.Split(stream, "\n") {
		out = append(out, p.parse(trimLine([]byte(line)))...)
	}
	return append(out, p.flush()...)
}

func TestQwenParser_FailedResultBecomesError(t *testing.T) {
	p := (&qwenDialect{}).newParser()
	msgs := parseAll(p, `{"type":"result","subtype":"error_max_turns","is_error":true,"result":"Turn limit reached","num_turns":40}`)

	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageError, msgs[0].MessageType)
	assert.Equal(t, "Turn limit reached", msgs[0].Content)

	assert.True(t, msgs[1].IsResultEvent())
	assert.NotContains(t, msgs[1].Metadata, domain.MetaIsError)
	assert.NotContains(t, msgs[1].Metadata, domain.MetaSubtype)
	assert.True(t, p.done())
}

func TestQwenDialect_DropsImages(t *testing.T) {
	inv := &invocation{
		images:      []domain.Image{{Path: "/tmp/a.png"}},
		instruction: "style the page",
		model:       "qwen3-coder-plus",
	}
	args := (&qwenDialect{}).args(inv)
	assert.Equal(t, []string{"-p", "style the page", "--output-format", "stream-json", "--yolo", "-m", "qwen3-coder-plus"}, args)
}

func TestCursorParser(t *testing.T) {
	stream := `{"type":"system","subtype":"init","session_id":"c-1","model":"gpt-5"}
{"type":"assistant","message":{"content":[{"type":"text","text":"Updating styles"}]},"session_id":"c-1"}
{"type":"tool_call","subtype":"started","call_id":"call-1","tool_call":{"editToolCall":{"args":{"path":"src/app.css"}}}}
{"type":"tool_call","subtype":"completed","call_id":"call-1","tool_call":{"editToolCall":{"args":{"path":"src/app.css"},"result":{"success":{"message":"applied"}}}}}
{"type":"result","subtype":"success","is_error":false,"duration_ms":5000,"result":"done","session_id":"c-1"}`

	p := (&cursorDialect{}).newParser()
	msgs := parseAll(p, stream)
	require.Len(t, msgs, 5)

	assert.Equal(t, "Updating styles", msgs[1].Content)
	assert.Equal(t, "Editing: src/app.css", msgs[2].Content)
	assert.Equal(t, []string{"src/app.css"}, msgs[2].MetaStrings(domain.MetaFilesModified))
	assert.Equal(t, "applied", msgs[3].Content)
	assert.Equal(t, "result", msgs[4].MetaString(domain.MetaEventType))
	assert.Equal(t, false, msgs[4].Metadata[domain.MetaIsError])
	assert.Equal(t, "c-1", p.sessionID())
}

func TestCursorParser_ToleratesTerminalNoise(t *testing.T) {
	p := (&cursorDialect{}).newParser()
	msgs := p.parse(trimLine([]byte("\x1b[?25l{\"type\":\"result\",\"subtype\":\"error\",\"is_error\":true}\r")))
	require.Len(t, msgs, 1)
	assert.Equal(t, true, msgs[0].Metadata[domain.MetaIsError])
}

func TestCodexParser(t *testing.T) {
	stream := `{"type":"thread.started","thread_id":"th-9"}
{"type":"turn.started"}
{"type":"item.completed","item":{"id":"i0","type":"reasoning","text":"Planning the change"}}
{"type":"item.started","item":{"id":"i1","type":"command_execution","command":"ls -la","status":"in_progress"}}
{"type":"item.completed","item":{"id":"i1","type":"command_execution","command":"ls -la","aggregated_output":"README.md","exit_code":0,"status":"completed"}}
{"type":"item.completed","item":{"id":"i2","type":"file_change","changes":[{"path":"README.md","kind":"update"}],"status":"completed"}}
{"type":"item.completed","item":{"id":"i3","type":"agent_message","text":"Updated the README"}}
{"type":"turn.completed","usage":{"input_tokens":100,"cached_input_tokens":0,"output_tokens":20}}`

	p := (&codexDialect{}).newParser()
	msgs := parseAll(p, stream)
	require.Len(t, msgs, 7)

	assert.True(t, msgs[0].IsHidden())
	assert.True(t, msgs[1].IsHidden())
	assert.Equal(t, "Running: ls -la", msgs[2].Content)
	assert.Equal(t, domain.MessageToolResult, msgs[3].MessageType)
	assert.Equal(t, false, msgs[3].Metadata[domain.MetaIsError])
	assert.Equal(t, []string{"README.md"}, msgs[4].MetaStrings(domain.MetaFilesModified))
	assert.Equal(t, "Updated the README", msgs[5].Content)
	assert.True(t, msgs[6].IsResultEvent())
	assert.NotContains(t, msgs[6].Metadata, domain.MetaIsError)
	assert.Equal(t, "th-9", p.sessionID())
	assert.True(t, p.done())
}

func TestCodexParser_TurnFailed(t *testing.T) {
	p := (&codexDialect{}).newParser()
	msgs := parseAll(p, `{"type":"turn.failed","error":{"message":"rate limited"}}`)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageError, msgs[0].MessageType)
	assert.Equal(t, "rate limited", msgs[0].Content)
	assert.True(t, p.done())
}

func TestCodexDialect_ResumeArgs(t *testing.T) {
	inv := &invocation{
		images:      []domain.Image{{Path: "/tmp/shot.png"}},
		instruction: "fix the header",
		model:       "gpt-5-codex",
		resumeID:    "th-9",
		reuse:       true,
	}
	args := (&codexDialect{}).args(inv)
	assert.Equal(t, []string{
		"exec", "--json", "--skip-git-repo-check", "--dangerously-bypass-approvals-and-sandbox",
		"-m", "gpt-5-codex", "-i", "/tmp/shot.png", "resume", "th-9", "fix the header",
	}, args)
}

func TestGeminiParser_BuffersDeltas(t *testing.T) {
	stream := `{"type":"init","session_id":"g-1","model":"gemini-2.5-pro"}
{"type":"message","role":"user","content":"hi"}
{"type":"message","role":"assistant","content":"Hello ","delta":true}
{"type":"message","role":"assistant","content":"there","delta":true}
{"type":"tool_use","tool_name":"write_file","tool_id":"t1","parameters":{"file_path":"a.txt"}}
{"type":"tool_result","tool_id":"t1","status":"success","output":"written"}
{"type":"result","status":"success","stats":{"duration_ms":42,"input_tokens":5,"output_tokens":6,"tool_calls":1}}`

	p := (&geminiDialect{}).newParser()
	msgs := parseAll(p, stream)
	require.Len(t, msgs, 5)

	assert.Equal(t, "Hello there", msgs[1].Content)
	assert.Equal(t, "Writing: a.txt", msgs[2].Content)
	assert.Equal(t, []string{"a.txt"}, msgs[2].MetaStrings(domain.MetaFilesModified))
	assert.Equal(t, "written", msgs[3].Content)
	assert.True(t, msgs[4].IsResultEvent())
	duration, ok := msgs[4].MetaFloat(domain.MetaDurationMS)
	require.True(t, ok)
	assert.Equal(t, 42.0, duration)
}

func TestGeminiParser_ErrorResult(t *testing.T) {
	p := (&geminiDialect{}).newParser()
	msgs := parseAll(p, `{"type":"result","status":"error","error":{"message":"quota exceeded"}}`)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageError, msgs[0].MessageType)
	assert.Equal(t, "quota exceeded", msgs[0].Content)
	assert.True(t, msgs[1].IsResultEvent())
}

func TestToolSummary(t *testing.T) {
	long := strings.Repeat("x", 80)
	wide := strings.Repeat("é", 80)
	tests := []struct {
		name  string
		tool  string
		input map[string]any
		want  string
	}{
		{name: "read", tool: "Read", input: map[string]any{"file_path": "a.go"}, want: "Reading: a.go"},
		{name: "bash truncated", tool: "Bash", input: map[string]any{"command": long}, want: "Running: " + long[:60] + "..."},
		{name: "bash truncated on characters", tool: "Bash", input: map[string]any{"command": wide}, want: "Running: " + strings.Repeat("é", 60) + "..."},
		{name: "grep", tool: "Grep", input: map[string]any{"pattern": "TODO"}, want: "Grepping: TODO"},
		{name: "todo", tool: "TodoWrite", want: "Managing todos"},
		{name: "unknown", tool: "Frobnicate", want: "Using Frobnicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toolSummary(tt.tool, tt.input))
		})
	}
}

func TestToolResultMessage_TruncatesOnCharacters(t *testing.T) {
	msg := toolResultMessage("t1", strings.Repeat("日", 2005), false)

	assert.True(t, utf8.ValidString(msg.Content))
	assert.True(t, strings.HasPrefix(msg.Content, strings.Repeat("日", 2000)+"\n"))
	assert.True(t, strings.HasSuffix(msg.Content, "(5 more characters)"))
}

func TestToolPolicy(t *testing.T) {
	allowed, disallowed := toolPolicy(true)
	assert.NotContains(t, allowed, todoTool)
	assert.Equal(t, []string{todoTool}, disallowed)

	allowed, disallowed = toolPolicy(false)
	assert.Contains(t, allowed, todoTool)
	assert.Empty(t, disallowed)
}

package providers

import (
	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
)

var qwenCatalog = modelCatalog{
	aliases:      map[string]string{"qwen-coder": "qwen3-coder-plus"},
	defaultModel: "qwen3-coder-plus",
	models:       []string{"qwen3-coder-plus", "qwen3-coder-flash"},
}

// NewQwen creates the Qwen Code adapter. Qwen Code speaks the same
// stream-json protocol as Claude Code but reports no explicit failure flag
// the manager can rely on, and has no session resume.
func NewQwen(opts Options) *Adapter {
	return newAdapter(opts, Adapter{
		catalog: qwenCatalog,
		cli:     domain.CLIQwen,
		credentials: func() (bool, string) {
			if anyEnvSet("DASHSCOPE_API_KEY", "OPENAI_API_KEY") ||
				anyFileExists(homePath(".qwen", "oauth_creds.json"), homePath(".qwen", "settings.json")) {
				return true, ""
			}
			return false, "Qwen Code not authenticated: run `qwen` once to log in or set DASHSCOPE_API_KEY"
		},
		dialect:    &qwenDialect{},
		exec:       resolveExec(opts.Exec, "qwen", nil, "QWEN_CMD", "QWEN_EXEC"),
		healthArgs: []string{"--version"},
	})
}

type qwenDialect struct{}

func (d *qwenDialect) args(inv *invocation) []string {
	if len(inv.images) > 0 {
		logging.Logger.Warn("Qwen Code does not accept images, dropping attachments", "count", len(inv.images))
	}
	return []string{
		"-p", withSystemPrompt(inv),
		"--output-format", "stream-json",
		"--yolo",
		"-m", inv.model,
	}
}

func (d *qwenDialect) newParser() streamParser {
	return &claudeParser{cli: domain.CLIQwen, label: "Qwen Code"}
}

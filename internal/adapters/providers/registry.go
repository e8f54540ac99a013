package providers

import (
	"github.com/buildloop/buildloop/internal/config"
	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/ports"
)

// NewAll builds one adapter per supported CLI sharing a session store.
// Binary overrides come from the cli_commands setting keyed by CLI name.
func NewAll(cfg config.Config, prompts ports.SystemPrompter, sessions *SessionStore) map[domain.CLIType]ports.CLIAdapter {
	if sessions == nil {
		sessions = NewSessionStore()
	}
	opts := func(cli domain.CLIType) Options {
		return Options{
			Exec:     cfg.CLICommands[string(cli)],
			Prompts:  prompts,
			Sessions: sessions,
		}
	}

	claude := opts(domain.CLIClaude)
	claude.DefaultModel = cfg.ClaudeModel

	return map[domain.CLIType]ports.CLIAdapter{
		domain.CLIClaude: NewClaude(claude),
		domain.CLICodex:  NewCodex(opts(domain.CLICodex)),
		domain.CLICursor: NewCursor(opts(domain.CLICursor)),
		domain.CLIGemini: NewGemini(opts(domain.CLIGemini)),
		domain.CLIQwen:   NewQwen(opts(domain.CLIQwen)),
	}
}

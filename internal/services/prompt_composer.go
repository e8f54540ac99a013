package services

import (
	"strings"
	"sync"

	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/ports"
)

const fragmentSeparator = "\n\n---\n\n"

// FallbackSystemPrompt is used when no prompt fragment exists
const FallbackSystemPrompt = "You are an expert AI coding assistant that builds modern full-stack web applications. " +
	"Write high-quality, production-ready code with attention to performance, accessibility and design. " +
	"Keep changes minimal and explain them briefly."

var (
	coreFragments   = []string{"system-core.md", "system_core.md", "core.md"}
	designFragments = []string{"system-design.md", "system_design.md", "design.md"}
	legacyFragments = []string{"system-prompt.md", "system_prompt.md"}
)

type promptKey struct {
	firstRun bool
	subAgent string
}

// PromptComposer assembles the system prompt from layered fragments and
// caches every composition by its inputs
type PromptComposer struct {
	cache  map[promptKey]string
	mu     sync.Mutex
	source ports.PromptSource
}

// Verify interface compliance at compile time
var _ ports.SystemPrompter = (*PromptComposer)(nil)

// NewPromptComposer creates a composer reading from source
func NewPromptComposer(source ports.PromptSource) *PromptComposer {
	return &PromptComposer{
		cache:  make(map[promptKey]string),
		source: source,
	}
}

// SystemPrompt returns core + design (first run only) + the sub-agent
// fragment. Without core or design fragments the legacy monolithic prompt is
// the base, and without that the built-in fallback.
func (c *PromptComposer) SystemPrompt(firstRun bool, subAgent string) string {
	key := promptKey{firstRun: firstRun, subAgent: strings.ToLower(strings.TrimSpace(subAgent))}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prompt, ok := c.cache[key]; ok {
		return prompt
	}
	prompt := c.compose(key)
	c.cache[key] = prompt
	return prompt
}

// Invalidate drops every cached composition
func (c *PromptComposer) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cache)
	logging.Logger.Info("System prompt cache invalidated")
}

func (c *PromptComposer) compose(key promptKey) string {
	var parts []string
	if core, ok := c.source.Fragment(coreFragments...); ok {
		parts = append(parts, core)
	}
	if key.firstRun {
		if design, ok := c.source.Fragment(designFragments...); ok {
			parts = append(parts, design)
		}
	}

	source := "layered"
	if len(parts) == 0 {
		if legacy, ok := c.source.Fragment(legacyFragments...); ok {
			parts = append(parts, legacy)
			source = "legacy"
		} else {
			parts = append(parts, FallbackSystemPrompt)
			source = "fallback"
		}
	}

	if key.subAgent != "" {
		if agent, ok := c.source.Agent(key.subAgent); ok {
			parts = append(parts, agent.Body)
		}
	}

	logging.Logger.Debug("Composed system prompt",
		"first_run", key.firstRun,
		"sub_agent", key.subAgent,
		"source", source,
	)
	return strings.Join(parts, fragmentSeparator)
}

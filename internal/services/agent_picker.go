package services

import (
	"strings"

	"github.com/buildloop/buildloop/internal/ports"
)

type agentRule struct {
	agent    string
	keywords []string
}

// builtinAgentRules are checked in order; the first match wins
var builtinAgentRules = []agentRule{
	{agent: "frontend", keywords: []string{"style", "ui", "component", "tailwind", "css", "tsx", "react"}},
	{agent: "db", keywords: []string{"sql", "migration", "schema", "alembic", "prisma", "database", "db"}},
	{agent: "tests", keywords: []string{"test", "jest", "vitest", "playwright", "unit test", "e2e"}},
	{agent: "backend", keywords: []string{"api", "backend", "service", "fastapi", "endpoint"}},
}

// AgentPicker chooses a sub-agent from keywords in the instruction
type AgentPicker struct {
	source ports.PromptSource
}

// NewAgentPicker creates a picker. Keywords declared in sub-agent fragment
// front matter extend the built-in rules when source is set.
func NewAgentPicker(source ports.PromptSource) *AgentPicker {
	return &AgentPicker{source: source}
}

// Pick returns the sub-agent for instruction, or "" when none matches
func (p *AgentPicker) Pick(instruction string) string {
	text := strings.ToLower(instruction)
	if text == "" {
		return ""
	}

	for _, rule := range p.rules() {
		for _, kw := range rule.keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return rule.agent
			}
		}
	}
	return ""
}

func (p *AgentPicker) rules() []agentRule {
	rules := make([]agentRule, len(builtinAgentRules))
	copy(rules, builtinAgentRules)
	if p.source == nil {
		return rules
	}

	index := make(map[string]int, len(rules))
	for i, r := range rules {
		index[r.agent] = i
	}
	for _, agent := range p.source.Agents() {
		if len(agent.Keywords) == 0 {
			continue
		}
		if i, ok := index[agent.Name]; ok {
			rules[i].keywords = append(append([]string(nil), rules[i].keywords...), agent.Keywords...)
			continue
		}
		rules = append(rules, agentRule{agent: agent.Name, keywords: agent.Keywords})
	}
	return rules
}

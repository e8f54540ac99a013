package ports

// AgentFragment is a sub-agent prompt fragment and its front matter
type AgentFragment struct {
	Body     string
	Keywords []string
	Name     string
}

// PromptSource reads system prompt fragments
type PromptSource interface {
	// Fragment returns the first existing variant of a named fragment
	Fragment(names ...string) (string, bool)
	Agent(name string) (AgentFragment, bool)
	Agents() []AgentFragment
}

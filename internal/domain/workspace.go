package domain

// Files the orchestrator keeps inside each project working tree
const (
	ContextDir           = "context"
	RepoMapFile          = "context/repo-map.json"
	SessionSummaryFile   = "context/session-summary.md"
	SessionSummaryHeader = "# Session Summary\n\n"
)

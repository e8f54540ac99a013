package domain

// Image is an attachment handed to a provider by path
type Image struct {
	MimeType string `json:"mime_type,omitempty"`
	Name     string `json:"name,omitempty"`
	Path     string `json:"path"`
}

// ExecuteRequest is the input of a single adapter invocation
type ExecuteRequest struct {
	Images          []Image
	Instruction     string
	IsInitialPrompt bool
	Model           string
	ProjectID       string
	ProjectPath     string
	SessionID       string
	SubAgent        string
}

// Result is the structured outcome of ExecuteInstruction
type Result struct {
	APIDurationMS       int64
	CLIAttempted        CLIType
	CLIUsed             CLIType
	CostNoticeTriggered bool
	CostUSD             float64
	DurationMS          int64
	Error               string
	FallbackFrom        CLIType
	FallbackUsed        bool
	FilesModified       []string
	HasChanges          bool
	Message             string
	MessagesCount       int
	NumTurns            int
	Success             bool
}

// Metadata converts the result into the persisted request summary
func (r Result) Metadata() *ResultMetadata {
	files := r.FilesModified
	if files == nil {
		files = []string{}
	}
	return &ResultMetadata{
		APIDurationMS:       r.APIDurationMS,
		CLIUsed:             r.CLIUsed,
		CostNoticeTriggered: r.CostNoticeTriggered,
		CostUSD:             r.CostUSD,
		DurationMS:          r.DurationMS,
		FilesModified:       files,
		HasChanges:          r.HasChanges,
		NumTurns:            r.NumTurns,
	}
}

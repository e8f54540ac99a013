package domain

import (
	"fmt"
	"strings"
)

// CLIType identifies one external coding-agent backend
type CLIType string

const (
	CLIClaude CLIType = "claude"
	CLICodex  CLIType = "codex"
	CLICursor CLIType = "cursor"
	CLIGemini CLIType = "gemini"
	CLIQwen   CLIType = "qwen"
)

// DefaultCLI is the fallback target when another provider cannot run
const DefaultCLI = CLIClaude

// AllCLIs lists every known provider in display order
var AllCLIs = []CLIType{CLIClaude, CLICursor, CLICodex, CLIQwen, CLIGemini}

// ParseCLIType normalizes a user supplied CLI name
func ParseCLIType(s string) (CLIType, error) {
	t := CLIType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllCLIs {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCLI, s)
}

func (c CLIType) String() string {
	return string(c)
}

// Availability is the result of probing a provider binary
type Availability struct {
	Available     bool     `json:"available"`
	Configured    bool     `json:"configured"`
	DefaultModels []string `json:"default_models,omitempty"`
	Error         string   `json:"error,omitempty"`
	Models        []string `json:"models,omitempty"`
}

// Ready reports whether the provider can accept work
func (a Availability) Ready() bool {
	return a.Available && a.Configured
}

// CLIStatus is Availability enriched with model validation for a requested model
type CLIStatus struct {
	Availability
	CLI             CLIType  `json:"cli"`
	ModelValid      bool     `json:"model_valid,omitempty"`
	ModelWarning    string   `json:"model_warning,omitempty"`
	SelectedModel   string   `json:"selected_model,omitempty"`
	SuggestedModels []string `json:"suggested_models,omitempty"`
}

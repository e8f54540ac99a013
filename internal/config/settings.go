package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
)

// Settings represents the structure of $BUILDLOOP_HOME/settings.json.
// Pointer fields are optional; nil means "not set".
type Settings struct {
	APIPort             *int              `json:"api_port,omitempty"`
	ClaudeModel         string            `json:"claude_model,omitempty"`
	CLICommands         map[string]string `json:"cli_commands,omitempty"`
	CostNoticeUSD       *float64          `json:"cost_notice_usd,omitempty"`
	DBPath              string            `json:"db_path,omitempty"`
	Debug               *bool             `json:"debug,omitempty"`
	FreeCreditsOnSignup *int              `json:"free_credits_on_signup,omitempty"`
	HistoryLimit        *int              `json:"history_limit,omitempty"`
	JobMaxRetries       *int              `json:"job_max_retries,omitempty"`
	JobRetryDelaySec    *float64          `json:"job_retry_delay_sec,omitempty"`
	MaxLogFiles         *int              `json:"max_log_files,omitempty"`
	MetricsOutlierMult  *float64          `json:"metrics_outlier_mult,omitempty"`
	PlanFirstMinChars   *int              `json:"plan_first_min_chars,omitempty"`
	ProjectsRoot        string            `json:"projects_root,omitempty"`
	PromptDir           string            `json:"prompt_dir,omitempty"`
	TokensPerCredit     *int              `json:"tokens_per_credit,omitempty"`
	TurnsNoticeMin      *int              `json:"turns_notice_min,omitempty"`
}

// LoadSettings loads settings from $BUILDLOOP_HOME/settings.json.
// Returns empty Settings if the file doesn't exist (not an error).
func LoadSettings() (*Settings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

// LoadSettingsFrom loads settings from an explicit path
func LoadSettingsFrom(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("invalid settings.json: %w", err)
	}

	settings.DBPath = ExpandPath(settings.DBPath)
	settings.ProjectsRoot = ExpandPath(settings.ProjectsRoot)
	settings.PromptDir = ExpandPath(settings.PromptDir)

	return &settings, nil
}

// SaveSettings saves settings to $BUILDLOOP_HOME/settings.json
func SaveSettings(settings *Settings) error {
	path := GetSettingsPath()
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// GetSettingsExample uses reflection to list every settings key with its default.
// It stays in sync when new fields are added to Settings.
func GetSettingsExample() map[string]any {
	defaults := Default()
	byKey := map[string]any{
		"api_port":               defaults.APIPort,
		"claude_model":           defaults.ClaudeModel,
		"cli_commands":           map[string]string{"claude": "claude", "cursor": "cursor-agent"},
		"cost_notice_usd":        defaults.CostNoticeUSD,
		"db_path":                "~/.buildloop/buildloop.db",
		"debug":                  false,
		"free_credits_on_signup": defaults.FreeCreditsOnSignup,
		"history_limit":          defaults.HistoryLimit,
		"job_max_retries":        defaults.JobMaxRetries,
		"job_retry_delay_sec":    defaults.JobRetryDelay.Seconds(),
		"max_log_files":          1000,
		"metrics_outlier_mult":   defaults.MetricsOutlierMult,
		"plan_first_min_chars":   defaults.PlanFirstMinChars,
		"projects_root":          "~/.buildloop/projects",
		"prompt_dir":             "~/.buildloop/prompts",
		"tokens_per_credit":      defaults.TokensPerCredit,
		"turns_notice_min":       defaults.TurnsNoticeMin,
	}

	t := reflect.TypeOf(Settings{})
	example := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		jsonTag := t.Field(i).Tag.Get("json")
		if jsonTag == "" {
			continue
		}
		name := strings.Split(jsonTag, ",")[0]
		if v, ok := byKey[name]; ok {
			example[name] = v
		} else {
			example[name] = "example"
		}
	}
	return example
}

package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the resolved runtime configuration.
// Precedence: CLI flag > environment > settings.json > default.
type Config struct {
	APIPort             int
	ClaudeModel         string
	CLICommands         map[string]string
	CostNoticeUSD       float64
	DBPath              string
	FreeCreditsOnSignup int
	HistoryLimit        int
	JobMaxRetries       int
	JobRetryDelay       time.Duration
	MetricsOutlierMult  float64
	PlanFirstMinChars   int
	ProjectsRoot        string
	PromptDir           string
	TokensPerCredit     int
	TurnsNoticeMin      int
}

const DefaultClaudeModel = "claude-sonnet-4-5-20250929"

// Default returns the built-in configuration
func Default() Config {
	return Config{
		APIPort:             8080,
		ClaudeModel:         DefaultClaudeModel,
		CLICommands:         map[string]string{},
		CostNoticeUSD:       0.75,
		DBPath:              GetDBPath(),
		FreeCreditsOnSignup: 20,
		HistoryLimit:        12,
		JobMaxRetries:       2,
		JobRetryDelay:       2 * time.Second,
		MetricsOutlierMult:  2.5,
		PlanFirstMinChars:   800,
		ProjectsRoot:        GetProjectsRoot(),
		PromptDir:           GetPromptDir(),
		TokensPerCredit:     1000,
		TurnsNoticeMin:      10,
	}
}

// Resolve layers settings and then the environment over the defaults
func Resolve(settings *Settings, getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()
	if settings == nil {
		settings = &Settings{}
	}

	setInt(&cfg.APIPort, settings.APIPort, getenv("API_PORT"))
	setString(&cfg.ClaudeModel, settings.ClaudeModel, getenv("CLAUDE_CODE_MODEL"))
	setFloat(&cfg.CostNoticeUSD, settings.CostNoticeUSD, getenv("COST_NOTICE_USD"))
	setString(&cfg.DBPath, settings.DBPath, ExpandPath(getenv("BUILDLOOP_DB_PATH")))
	setInt(&cfg.FreeCreditsOnSignup, settings.FreeCreditsOnSignup, getenv("FREE_CREDITS_ON_SIGNUP"))
	setInt(&cfg.HistoryLimit, settings.HistoryLimit, getenv("HISTORY_LIMIT"))
	setInt(&cfg.JobMaxRetries, settings.JobMaxRetries, getenv("JOB_MAX_RETRIES"))
	setFloat(&cfg.MetricsOutlierMult, settings.MetricsOutlierMult, getenv("METRICS_OUTLIER_MULT"))
	setInt(&cfg.PlanFirstMinChars, settings.PlanFirstMinChars, getenv("PLAN_FIRST_MIN_CHARS"))
	setString(&cfg.ProjectsRoot, settings.ProjectsRoot, ExpandPath(getenv("PROJECTS_ROOT")))
	setString(&cfg.PromptDir, settings.PromptDir, ExpandPath(getenv("BUILDLOOP_PROMPT_DIR")))
	setInt(&cfg.TokensPerCredit, settings.TokensPerCredit, getenv("TOKENS_PER_CREDIT"))
	setInt(&cfg.TurnsNoticeMin, settings.TurnsNoticeMin, getenv("TURNS_NOTICE_MIN"))

	delaySec := cfg.JobRetryDelay.Seconds()
	setFloat(&delaySec, settings.JobRetryDelaySec, getenv("JOB_RETRY_DELAY_SEC"))
	cfg.JobRetryDelay = time.Duration(delaySec * float64(time.Second))

	for k, v := range settings.CLICommands {
		cfg.CLICommands[k] = v
	}

	if cfg.JobMaxRetries < 0 {
		cfg.JobMaxRetries = 0
	}
	if cfg.TokensPerCredit < 1 {
		cfg.TokensPerCredit = 1
	}
	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	}

	return cfg
}

func setString(dst *string, fromSettings, fromEnv string) {
	if fromSettings != "" {
		*dst = fromSettings
	}
	if fromEnv != "" {
		*dst = fromEnv
	}
}

func setInt(dst *int, fromSettings *int, fromEnv string) {
	if fromSettings != nil {
		*dst = *fromSettings
	}
	if fromEnv != "" {
		if v, err := strconv.Atoi(fromEnv); err == nil {
			*dst = v
		}
	}
}

func setFloat(dst *float64, fromSettings *float64, fromEnv string) {
	if fromSettings != nil {
		*dst = *fromSettings
	}
	if fromEnv != "" {
		if v, err := strconv.ParseFloat(fromEnv, 64); err == nil {
			*dst = v
		}
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/buildloop/buildloop/internal/config"
	"github.com/buildloop/buildloop/internal/logging"
)

const defaultMaxLogFiles = 1000

// CLI represents the command-line interface structure
type CLI struct {
	Version     kong.VersionFlag `help:"Show version information"`
	Debug       bool             `help:"Enable debug logging to file" short:"d" env:"BUILDLOOP_DEBUG"`
	DebugFile   string           `help:"Custom path for debug log file (disables automatic cleanup)" env:"BUILDLOOP_DEBUG_FILE"`
	MaxLogFiles int              `help:"Maximum number of log files to keep (0 = unlimited)" default:"1000" env:"BUILDLOOP_MAX_LOG_FILES"`

	Serve    ServeCmd    `cmd:"serve" help:"Start the HTTP and websocket API" default:"1"`
	Act      ActCmd      `cmd:"act" help:"Send an act instruction to a project and wait for the outcome"`
	Chat     ChatCmd     `cmd:"chat" help:"Send a chat instruction to a project and wait for the outcome"`
	Status   StatusCmd   `cmd:"status" help:"Show CLI provider readiness"`
	Projects ProjectsCmd `cmd:"projects" help:"Manage projects (add, list, set, view)"`
	Credits  CreditsCmd  `cmd:"credits" help:"Inspect and grant credits"`
	Metrics  MetricsCmd  `cmd:"metrics" help:"Show per-request metrics of a project"`
	Settings SettingsCmd `cmd:"settings" help:"Manage settings (meta)"`

	// Internal fields (not flags)
	Config    config.Config    `kong:"-"`
	Container *Container       `kong:"-"`
	settings  *config.Settings `kong:"-"`
}

// SetSettings sets the settings on the CLI struct
func (c *CLI) SetSettings(settings *config.Settings) {
	c.settings = settings
}

// AfterApply initializes logging after CLI parsing and applies settings
func (c *CLI) AfterApply() error {
	// Apply settings with proper precedence: CLI flags > env vars > settings.json > defaults
	// Only apply if flag is at default value and env var is not set
	if c.settings != nil {
		if c.MaxLogFiles == defaultMaxLogFiles {
			if _, hasEnv := os.LookupEnv("BUILDLOOP_MAX_LOG_FILES"); !hasEnv {
				if c.settings.MaxLogFiles != nil {
					c.MaxLogFiles = *c.settings.MaxLogFiles
				}
			}
		}

		if !c.Debug {
			if _, hasEnv := os.LookupEnv("BUILDLOOP_DEBUG"); !hasEnv {
				if c.settings.Debug != nil && *c.settings.Debug {
					c.Debug = true
				}
			}
		}
	}

	if err := logging.Initialize(logging.Options{
		Debug:       c.Debug,
		DebugFile:   c.DebugFile,
		MaxLogFiles: c.MaxLogFiles,
		Stderr:      true,
	}); err != nil {
		return err
	}

	// Create container AFTER logging is initialized so GORM's logger has a sink
	c.Config = config.Resolve(c.settings, os.Getenv)
	container, err := NewContainer(c.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	c.Container = container

	return nil
}

// Close closes all resources held by the CLI
func (c *CLI) Close() error {
	if c.Container != nil {
		return c.Container.Close()
	}
	return nil
}

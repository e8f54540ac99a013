package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/buildloop/buildloop/internal/cmd"
	"github.com/buildloop/buildloop/internal/config"
)

// Release metadata, overridden by the release build with -X main.<Name>=...
var (
	Commit    = "unknown"
	Date      = "unknown"
	GoVersion = "unknown"
	Version   = "dev"
)

// Tagline is shown as the description of the root command
const Tagline = "Turn instructions into commits with the coding agent of your choice"

func versionInfo() string {
	return fmt.Sprintf("buildloop %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, GoVersion)
}

func main() {
	os.Exit(run())
}

func run() int {
	// A broken settings file degrades to defaults; env and flags still apply
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring %s: %v\n", config.GetSettingsPath(), err)
		settings = &config.Settings{}
	}

	var cli cmd.CLI
	cli.SetSettings(settings)
	kctx := kong.Parse(&cli,
		kong.Name("buildloop"),
		kong.Description(Tagline),
		kong.Vars{"version": versionInfo()},
		kong.UsageOnError(),
		kong.Bind(&cli),
	)

	runErr := kctx.Run()
	// In-flight executions are finalized and refunded here
	if err := cli.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: shutdown incomplete: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}
	return 0
}

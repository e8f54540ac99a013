package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/server"
)

// ServeCmd starts the HTTP and websocket API
type ServeCmd struct {
	Host string `help:"Host to bind to" default:""`
	Port int    `help:"Port to listen on (overrides API_PORT and settings)" default:"0"`
}

// Run executes the serve command
func (s *ServeCmd) Run(cli *CLI) error {
	port := cli.Config.APIPort
	if s.Port != 0 {
		port = s.Port
	}
	addr := fmt.Sprintf("%s:%d", s.Host, port)

	c := cli.Container
	srv := server.New(addr, server.Deps{
		Metrics:   c.MetricsService,
		Projects:  c.ProjectService,
		Realtime:  c.Hub,
		Status:    c.CLIStatusService,
		Submitter: c.SubmissionService,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Logger.Info("Starting buildloop API",
		"addr", addr,
		"db_path", cli.Config.DBPath,
		"projects_root", cli.Config.ProjectsRoot)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}

	logging.Logger.Info("Server stopped, finalizing in-flight executions")
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/services"
	"github.com/buildloop/buildloop/internal/theme"
)

// SubmitFlags are shared by the act and chat commands.
// Positional arguments keep their command-line order.
type SubmitFlags struct {
	ProjectID   string `arg:"" help:"Project ID"`
	Instruction string `arg:"" help:"Instruction text"`

	CLI            string   `help:"CLI to run (claude, cursor, codex, qwen, gemini); defaults to the project preference"`
	ConversationID string   `help:"Conversation to continue" default:""`
	Image          []string `help:"Image path to attach (repeatable)"`
	Initial        bool     `help:"Mark as the initial prompt of the project"`
	NoFallback     bool     `help:"Do not fall back to the default CLI"`
	SubAgent       string   `help:"Sub-agent to use (frontend, backend, ...); picked from the instruction when empty"`
}

// ActCmd sends an act instruction, which may change and commit the repository
type ActCmd struct {
	SubmitFlags
}

// ChatCmd sends a chat instruction, which never commits
type ChatCmd struct {
	SubmitFlags
}

// Run executes the act command
func (a *ActCmd) Run(cli *CLI) error {
	return a.submit(cli, domain.RequestAct)
}

// Run executes the chat command
func (c *ChatCmd) Run(cli *CLI) error {
	return c.submit(cli, domain.RequestChat)
}

func (f *SubmitFlags) submit(cli *CLI, requestType domain.RequestType) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := services.SubmitRequest{
		CLI:             f.CLI,
		ConversationID:  f.ConversationID,
		Instruction:     f.Instruction,
		IsInitialPrompt: f.Initial,
		ProjectID:       f.ProjectID,
		RequestType:     requestType,
		SubAgent:        f.SubAgent,
	}
	if f.NoFallback {
		disabled := false
		req.FallbackEnabled = &disabled
	}
	for _, path := range f.Image {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("invalid image path %s: %w", path, err)
		}
		req.Images = append(req.Images, domain.Image{Name: filepath.Base(abs), Path: abs})
	}

	accepted, err := cli.Container.SubmissionService.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to submit %s: %w", requestType, err)
	}

	fmt.Printf("Accepted %s request %s on %s (sub-agent: %s, charged: %s credits)\n",
		requestType, accepted.RequestID, accepted.CLI, accepted.SubAgent, accepted.Charged.String())
	fmt.Printf("Session: %s\n", accepted.SessionID)

	select {
	case outcome := <-accepted.Done:
		if outcome.Status == domain.SessionFailed {
			return fmt.Errorf("%s failed: %s", requestType, outcome.Error)
		}
		fmt.Printf("Session %s %s\n", accepted.SessionID,
			theme.OutcomeStyle(outcome.Status).Render(string(outcome.Status)))
		return nil
	case <-ctx.Done():
		// Close cancels the execution, which finalizes as failed and refunds
		fmt.Fprintln(os.Stderr, "Interrupted, cancelling execution")
		return ctx.Err()
	}
}

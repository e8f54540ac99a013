package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/ports"
)

const availabilityTimeout = 10 * time.Second

// Options configures a provider adapter
type Options struct {
	// DefaultModel overrides the provider's built-in default model
	DefaultModel string
	// Exec overrides binary resolution
	Exec     string
	Prompts  ports.SystemPrompter
	Sessions *SessionStore
}

// modelCatalog lists the models a provider accepts
type modelCatalog struct {
	aliases      map[string]string
	defaultModel string
	models       []string
}

// resolve maps a requested model (or none) to the provider's model name
func (c modelCatalog) resolve(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return c.defaultModel
	}
	if mapped, ok := c.aliases[strings.ToLower(model)]; ok {
		return mapped
	}
	return model
}

func (c modelCatalog) supports(model string) bool {
	model = strings.TrimSpace(model)
	if model == "" {
		return true
	}
	if _, ok := c.aliases[strings.ToLower(model)]; ok {
		return true
	}
	return slices.Contains(c.models, model)
}

// invocation is the per-call plan shared by the generic adapter and a dialect
type invocation struct {
	images       []domain.Image
	initial      bool
	instruction  string
	key          string
	model        string
	projectPath  string
	resumeID     string
	reuse        bool
	settingsPath string
	subAgent     string
	systemPrompt string
}

// dialect holds what differs between providers
type dialect interface {
	args(inv *invocation) []string
	newParser() streamParser
}

// preparer is implemented by dialects that write files before a run
type preparer interface {
	prepare(inv *invocation) (cleanup func(), err error)
}

// streamParser turns provider output lines into normalized messages
type streamParser interface {
	parse(line []byte) []domain.Message
	flush() []domain.Message
	sessionID() string
	done() bool
}

// Adapter drives one provider binary. Provider specifics live in the dialect.
type Adapter struct {
	catalog     modelCatalog
	cli         domain.CLIType
	credentials func() (bool, string)
	dialect     dialect
	exec        string
	healthArgs  []string
	prompts     ports.SystemPrompter
	resumable   bool
	sessions    *SessionStore
	usePTY      bool
}

// Verify interface compliance at compile time
var _ ports.CLIAdapter = (*Adapter)(nil)

func newAdapter(opts Options, a Adapter) *Adapter {
	a.prompts = opts.Prompts
	a.sessions = opts.Sessions
	if a.sessions == nil {
		a.sessions = NewSessionStore()
	}
	if opts.DefaultModel != "" {
		a.catalog.defaultModel = opts.DefaultModel
	}
	return &a
}

// CLIType implements CLIAdapter.CLIType
func (a *Adapter) CLIType() domain.CLIType {
	return a.cli
}

// IsModelSupported implements CLIAdapter.IsModelSupported
func (a *Adapter) IsModelSupported(model string) bool {
	return a.catalog.supports(model)
}

// CheckAvailability implements CLIAdapter.CheckAvailability. It only runs
// the binary's health command and inspects credentials.
func (a *Adapter) CheckAvailability(ctx context.Context) domain.Availability {
	avail := domain.Availability{
		DefaultModels: []string{a.catalog.defaultModel},
		Models:        a.catalog.models,
	}

	path, err := exec.LookPath(a.exec)
	if err != nil {
		avail.Error = fmt.Sprintf("%s CLI not installed (%s not found)", a.cli, a.exec)
		return avail
	}

	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, a.healthArgs...).CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(firstLine(string(out)))
		if detail == "" {
			detail = err.Error()
		}
		avail.Error = fmt.Sprintf("%s CLI not responding: %s", a.cli, detail)
		return avail
	}

	avail.Available = true
	avail.Configured = true
	if a.credentials != nil {
		if ok, msg := a.credentials(); !ok {
			avail.Configured = false
			avail.Error = msg
		}
	}
	return avail
}

// ExecuteWithStreaming implements CLIAdapter.ExecuteWithStreaming
func (a *Adapter) ExecuteWithStreaming(ctx context.Context, req domain.ExecuteRequest) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {
		inv := a.plan(req)

		if p, ok := a.dialect.(preparer); ok {
			cleanup, err := p.prepare(&inv)
			if err != nil {
				yield(domain.Message{}, &domain.ProviderExecutionError{CLI: a.cli, Err: err})
				return
			}
			defer cleanup()
		}

		logging.Logger.Info("Executing provider",
			"cli", a.cli,
			"model", inv.model,
			"reuse_session", inv.reuse,
			"initial", inv.initial,
			"sub_agent", inv.subAgent,
		)

		proc, err := startProcess(ctx, processSpec{
			args:   a.dialect.args(&inv),
			dir:    req.ProjectPath,
			exec:   a.exec,
			usePTY: a.usePTY,
		})
		if err != nil {
			yield(domain.Message{}, &domain.ProviderExecutionError{CLI: a.cli, Err: err})
			return
		}
		defer proc.stop()

		parser := a.dialect.newParser()
		emit := func(msgs []domain.Message) bool {
			for _, msg := range msgs {
				a.stamp(&msg)
				if !yield(msg, nil) {
					return false
				}
			}
			return true
		}

		for line := range proc.lines() {
			line = trimLine(line)
			if len(line) == 0 {
				continue
			}
			if !emit(parser.parse(line)) {
				return
			}
			if id := parser.sessionID(); id != "" {
				a.sessions.remember(inv.key, id)
			}
			if parser.done() {
				break
			}
		}
		if !emit(parser.flush()) {
			return
		}

		if parser.done() {
			return
		}

		waitErr := proc.wait()
		if ctxErr := ctx.Err(); ctxErr != nil {
			yield(domain.Message{}, &domain.ProviderExecutionError{CLI: a.cli, Err: ctxErr})
			return
		}
		if proc.scanErr != nil {
			yield(domain.Message{}, &domain.ProviderExecutionError{CLI: a.cli, Err: proc.scanErr, Stderr: proc.stderrTail()})
			return
		}
		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				waitErr = fmt.Errorf("exit status %d", exitErr.ExitCode())
			}
			yield(domain.Message{}, &domain.ProviderExecutionError{CLI: a.cli, Err: waitErr, Stderr: strings.TrimSpace(proc.stderrTail())})
		}
	}
}

// plan applies session continuity and composes the system prompt when needed
func (a *Adapter) plan(req domain.ExecuteRequest) invocation {
	model := a.catalog.resolve(req.Model)
	inv := invocation{
		images:      req.Images,
		initial:     req.IsInitialPrompt,
		instruction: req.Instruction,
		model:       model,
		projectPath: req.ProjectPath,
		subAgent:    req.SubAgent,
	}
	inv.key = sessionKey(req.ProjectID, req.ProjectPath, req.SubAgent, model)

	if a.resumable {
		inv.resumeID, inv.reuse = a.sessions.plan(inv.key, model, req.IsInitialPrompt)
	}
	if !inv.reuse && a.prompts != nil {
		inv.systemPrompt = a.prompts.SystemPrompt(req.IsInitialPrompt, req.SubAgent)
	}
	return inv
}

func (a *Adapter) stamp(msg *domain.Message) {
	msg.CLISource = a.cli
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	msg.Metadata[domain.MetaCLIType] = string(a.cli)
}

// withSystemPrompt inlines the system prompt for providers without a flag for it
func withSystemPrompt(inv *invocation) string {
	if inv.systemPrompt == "" {
		return inv.instruction
	}
	return "<system_instructions>\n" + inv.systemPrompt + "\n</system_instructions>\n\n" + inv.instruction
}

// trimLine strips terminal noise before the first JSON object
func trimLine(line []byte) []byte {
	line = bytes.TrimSpace(line)
	if i := bytes.IndexByte(line, '{'); i > 0 {
		line = line[i:]
	}
	return line
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/ports"
)

// ExecuteParams is one instruction handed to the CLI manager
type ExecuteParams struct {
	CLI             domain.CLIType
	ConversationID  string
	FallbackEnabled bool
	Images          []domain.Image
	Instruction     string
	IsInitialPrompt bool
	Model           string
	ProjectID       string
	ProjectPath     string
	SessionID       string
	SubAgent        string
}

// Guardrail holds the thresholds of the cost notice. A zero threshold is disabled.
type Guardrail struct {
	CostUSD  float64
	NumTurns int
}

// CLIManager drives one adapter attempt per instruction with at most one
// fallback hop to the default CLI, persisting and broadcasting every message
type CLIManager struct {
	activity    *ActivityLog
	adapters    map[domain.CLIType]ports.CLIAdapter
	broadcaster ports.Broadcaster
	defaultCLI  domain.CLIType
	guardrail   Guardrail
	messages    ports.MessageRepository
}

// NewCLIManager creates a CLIManager
func NewCLIManager(
	adapters map[domain.CLIType]ports.CLIAdapter,
	messages ports.MessageRepository,
	broadcaster ports.Broadcaster,
	activity *ActivityLog,
	guardrail Guardrail,
) *CLIManager {
	return &CLIManager{
		activity:    activity,
		adapters:    adapters,
		broadcaster: broadcaster,
		defaultCLI:  domain.DefaultCLI,
		guardrail:   guardrail,
		messages:    messages,
	}
}

// ExecuteInstruction runs the instruction on the requested CLI. An
// unavailable CLI without a usable fallback yields an unsuccessful Result. A
// provider execution error is returned when no fallback could absorb it.
func (m *CLIManager) ExecuteInstruction(ctx context.Context, p ExecuteParams) (domain.Result, error) {
	adapter, ok := m.adapters[p.CLI]
	if !ok {
		logging.Logger.Warn("CLI not implemented", "cli", p.CLI)
		if res, attempted, err := m.fallback(ctx, p); attempted {
			return res, err
		}
		return domain.Result{CLIAttempted: p.CLI, Error: fmt.Sprintf("CLI type %s not implemented", p.CLI)}, nil
	}

	avail := adapter.CheckAvailability(ctx)
	if !avail.Ready() {
		reason := avail.Error
		if reason == "" {
			reason = "CLI not available"
		}
		logging.Logger.Warn("CLI unavailable", "cli", p.CLI, "reason", reason)
		if res, attempted, err := m.fallback(ctx, p); attempted {
			return res, err
		}
		return domain.Result{CLIAttempted: p.CLI, Error: reason}, nil
	}

	res, err := m.run(ctx, adapter, p)
	if err == nil {
		return res, nil
	}

	logging.Logger.Error("CLI execution failed", "cli", p.CLI, "error", err)
	if fres, attempted, ferr := m.fallback(ctx, p); attempted && ferr == nil {
		return fres, nil
	}
	return res, err
}

// fallback makes the single hop to the default CLI. attempted is false when
// fallback is disabled, would target the failed CLI itself, or the default
// CLI is not ready.
func (m *CLIManager) fallback(ctx context.Context, p ExecuteParams) (domain.Result, bool, error) {
	if !p.FallbackEnabled || p.CLI == m.defaultCLI {
		return domain.Result{}, false, nil
	}
	adapter, ok := m.adapters[m.defaultCLI]
	if !ok {
		return domain.Result{}, false, nil
	}

	avail := adapter.CheckAvailability(ctx)
	if !avail.Ready() {
		logging.Logger.Error("Fallback CLI unavailable", "cli", m.defaultCLI, "reason", avail.Error)
		return domain.Result{}, false, nil
	}

	logging.Logger.Warn("Falling back to default CLI", "from", p.CLI, "to", m.defaultCLI)

	fp := p
	fp.CLI = m.defaultCLI
	if !adapter.IsModelSupported(p.Model) {
		fp.Model = ""
	}

	res, err := m.run(ctx, adapter, fp)
	res.CLIAttempted = p.CLI
	res.FallbackFrom = p.CLI
	res.FallbackUsed = true
	if err != nil {
		logging.Logger.Error("Fallback CLI failed", "cli", m.defaultCLI, "error", err)
	}
	return res, true, err
}

// streamOutcome accumulates what the manager learns from one stream
type streamOutcome struct {
	apiDurationMS  int64
	count          int
	costUSD        float64
	durationMS     int64
	errorText      string
	explicitFailed bool
	explicitSeen   bool
	files          []string
	hasChanges     bool
	haveCost       bool
	haveTurns      bool
	numTurns       int
	resultText     string
	sawError       bool
	seenFiles      map[string]bool
}

func (o *streamOutcome) observe(msg domain.Message) {
	o.count++

	if msg.MessageType == domain.MessageError {
		o.sawError = true
		o.errorText = msg.Content
	}
	if changed, _ := msg.Metadata[domain.MetaChangesMade].(bool); changed {
		o.hasChanges = true
	}
	for _, f := range msg.MetaStrings(domain.MetaFilesModified) {
		if !o.seenFiles[f] {
			o.seenFiles[f] = true
			o.files = append(o.files, f)
		}
	}

	if !msg.IsResultEvent() {
		return
	}
	if v, ok := msg.MetaFloat(domain.MetaTotalCostUSD); ok {
		o.costUSD, o.haveCost = v, true
	}
	if v, ok := msg.MetaFloat(domain.MetaNumTurns); ok {
		o.numTurns, o.haveTurns = int(v), true
	}
	if v, ok := msg.MetaFloat(domain.MetaDurationMS); ok {
		o.durationMS = int64(v)
	}
	if v, ok := msg.MetaFloat(domain.MetaDurationAPIMS); ok {
		o.apiDurationMS = int64(v)
	}
	if msg.Content != "" {
		o.resultText = msg.Content
	}

	// Providers with an explicit terminal signal carry is_error on the result
	if isError, ok := msg.Metadata[domain.MetaIsError].(bool); ok {
		subtype := msg.MetaString(domain.MetaSubtype)
		o.explicitSeen = true
		o.explicitFailed = isError || subtype == "error" || strings.HasPrefix(subtype, "error_")
	}
}

func (o *streamOutcome) success() bool {
	if o.explicitSeen {
		return !o.explicitFailed
	}
	return !o.sawError
}

// run consumes one adapter stream to completion
func (m *CLIManager) run(ctx context.Context, adapter ports.CLIAdapter, p ExecuteParams) (domain.Result, error) {
	cli := adapter.CLIType()
	res := domain.Result{CLIAttempted: cli, CLIUsed: cli}
	out := &streamOutcome{seenFiles: make(map[string]bool)}

	logging.Logger.Info("Starting CLI execution", "cli", cli, "model", p.Model, "project_id", p.ProjectID)

	stream := adapter.ExecuteWithStreaming(ctx, domain.ExecuteRequest{
		Images:          p.Images,
		Instruction:     p.Instruction,
		IsInitialPrompt: p.IsInitialPrompt,
		Model:           p.Model,
		ProjectID:       p.ProjectID,
		ProjectPath:     p.ProjectPath,
		SessionID:       p.SessionID,
		SubAgent:        p.SubAgent,
	})
	for msg, err := range stream {
		if err != nil {
			res.MessagesCount = out.count
			return res, err
		}
		m.publish(ctx, p, msg)
		out.observe(msg)
	}

	res.APIDurationMS = out.apiDurationMS
	res.CostUSD = out.costUSD
	res.DurationMS = out.durationMS
	res.FilesModified = out.files
	res.HasChanges = out.hasChanges
	res.MessagesCount = out.count
	res.NumTurns = out.numTurns
	res.Success = out.success()

	if res.Success {
		res.Message = fmt.Sprintf("Successfully executed with %s", cli)
	} else {
		res.Message = fmt.Sprintf("Failed to execute with %s", cli)
		res.Error = failureText(out)
	}

	logging.Logger.Info("CLI execution finished",
		"cli", cli,
		"success", res.Success,
		"messages", res.MessagesCount,
		"cost_usd", res.CostUSD,
		"num_turns", res.NumTurns,
		"has_changes", res.HasChanges,
	)

	if m.noticeDue(out) {
		res.CostNoticeTriggered = true
		m.publish(ctx, p, m.costNotice(out))
	}

	if m.activity != nil && p.ProjectPath != "" {
		entry := ActivityEntry{
			CLI:           cli,
			CostUSD:       res.CostUSD,
			FilesModified: res.FilesModified,
			HasChanges:    res.HasChanges,
			NumTurns:      res.NumTurns,
			SubAgent:      p.SubAgent,
			Success:       res.Success,
			Timestamp:     time.Now(),
		}
		if err := m.activity.Append(p.ProjectPath, entry); err != nil {
			logging.Logger.Warn("Failed to update session summary", "project_id", p.ProjectID, "error", err)
		}
	}
	return res, nil
}

func failureText(out *streamOutcome) string {
	switch {
	case out.errorText != "":
		return out.errorText
	case out.explicitFailed && out.resultText != "":
		return out.resultText
	}
	return "Execution failed"
}

// publish persists a message and broadcasts it unless hidden. Failures are
// logged so the stream keeps flowing.
func (m *CLIManager) publish(ctx context.Context, p ExecuteParams, msg domain.Message) {
	msg.ConversationID = p.ConversationID
	msg.ProjectID = p.ProjectID
	msg.SessionID = p.SessionID

	if err := m.messages.AppendMessage(ctx, msg); err != nil {
		logging.Logger.Error("Failed to persist message", "message_id", msg.ID, "type", msg.MessageType, "error", err)
	}
	if msg.IsHidden() || m.broadcaster == nil {
		return
	}
	if err := m.broadcaster.Broadcast(ctx, p.ProjectID, domain.MessageEvent(msg)); err != nil {
		logging.Logger.Warn("Broadcast failed", "project_id", p.ProjectID, "error", err)
	}
}

func (m *CLIManager) noticeDue(out *streamOutcome) bool {
	if out.haveCost && m.guardrail.CostUSD > 0 && out.costUSD >= m.guardrail.CostUSD {
		return true
	}
	return out.haveTurns && m.guardrail.NumTurns > 0 && out.numTurns >= m.guardrail.NumTurns
}

func (m *CLIManager) costNotice(out *streamOutcome) domain.Message {
	content := fmt.Sprintf("Notice: last turn used ~$%.2f and %d tool turns. "+
		"Next: propose a brief plan first and keep reads small; avoid large listings.", out.costUSD, out.numTurns)
	return domain.NewMessage(domain.RoleAssistant, domain.MessageChat, content, map[string]any{
		domain.MetaType:          "cost_notice",
		domain.MetaDurationAPIMS: out.apiDurationMS,
		domain.MetaDurationMS:    out.durationMS,
		domain.MetaNumTurns:      out.numTurns,
		domain.MetaTotalCostUSD:  out.costUSD,
		"thresholds": map[string]any{
			"cost_usd":  m.guardrail.CostUSD,
			"num_turns": m.guardrail.NumTurns,
		},
	})
}

// CheckCLIStatus probes one CLI and validates the selected model against it
func (m *CLIManager) CheckCLIStatus(ctx context.Context, cli domain.CLIType, selectedModel string) domain.CLIStatus {
	adapter, ok := m.adapters[cli]
	if !ok {
		return domain.CLIStatus{
			Availability: domain.Availability{Error: fmt.Sprintf("CLI type %s not implemented", cli)},
			CLI:          cli,
		}
	}

	status := domain.CLIStatus{Availability: adapter.CheckAvailability(ctx), CLI: cli}
	if selectedModel != "" && status.Available {
		if adapter.IsModelSupported(selectedModel) {
			status.ModelValid = true
			status.SelectedModel = selectedModel
		} else {
			status.ModelWarning = fmt.Sprintf("Model '%s' may not be supported by %s", selectedModel, cli)
			status.SuggestedModels = status.DefaultModels
		}
	}
	return status
}

// CLIs lists the configured CLI types
func (m *CLIManager) CLIs() []domain.CLIType {
	out := make([]domain.CLIType, 0, len(m.adapters))
	for _, cli := range domain.AllCLIs {
		if _, ok := m.adapters[cli]; ok {
			out = append(out, cli)
		}
	}
	return out
}

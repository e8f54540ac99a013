package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/services"
)

type submitBody struct {
	CLI             string         `json:"cli_preference"`
	ConversationID  string         `json:"conversation_id"`
	FallbackEnabled *bool          `json:"fallback_enabled"`
	Images          []domain.Image `json:"images"`
	Instruction     string         `json:"instruction"`
	IsInitialPrompt bool           `json:"is_initial_prompt"`
	SubAgent        string         `json:"sub_agent"`
}

type submitResponse struct {
	Charged        string `json:"charged"`
	CLI            string `json:"cli"`
	ConversationID string `json:"conversation_id"`
	RequestID      string `json:"request_id"`
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	SubAgent       string `json:"sub_agent,omitempty"`
	UserMessageID  string `json:"user_message_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSubmit(reqType domain.RequestType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body submitBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		accepted, err := s.deps.Submitter.Submit(r.Context(), services.SubmitRequest{
			CLI:             body.CLI,
			ConversationID:  body.ConversationID,
			FallbackEnabled: body.FallbackEnabled,
			Images:          body.Images,
			Instruction:     body.Instruction,
			IsInitialPrompt: body.IsInitialPrompt,
			ProjectID:       r.PathValue("id"),
			RequestType:     reqType,
			SubAgent:        body.SubAgent,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, submitResponse{
			Charged:        accepted.Charged.String(),
			CLI:            string(accepted.CLI),
			ConversationID: accepted.ConversationID,
			RequestID:      accepted.RequestID,
			SessionID:      accepted.SessionID,
			Status:         string(domain.SessionActive),
			SubAgent:       accepted.SubAgent,
			UserMessageID:  accepted.UserMessageID,
		})
	}
}

func (s *Server) handleCLIStatus(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	project, err := s.deps.Projects.Get(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}

	cliName := r.URL.Query().Get("cli")
	if cliName == "" {
		writeJSON(w, http.StatusOK, s.deps.Status.StatusAll(r.Context(), project.ID))
		return
	}

	cli, err := domain.ParseCLIType(cliName)
	if err != nil {
		writeError(w, err)
		return
	}
	model := r.URL.Query().Get("model")
	if model == "" && cli == project.PreferredCLI {
		model = project.SelectedModel
	}
	writeJSON(w, http.StatusOK, s.deps.Status.Status(r.Context(), project.ID, cli, model))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if _, err := s.deps.Projects.Get(r.Context(), projectID); err != nil {
		writeError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
			return
		}
		limit = n
	}

	report, err := s.deps.Metrics.Project(r.Context(), projectID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyInstruction), errors.Is(err, domain.ErrUnknownCLI):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRepoNotInitialized):
		return http.StatusConflict
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusTooEarly
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.Logger.Error("Request failed", "error", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger.Warn("Failed to write response", "error", err)
	}
}

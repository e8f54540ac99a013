package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/services"
)

type fakeSubmitter struct {
	err  error
	last services.SubmitRequest
}

func (f *fakeSubmitter) Submit(_ context.Context, req services.SubmitRequest) (*services.Accepted, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &services.Accepted{
		Charged:        decimal.NewFromInt(1),
		CLI:            domain.CLIClaude,
		ConversationID: "conv-1",
		RequestID:      "req-1",
		SessionID:      "sess-1",
		UserMessageID:  "msg-1",
	}, nil
}

type fakeStatus struct {
	lastModel string
}

func (f *fakeStatus) Status(_ context.Context, _ string, cli domain.CLIType, model string) domain.CLIStatus {
	f.lastModel = model
	return domain.CLIStatus{Availability: domain.Availability{Available: true, Configured: true}, CLI: cli}
}

func (f *fakeStatus) StatusAll(context.Context, string) map[domain.CLIType]domain.CLIStatus {
	return map[domain.CLIType]domain.CLIStatus{domain.CLIClaude: {CLI: domain.CLIClaude}}
}

type fakeProjects struct{}

func (fakeProjects) Get(_ context.Context, id string) (*domain.Project, error) {
	if id != "p1" {
		return nil, fmt.Errorf("%w: %s", domain.ErrProjectNotFound, id)
	}
	return &domain.Project{ID: "p1", PreferredCLI: domain.CLICursor, SelectedModel: "gpt-5"}, nil
}

type fakeMetrics struct {
	limit int
}

func (f *fakeMetrics) Project(_ context.Context, projectID string, limit int) (*services.MetricsReport, error) {
	f.limit = limit
	return &services.MetricsReport{Limit: services.ClampLimit(limit), ProjectID: projectID}, nil
}

func newTestHandler(sub *fakeSubmitter, status *fakeStatus, metrics *fakeMetrics) http.Handler {
	return New(":0", Deps{
		Metrics:   metrics,
		Projects:  fakeProjects{},
		Status:    status,
		Submitter: sub,
	}).Handler()
}

func TestHandleSubmit(t *testing.T) {
	sub := &fakeSubmitter{}
	h := newTestHandler(sub, &fakeStatus{}, &fakeMetrics{})

	body := `{"instruction":"add a footer","cli_preference":"claude","fallback_enabled":false,"images":[{"path":"/tmp/a.png"}]}`
	req := httptest.NewRequest(http.MethodPost, "/projects/p1/chat", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "1", resp.Charged)

	assert.Equal(t, "p1", sub.last.ProjectID)
	assert.Equal(t, domain.RequestChat, sub.last.RequestType)
	require.NotNil(t, sub.last.FallbackEnabled)
	assert.False(t, *sub.last.FallbackEnabled)
	assert.Len(t, sub.last.Images, 1)
}

func TestHandleSubmit_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: domain.ErrInsufficientCredits, want: http.StatusPaymentRequired},
		{err: fmt.Errorf("%w: p9", domain.ErrProjectNotFound), want: http.StatusNotFound},
		{err: fmt.Errorf("%w: p1", domain.ErrRepoNotInitialized), want: http.StatusConflict},
		{err: fmt.Errorf("%w: cursor: not logged in", domain.ErrProviderUnavailable), want: http.StatusTooEarly},
		{err: domain.ErrEmptyInstruction, want: http.StatusBadRequest},
		{err: fmt.Errorf("disk full"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := newTestHandler(&fakeSubmitter{err: tt.err}, &fakeStatus{}, &fakeMetrics{})
			req := httptest.NewRequest(http.MethodPost, "/projects/p1/act", strings.NewReader(`{"instruction":"x"}`))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHandleSubmit_BadBody(t *testing.T) {
	h := newTestHandler(&fakeSubmitter{}, &fakeStatus{}, &fakeMetrics{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/projects/p1/act", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCLIStatus(t *testing.T) {
	status := &fakeStatus{}
	h := newTestHandler(&fakeSubmitter{}, status, &fakeMetrics{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/p1/cli-status?cli=cursor", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gpt-5", status.lastModel, "defaults to the project's model for its preferred CLI")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/p1/cli-status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"claude"`)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/p1/cli-status?cli=copilot", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/nope/cli-status", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleMetrics(t *testing.T) {
	metrics := &fakeMetrics{}
	h := newTestHandler(&fakeSubmitter{}, &fakeStatus{}, metrics)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/p1/metrics?limit=500", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 500, metrics.limit)

	var report services.MetricsReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 200, report.Limit)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects/p1/metrics?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

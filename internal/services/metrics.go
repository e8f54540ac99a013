package services

import (
	"context"
	"slices"
	"time"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/ports"
)

const (
	defaultMetricsLimit = 30
	maxMetricsLimit     = 200
)

// OutlierFlags marks a request whose cost or turns exceed the multiple of the median
type OutlierFlags struct {
	Cost  bool `json:"cost"`
	Turns bool `json:"turns"`
}

// RequestMetrics is the per-request row of a metrics report
type RequestMetrics struct {
	APIDurationMS       int64              `json:"api_duration_ms"`
	CostNoticeTriggered bool               `json:"cost_notice_triggered"`
	CostUSD             float64            `json:"cost_usd"`
	CreatedAt           time.Time          `json:"created_at"`
	DurationMS          int64              `json:"duration_ms"`
	ID                  string             `json:"id"`
	IsCompleted         bool               `json:"is_completed"`
	IsSuccessful        *bool              `json:"is_successful"`
	NumTurns            int                `json:"num_turns"`
	Outlier             OutlierFlags       `json:"outlier"`
	RequestType         domain.RequestType `json:"request_type"`
}

// Medians are the medians of a metrics window
type Medians struct {
	CostUSD  float64 `json:"cost_usd"`
	NumTurns float64 `json:"num_turns"`
}

// MetricsReport summarizes the recent executions of a project
type MetricsReport struct {
	Count             int              `json:"count"`
	Items             []RequestMetrics `json:"items"`
	Limit             int              `json:"limit"`
	Medians           Medians          `json:"medians"`
	OutlierMultiplier float64          `json:"outlier_multiplier"`
	ProjectID         string           `json:"project_id"`
}

// MetricsService reports cost and turn statistics per project
type MetricsService struct {
	multiplier float64
	repo       ports.UserRequestRepository
}

// NewMetricsService creates a MetricsService flagging outliers at
// multiplier times the median
func NewMetricsService(repo ports.UserRequestRepository, multiplier float64) *MetricsService {
	if multiplier <= 0 {
		multiplier = 2.5
	}
	return &MetricsService{multiplier: multiplier, repo: repo}
}

// ClampLimit bounds a requested window size to 1..200, defaulting to 30
func ClampLimit(limit int) int {
	if limit <= 0 {
		return defaultMetricsLimit
	}
	return min(limit, maxMetricsLimit)
}

// Project builds the metrics report of the last limit requests
func (s *MetricsService) Project(ctx context.Context, projectID string, limit int) (*MetricsReport, error) {
	limit = ClampLimit(limit)
	requests, err := s.repo.RecentUserRequests(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}

	items := make([]RequestMetrics, 0, len(requests))
	costs := make([]float64, 0, len(requests))
	turns := make([]float64, 0, len(requests))
	for _, r := range requests {
		item := RequestMetrics{
			CreatedAt:    r.CreatedAt,
			ID:           r.ID,
			IsCompleted:  r.IsCompleted,
			IsSuccessful: r.IsSuccessful,
			RequestType:  r.RequestType,
		}
		if md := r.ResultMetadata; md != nil {
			item.APIDurationMS = md.APIDurationMS
			item.CostNoticeTriggered = md.CostNoticeTriggered
			item.CostUSD = md.CostUSD
			item.DurationMS = md.DurationMS
			item.NumTurns = md.NumTurns
		}
		items = append(items, item)
		costs = append(costs, item.CostUSD)
		turns = append(turns, float64(item.NumTurns))
	}

	medians := Medians{CostUSD: median(costs), NumTurns: median(turns)}
	for i := range items {
		if medians.CostUSD > 0 && items[i].CostUSD >= medians.CostUSD*s.multiplier {
			items[i].Outlier.Cost = true
		}
		if medians.NumTurns > 0 && float64(items[i].NumTurns) >= medians.NumTurns*s.multiplier {
			items[i].Outlier.Turns = true
		}
	}

	return &MetricsReport{
		Count:             len(items),
		Items:             items,
		Limit:             limit,
		Medians:           medians,
		OutlierMultiplier: s.multiplier,
		ProjectID:         projectID,
	}, nil
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

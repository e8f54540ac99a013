package services

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
)

const (
	// statusCacheTTL is how long a single CLI probe is reused
	statusCacheTTL = 30 * time.Second
	// statusAllCacheTTL is how long a probe of every CLI is reused
	statusAllCacheTTL = 60 * time.Second
)

// StatusChecker probes one CLI
type StatusChecker interface {
	CheckCLIStatus(ctx context.Context, cli domain.CLIType, selectedModel string) domain.CLIStatus
	CLIs() []domain.CLIType
}

type statusEntry struct {
	all       map[domain.CLIType]domain.CLIStatus
	expiresAt time.Time
	status    domain.CLIStatus
}

// CLIStatusService caches availability probes per project so readiness
// checks on every submission stay cheap
type CLIStatusService struct {
	cache   map[string]statusEntry
	checker StatusChecker
	flight  singleflight.Group
	mu      sync.RWMutex
	now     func() time.Time
}

// NewCLIStatusService creates a CLIStatusService
func NewCLIStatusService(checker StatusChecker) *CLIStatusService {
	return &CLIStatusService{
		cache:   make(map[string]statusEntry),
		checker: checker,
		now:     time.Now,
	}
}

func statusKey(projectID string, cli domain.CLIType, model string) string {
	return projectID + "|" + string(cli) + "|" + model
}

// Status returns the cached or freshly probed status of one CLI
func (s *CLIStatusService) Status(ctx context.Context, projectID string, cli domain.CLIType, model string) domain.CLIStatus {
	key := statusKey(projectID, cli, model)
	if entry, ok := s.lookup(key); ok {
		return entry.status
	}

	// The result is shared and cached, so one caller going away must not
	// decide the status everyone else sees
	probeCtx := context.WithoutCancel(ctx)
	v, _, _ := s.flight.Do(key, func() (any, error) {
		status := s.checker.CheckCLIStatus(probeCtx, cli, model)
		s.store(key, statusEntry{status: status, expiresAt: s.now().Add(statusCacheTTL)})
		logging.Logger.Debug("Probed CLI status", "project_id", projectID, "cli", cli, "available", status.Available, "configured", status.Configured)
		return status, nil
	})
	return v.(domain.CLIStatus)
}

// StatusAll probes every CLI concurrently
func (s *CLIStatusService) StatusAll(ctx context.Context, projectID string) map[domain.CLIType]domain.CLIStatus {
	key := statusKey(projectID, "*", "")
	if entry, ok := s.lookup(key); ok {
		return maps.Clone(entry.all)
	}

	probeCtx := context.WithoutCancel(ctx)
	v, _, _ := s.flight.Do(key, func() (any, error) {
		clis := s.checker.CLIs()
		results := make([]domain.CLIStatus, len(clis))

		g, gctx := errgroup.WithContext(probeCtx)
		for i, cli := range clis {
			g.Go(func() error {
				results[i] = s.checker.CheckCLIStatus(gctx, cli, "")
				return nil
			})
		}
		_ = g.Wait()

		all := make(map[domain.CLIType]domain.CLIStatus, len(clis))
		for i, cli := range clis {
			all[cli] = results[i]
		}
		s.store(key, statusEntry{all: all, expiresAt: s.now().Add(statusAllCacheTTL)})
		return all, nil
	})
	return maps.Clone(v.(map[domain.CLIType]domain.CLIStatus))
}

// InvalidateProject drops every cached probe of a project, e.g. after its
// CLI preference or model changed
func (s *CLIStatusService) InvalidateProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := projectID + "|"
	for k := range s.cache {
		if strings.HasPrefix(k, prefix) {
			delete(s.cache, k)
		}
	}
}

func (s *CLIStatusService) lookup(key string) (statusEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[key]
	if !ok || !s.now().Before(entry.expiresAt) {
		return statusEntry{}, false
	}
	return entry, true
}

func (s *CLIStatusService) store(key string, entry statusEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = entry
}

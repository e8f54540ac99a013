package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/buildloop/buildloop/internal/domain"
)

type countingChecker struct {
	probes atomic.Int32
}

func (c *countingChecker) CheckCLIStatus(ctx context.Context, cli domain.CLIType, model string) domain.CLIStatus {
	c.probes.Add(1)
	if err := ctx.Err(); err != nil {
		return domain.CLIStatus{Availability: domain.Availability{Error: "CLI not responding: " + err.Error()}, CLI: cli}
	}
	return domain.CLIStatus{
		Availability:  domain.Availability{Available: true, Configured: cli != domain.CLIQwen},
		CLI:           cli,
		SelectedModel: model,
	}
}

func (c *countingChecker) CLIs() []domain.CLIType {
	return domain.AllCLIs
}

func TestCLIStatusService_CachesWithinTTL(t *testing.T) {
	checker := &countingChecker{}
	svc := NewCLIStatusService(checker)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, svc.Status(ctx, "p1", domain.CLIClaude, "opus").Ready())
	svc.Status(ctx, "p1", domain.CLIClaude, "opus")
	assert.EqualValues(t, 1, checker.probes.Load())

	svc.Status(ctx, "p1", domain.CLIClaude, "sonnet")
	svc.Status(ctx, "p2", domain.CLIClaude, "opus")
	assert.EqualValues(t, 3, checker.probes.Load())

	now = now.Add(statusCacheTTL)
	svc.Status(ctx, "p1", domain.CLIClaude, "opus")
	assert.EqualValues(t, 4, checker.probes.Load())
}

func TestCLIStatusService_StatusAll(t *testing.T) {
	checker := &countingChecker{}
	svc := NewCLIStatusService(checker)
	ctx := context.Background()

	all := svc.StatusAll(ctx, "p1")
	assert.Len(t, all, len(domain.AllCLIs))
	assert.False(t, all[domain.CLIQwen].Ready())
	assert.True(t, all[domain.CLICodex].Ready())

	svc.StatusAll(ctx, "p1")
	assert.EqualValues(t, len(domain.AllCLIs), checker.probes.Load())
}

func TestCLIStatusService_InvalidateProject(t *testing.T) {
	checker := &countingChecker{}
	svc := NewCLIStatusService(checker)
	ctx := context.Background()

	svc.Status(ctx, "p1", domain.CLIClaude, "")
	svc.Status(ctx, "p10", domain.CLIClaude, "")
	svc.InvalidateProject("p1")

	svc.Status(ctx, "p1", domain.CLIClaude, "")
	svc.Status(ctx, "p10", domain.CLIClaude, "")
	assert.EqualValues(t, 3, checker.probes.Load(), "only p1 is probed again")
}

func TestCLIStatusService_CancelledCallerDoesNotPoisonCache(t *testing.T) {
	checker := &countingChecker{}
	svc := NewCLIStatusService(checker)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, svc.Status(cancelled, "p1", domain.CLIClaude, "").Ready())
	assert.True(t, svc.Status(context.Background(), "p1", domain.CLIClaude, "").Ready())
	assert.EqualValues(t, 1, checker.probes.Load())

	all := svc.StatusAll(cancelled, "p1")
	assert.True(t, all[domain.CLICodex].Ready())
	assert.True(t, svc.StatusAll(context.Background(), "p1")[domain.CLICodex].Ready())
}

func TestCLIStatusService_StatusAllReturnsCopy(t *testing.T) {
	svc := NewCLIStatusService(&countingChecker{})
	ctx := context.Background()

	first := svc.StatusAll(ctx, "p1")
	delete(first, domain.CLIClaude)
	first[domain.CLICodex] = domain.CLIStatus{CLI: domain.CLICodex}

	second := svc.StatusAll(ctx, "p1")
	assert.Len(t, second, len(domain.AllCLIs))
	assert.True(t, second[domain.CLICodex].Ready())
}

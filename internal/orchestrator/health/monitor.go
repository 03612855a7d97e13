package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/orchestrator/internal/infra/storage"
	"github.com/vietddude/orchestrator/internal/orchestrator/dispatcher"
	"github.com/vietddude/orchestrator/internal/orchestrator/pipeline"
)

// DefaultCheckInterval rate limits storage queries made by CheckHealth.
const DefaultCheckInterval = 10 * time.Second

// PipelineSource exposes pipeline counters.
type PipelineSource interface {
	State() pipeline.State
	Stats() pipeline.Stats
}

// DispatcherSource exposes dispatcher counters.
type DispatcherSource interface {
	Stats() dispatcher.Stats
}

// MonitorConfig holds the monitor's sources. Repositories may be nil.
type MonitorConfig struct {
	Channel        string
	Pipeline       PipelineSource
	Dispatcher     DispatcherSource
	FailedRepo     storage.FailedBlockRepository
	InvocationRepo storage.InvocationRepository
	CheckInterval  time.Duration
}

// Monitor aggregates health status from the orchestrator's components.
type Monitor struct {
	cfg        MonitorConfig
	lastCheck  time.Time
	lastReport *Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	return &Monitor{cfg: cfg}
}

// CheckHealth builds a report. Storage counts are refreshed at most once per
// check interval; in-memory counters are always current.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := Report{
		SystemStatus: StatusHealthy,
		Channel:      m.cfg.Channel,
		State:        pipeline.StateArmed,
	}
	if m.cfg.Pipeline != nil {
		report.State = m.cfg.Pipeline.State()
		report.Pipeline = m.cfg.Pipeline.Stats()
	}
	if m.cfg.Dispatcher != nil {
		report.Dispatcher = m.cfg.Dispatcher.Stats()
	}

	if m.lastReport != nil && time.Since(m.lastCheck) < m.cfg.CheckInterval {
		report.FailedBlocks = m.lastReport.FailedBlocks
		report.Invocations = m.lastReport.Invocations
		report.Errors = m.lastReport.Errors
	} else {
		m.refresh(ctx, &report)
		m.lastCheck = time.Now()
		m.lastReport = &report
	}

	report.SystemStatus = evaluate(report)
	return report
}

func (m *Monitor) refresh(ctx context.Context, report *Report) {
	if m.cfg.FailedRepo != nil {
		count, err := m.cfg.FailedRepo.Count(ctx, m.cfg.Channel)
		if err != nil {
			report.Errors = append(report.Errors, "failed blocks: "+err.Error())
		} else {
			report.FailedBlocks = count
		}
	}
	if m.cfg.InvocationRepo != nil {
		counts, err := m.cfg.InvocationRepo.CountByStatus(ctx)
		if err != nil {
			report.Errors = append(report.Errors, "invocations: "+err.Error())
		} else {
			report.Invocations = counts
		}
	}
}

func evaluate(r Report) SystemStatus {
	if r.FailedBlocks > 50 {
		return StatusCritical
	}
	failed := r.Dispatcher.Failed
	if failed > 0 && failed >= r.Dispatcher.Succeeded && failed > 10 {
		return StatusDegraded
	}
	if r.FailedBlocks > 0 || len(r.Errors) > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}

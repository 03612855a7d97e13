// Package health provides orchestrator health monitoring and status reporting.
package health

import (
	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/orchestrator/dispatcher"
	"github.com/vietddude/orchestrator/internal/orchestrator/pipeline"
)

// SystemStatus represents the overall health state of the orchestrator.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full health report.
type Report struct {
	SystemStatus SystemStatus                    `json:"system_status"`
	Channel      string                          `json:"channel"`
	State        pipeline.State                  `json:"state"`
	Pipeline     pipeline.Stats                  `json:"pipeline"`
	Dispatcher   dispatcher.Stats                `json:"dispatcher"`
	FailedBlocks int                             `json:"failed_blocks"`
	Invocations  map[domain.InvocationStatus]int `json:"invocations"`
	Errors       []string                        `json:"errors,omitempty"`
}

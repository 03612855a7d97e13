// Package worker holds background maintenance loops.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/orchestrator/internal/infra/storage"
)

// Pruner deletes audit records older than the retention period.
type Pruner struct {
	retention time.Duration
	targets   map[string]storage.Prunable
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker. targets maps a name used in logs
// to the repository to prune.
func NewPruner(retention time.Duration, targets map[string]storage.Prunable, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		targets:   targets,
		log:       log.With("component", "pruner"),
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 || len(p.targets) == 0 {
		return
	}

	// 10% of the retention period, between a minute and an hour
	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one pass over every target.
func (p *Pruner) Prune(ctx context.Context) {
	threshold := time.Now().Add(-p.retention)

	for name, target := range p.targets {
		n, err := target.DeleteOlderThan(ctx, threshold)
		if err != nil {
			p.log.Error("Failed to prune", "target", name, "error", err)
			continue
		}
		if n > 0 {
			p.log.Info("Pruned old records", "target", name, "count", n)
		}
	}
}

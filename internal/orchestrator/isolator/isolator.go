// Package isolator confines a failure while processing one block to that
// block.
package isolator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/infra/storage"
	"github.com/vietddude/orchestrator/internal/orchestrator/metrics"
)

// BlockFunc processes a single block.
type BlockFunc func(ctx context.Context, block *domain.Block) error

// Outcome of one isolated processing pass.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
	OutcomePanic  Outcome = "panic"
)

// Isolator runs per-block work and absorbs its errors and panics.
type Isolator struct {
	repo    storage.FailedBlockRepository
	channel string
	log     *slog.Logger
}

// New creates an isolator. repo may be nil, in which case failures are only
// logged and counted.
func New(repo storage.FailedBlockRepository, channel string, log *slog.Logger) *Isolator {
	if log == nil {
		log = slog.Default()
	}
	return &Isolator{
		repo:    repo,
		channel: channel,
		log:     log.With("component", "isolator"),
	}
}

// Run calls fn for the block. Nothing fn returns or raises escapes Run.
func (i *Isolator) Run(ctx context.Context, block *domain.Block, fn BlockFunc) (outcome Outcome) {
	var number uint64
	if block != nil {
		number = block.Number
	}

	defer func() {
		if r := recover(); r != nil {
			i.log.Error("Block processing panicked",
				"block", number,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			i.fail(ctx, number, domain.FailureTypePanic, fmt.Errorf("panic: %v", r))
			outcome = OutcomePanic
		}
		metrics.BlocksProcessed.WithLabelValues(string(outcome)).Inc()
	}()

	if err := fn(ctx, block); err != nil {
		i.log.Error("Block processing failed", "block", number, "error", err)
		i.fail(ctx, number, domain.FailureTypeParsing, err)
		return OutcomeFailed
	}
	return OutcomeOK
}

func (i *Isolator) fail(ctx context.Context, number uint64, ft domain.FailureType, cause error) {
	metrics.BlockFailures.WithLabelValues(string(ft)).Inc()
	if i.repo == nil {
		return
	}

	fb := &domain.FailedBlock{
		ID:          uuid.New().String(),
		Channel:     i.channel,
		BlockNumber: number,
		FailureType: ft,
		Error:       cause.Error(),
		CreatedAt:   time.Now().UTC(),
	}

	// Recording must not depend on the delivery context staying alive.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := i.repo.Add(saveCtx, fb); err != nil {
		i.log.Warn("Failed to record failed block", "block", number, "error", err)
	}
}

// Package subscription delivers committed blocks from the ledger network.
package subscription

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/infra/fabric/blockjson"
	"github.com/vietddude/orchestrator/internal/orchestrator/metrics"
)

// Handler is called once per delivered block. Calls may overlap.
type Handler func(ctx context.Context, block *domain.Block)

// Subscriber delivers blocks to a handler until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
}

// Backoff configures reconnect delays.
type Backoff struct {
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultBackoff is used when a subscriber is given a zero Backoff.
var DefaultBackoff = Backoff{
	InitialDelay:    time.Second,
	MaxDelay:        30 * time.Second,
	BackoffMultiple: 2.0,
}

// Delay returns the wait before reconnect attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.InitialDelay <= 0 {
		b.InitialDelay = DefaultBackoff.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = DefaultBackoff.MaxDelay
	}
	if b.BackoffMultiple < 1 {
		b.BackoffMultiple = DefaultBackoff.BackoffMultiple
	}
	delay := float64(b.InitialDelay) * math.Pow(b.BackoffMultiple, float64(attempt))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	return time.Duration(delay)
}

// sleep waits for d or until ctx is done. It reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// deliver decodes one block payload and hands it over. Payloads that do not
// decode are logged and dropped.
func deliver(ctx context.Context, log *slog.Logger, source string, data []byte, handler Handler) {
	block, err := blockjson.Decode(data)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(source).Inc()
		log.Warn("Dropping undecodable block", "source", source, "error", err)
		return
	}
	handler(ctx, block)
}

// Package dispatcher fires one asynchronous chaincode invocation per
// qualifying event record.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/infra/invoke"
	"github.com/vietddude/orchestrator/internal/infra/storage"
	"github.com/vietddude/orchestrator/internal/orchestrator/gate"
	"github.com/vietddude/orchestrator/internal/orchestrator/metrics"
	"github.com/vietddude/orchestrator/internal/orchestrator/parser"
)

const saveTimeout = 5 * time.Second

// Target is the deployment-fixed chaincode call.
type Target struct {
	Endpoints  []string
	ContractID string
	Function   string
	Method     string
}

// Config holds dispatcher configuration.
type Config struct {
	Target   Target
	Settings gate.Settings
	// Timeout bounds each invocation; 0 leaves it to the invoker.
	Timeout time.Duration
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Dispatched uint64
	Succeeded  uint64
	Failed     uint64
	InFlight   int64
}

// Dispatcher issues invocations without blocking the caller. There is no
// cap on concurrent invocations and no retry.
type Dispatcher struct {
	cfg     Config
	invoker invoke.Invoker
	repo    storage.InvocationRepository
	log     *slog.Logger

	wg         sync.WaitGroup
	dispatched atomic.Uint64
	succeeded  atomic.Uint64
	failed     atomic.Uint64
	inFlight   atomic.Int64
}

// New creates a dispatcher. repo may be nil.
func New(cfg Config, invoker invoke.Invoker, repo storage.InvocationRepository, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		cfg:     cfg,
		invoker: invoker,
		repo:    repo,
		log:     log.With("component", "dispatcher"),
	}
}

// Request builds the invocation request. The event payload is not part of
// it: args are always empty.
func (d *Dispatcher) Request() domain.InvocationRequest {
	return domain.InvocationRequest{
		Endpoints:  append([]string(nil), d.cfg.Target.Endpoints...),
		ContractID: d.cfg.Target.ContractID,
		Function:   d.cfg.Target.Function,
		Method:     d.cfg.Target.Method,
		Args:       []string{},
		Identity:   d.cfg.Settings.Identity,
		Org:        d.cfg.Settings.Org,
	}
}

// Dispatch starts the invocation for rec and returns immediately.
// The invocation outlives ctx cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, rec parser.Record) {
	req := d.Request()

	d.wg.Add(1)
	d.dispatched.Add(1)
	d.inFlight.Add(1)
	metrics.InvocationsInFlight.Inc()

	go d.run(context.WithoutCancel(ctx), rec, req)
}

func (d *Dispatcher) run(ctx context.Context, rec parser.Record, req domain.InvocationRequest) {
	defer d.wg.Done()
	defer metrics.InvocationsInFlight.Dec()
	defer d.inFlight.Add(-1)

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	inv := &domain.Invocation{
		ID:          uuid.New().String(),
		BlockNumber: rec.BlockNumber,
		SourceTxID:  rec.TxID,
		EventName:   rec.Event.Name,
		Request:     req,
		StartedAt:   time.Now(),
	}

	txID, err := d.invoke(ctx, req)
	inv.CompletedAt = time.Now()
	metrics.InvocationLatency.Observe(inv.Duration().Seconds())

	if err != nil {
		d.failed.Add(1)
		class := invoke.ClassifyError(err)
		metrics.Invocations.WithLabelValues(string(domain.InvocationStatusFailed)).Inc()
		metrics.InvocationErrors.WithLabelValues(string(class)).Inc()

		inv.Status = domain.InvocationStatusFailed
		inv.Error = err.Error()
		d.log.Error("invokeChaincode failed",
			"block", rec.BlockNumber,
			"event", rec.Event.Name,
			"error_type", class,
			"error", err,
		)
	} else {
		d.succeeded.Add(1)
		metrics.Invocations.WithLabelValues(string(domain.InvocationStatusSucceeded)).Inc()

		inv.Status = domain.InvocationStatusSucceeded
		inv.TransactionID = txID
		d.log.Info("invokeChaincode success",
			"block", rec.BlockNumber,
			"event", rec.Event.Name,
			"transaction", txID,
		)
	}

	d.save(ctx, inv)
}

// invoke calls the invoker, turning a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, req domain.InvocationRequest) (txID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invoker panic: %v", r)
		}
	}()
	return d.invoker.Invoke(ctx, req)
}

func (d *Dispatcher) save(ctx context.Context, inv *domain.Invocation) {
	if d.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := d.repo.Save(ctx, inv); err != nil {
		d.log.Warn("Failed to record invocation", "id", inv.ID, "error", err)
	}
}

// Wait blocks until every dispatched invocation completed or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d in-flight invocations: %w", d.inFlight.Load(), ctx.Err())
	}
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Succeeded:  d.succeeded.Load(),
		Failed:     d.failed.Load(),
		InFlight:   d.inFlight.Load(),
	}
}

// Package pipeline turns delivered blocks into chaincode invocations.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/infra/subscription"
	"github.com/vietddude/orchestrator/internal/orchestrator/filter"
	"github.com/vietddude/orchestrator/internal/orchestrator/isolator"
	"github.com/vietddude/orchestrator/internal/orchestrator/metrics"
	"github.com/vietddude/orchestrator/internal/orchestrator/parser"
)

// Dispatcher submits an invocation for a qualifying record without waiting
// for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec parser.Record)
}

type State string

const (
	StateArmed      State = "armed"
	StateProcessing State = "processing"
)

// Stats is a snapshot of pipeline counters.
type Stats struct {
	BlocksProcessed uint64 `json:"blocks_processed"`
	BlocksFailed    uint64 `json:"blocks_failed"`
	EventsSeen      uint64 `json:"events_seen"`
	EventsQualified uint64 `json:"events_qualified"`
	LastBlock       uint64 `json:"last_block"`
	InProgress      int64  `json:"in_progress"`
}

// Config holds the pipeline's collaborators.
type Config struct {
	Parser     *parser.Parser
	Filter     filter.Filter
	Dispatcher Dispatcher
	Isolator   *isolator.Isolator
	Logger     *slog.Logger
}

// Pipeline handles each block independently. Blocks may be handled
// concurrently; only counters are shared.
type Pipeline struct {
	parser     *parser.Parser
	filter     filter.Filter
	dispatcher Dispatcher
	isolator   *isolator.Isolator
	log        *slog.Logger

	processed  atomic.Uint64
	failed     atomic.Uint64
	seen       atomic.Uint64
	qualified  atomic.Uint64
	lastBlock  atomic.Uint64
	inProgress atomic.Int64
}

// New creates a pipeline. Nil parser, filter and isolator get defaults.
func New(cfg Config) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		parser:     cfg.Parser,
		filter:     cfg.Filter,
		dispatcher: cfg.Dispatcher,
		isolator:   cfg.Isolator,
		log:        log.With("component", "pipeline"),
	}
	if p.parser == nil {
		p.parser = parser.New(log)
	}
	if p.filter == nil {
		p.filter = filter.NamePresent{}
	}
	if p.isolator == nil {
		p.isolator = isolator.New(nil, "", log)
	}
	return p
}

// Run registers the pipeline with the subscriber and blocks until it returns.
func (p *Pipeline) Run(ctx context.Context, sub subscription.Subscriber) error {
	p.log.Info("Subscribing to blocks")
	return sub.Subscribe(ctx, p.HandleBlock)
}

// HandleBlock processes one block. It never fails: problems with the block
// are confined to it.
func (p *Pipeline) HandleBlock(ctx context.Context, block *domain.Block) {
	p.inProgress.Add(1)
	defer p.inProgress.Add(-1)

	if block != nil {
		p.observe(block.Number)
	}

	outcome := p.isolator.Run(ctx, block, p.process)
	p.processed.Add(1)
	if outcome != isolator.OutcomeOK {
		p.failed.Add(1)
	}
}

func (p *Pipeline) process(ctx context.Context, block *domain.Block) error {
	for rec, err := range p.parser.Parse(block) {
		if err != nil {
			return err
		}
		p.seen.Add(1)
		if !p.filter.Qualifies(rec.Event) {
			metrics.EventsExtracted.WithLabelValues("false").Inc()
			continue
		}
		p.qualified.Add(1)
		metrics.EventsExtracted.WithLabelValues("true").Inc()
		p.dispatcher.Dispatch(ctx, rec)
	}
	return nil
}

// observe keeps the highest block number seen.
func (p *Pipeline) observe(number uint64) {
	for {
		cur := p.lastBlock.Load()
		if number <= cur {
			return
		}
		if p.lastBlock.CompareAndSwap(cur, number) {
			metrics.LatestBlock.Set(float64(number))
			return
		}
	}
}

// State reports whether any block is being processed right now.
func (p *Pipeline) State() State {
	if p.inProgress.Load() > 0 {
		return StateProcessing
	}
	return StateArmed
}

// Stats returns current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		BlocksProcessed: p.processed.Load(),
		BlocksFailed:    p.failed.Load(),
		EventsSeen:      p.seen.Load(),
		EventsQualified: p.qualified.Load(),
		LastBlock:       p.lastBlock.Load(),
		InProgress:      p.inProgress.Load(),
	}
}

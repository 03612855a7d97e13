// Package parser extracts chaincode event records from committed blocks.
package parser

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/vietddude/orchestrator/internal/core/domain"
)

// ErrMalformedAction is returned when an action lacks a node on the fixed
// path to its event record.
var ErrMalformedAction = errors.New("malformed action")

// Record is one event record with the position it was found at.
type Record struct {
	BlockNumber   uint64
	EnvelopeIndex int
	ActionIndex   int
	TxID          string
	Event         domain.EventRecord
}

// Parser walks blocks down to their event records.
type Parser struct {
	log *slog.Logger
}

// New creates a parser. A nil logger uses slog.Default.
func New(log *slog.Logger) *Parser {
	if log == nil {
		log = slog.Default()
	}
	return &Parser{log: log.With("component", "parser")}
}

// Parse yields one record per action in the block. Envelopes without
// actions contribute nothing. The sequence stops at the first malformed
// action, yielding the error.
func (p *Parser) Parse(block *domain.Block) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		if block == nil {
			return
		}
		for ei, env := range block.Envelopes {
			p.log.Debug("Got block", "block", block.Number, "envelope", ei)
			if !env.HasActions() {
				continue
			}
			for ai, action := range env.Actions {
				event, err := eventOf(action)
				if err != nil {
					yield(Record{}, fmt.Errorf(
						"block %d envelope %d action %d: %w",
						block.Number, ei, ai, err,
					))
					return
				}
				p.log.Debug("Event", "block", block.Number, "tx", env.TxID, "event", event.Name)

				rec := Record{
					BlockNumber:   block.Number,
					EnvelopeIndex: ei,
					ActionIndex:   ai,
					TxID:          env.TxID,
					Event:         *event,
				}
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

// eventOf descends payload.action.proposal_response_payload.extension.events.
func eventOf(a domain.Action) (*domain.EventRecord, error) {
	switch {
	case a.Payload == nil:
		return nil, fmt.Errorf("%w: missing payload", ErrMalformedAction)
	case a.Payload.Action == nil:
		return nil, fmt.Errorf("%w: missing payload.action", ErrMalformedAction)
	case a.Payload.Action.ProposalResponsePayload == nil:
		return nil, fmt.Errorf("%w: missing proposal_response_payload", ErrMalformedAction)
	case a.Payload.Action.ProposalResponsePayload.Extension == nil:
		return nil, fmt.Errorf("%w: missing extension", ErrMalformedAction)
	case a.Payload.Action.ProposalResponsePayload.Extension.Events == nil:
		return nil, fmt.Errorf("%w: missing events", ErrMalformedAction)
	}
	return a.Payload.Action.ProposalResponsePayload.Extension.Events, nil
}

package pipeline

import (
	"context"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/infra/fabric/blockjson"
	"github.com/vietddude/orchestrator/internal/infra/storage/memory"
	"github.com/vietddude/orchestrator/internal/infra/subscription"
	"github.com/vietddude/orchestrator/internal/orchestrator/dispatcher"
	"github.com/vietddude/orchestrator/internal/orchestrator/filter"
	"github.com/vietddude/orchestrator/internal/orchestrator/gate"
	"github.com/vietddude/orchestrator/internal/orchestrator/isolator"
	"github.com/vietddude/orchestrator/internal/orchestrator/parser"
)

// =============================================================================
// Mocks
// =============================================================================

type recordingInvoker struct {
	mu       sync.Mutex
	requests []domain.InvocationRequest
}

func (r *recordingInvoker) Invoke(ctx context.Context, req domain.InvocationRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return "tx", nil
}

func (r *recordingInvoker) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

type fakeSubscriber struct {
	blocks []*domain.Block
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, handler subscription.Handler) error {
	for _, b := range f.blocks {
		handler(ctx, b)
	}
	return nil
}

type harness struct {
	pipeline   *Pipeline
	dispatcher *dispatcher.Dispatcher
	invoker    *recordingInvoker
	failed     *memory.FailedRepo
}

func newHarness(t *testing.T, eventNames ...string) *harness {
	t.Helper()
	inv := &recordingInvoker{}
	d := dispatcher.New(dispatcher.Config{
		Target: dispatcher.Target{
			Endpoints:  []string{"grpcs://peer0.bank.transport-chain.nl:7051"},
			ContractID: "bank-transport",
			Function:   "payment",
			Method:     "pay",
		},
		Settings: gate.Settings{Identity: "service", Org: "ns"},
	}, inv, nil, nil)

	failed := memory.NewFailedRepo(memory.NewMemoryStorage())
	p := New(Config{
		Filter:     filter.New(eventNames),
		Dispatcher: d,
		Isolator:   isolator.New(failed, "bank-transport", nil),
	})
	return &harness{pipeline: p, dispatcher: d, invoker: inv, failed: failed}
}

func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.dispatcher.Wait(ctx); err != nil {
		t.Fatalf("invocations did not complete: %v", err)
	}
}

func eventBlock(number uint64, names ...string) *domain.Block {
	actions := make([]domain.Action, 0, len(names))
	for _, n := range names {
		actions = append(actions, domain.NewEventAction(domain.EventRecord{Name: n}))
	}
	return &domain.Block{Number: number, Envelopes: []domain.Envelope{{TxID: "tx", Actions: actions}}}
}

// =============================================================================
// Tests
// =============================================================================

func TestHandleBlock_NamedEvent(t *testing.T) {
	h := newHarness(t)

	h.pipeline.HandleBlock(context.Background(), eventBlock(5, "Deposited"))
	h.settle(t)

	if len(h.invoker.requests) != 1 {
		t.Fatalf("expected exactly 1 invocation, got %d", len(h.invoker.requests))
	}
	req := h.invoker.requests[0]
	expected := domain.InvocationRequest{
		Endpoints:  []string{"grpcs://peer0.bank.transport-chain.nl:7051"},
		ContractID: "bank-transport",
		Function:   "payment",
		Method:     "pay",
		Args:       []string{},
		Identity:   "service",
		Org:        "ns",
	}
	if !reflect.DeepEqual(req, expected) {
		t.Errorf("unexpected request:\n got %+v\nwant %+v", req, expected)
	}
}

func TestHandleBlock_UnnamedEvent(t *testing.T) {
	h := newHarness(t)

	h.pipeline.HandleBlock(context.Background(), eventBlock(6, ""))
	h.settle(t)

	if n := h.invoker.count(); n != 0 {
		t.Errorf("expected no invocations, got %d", n)
	}
	if s := h.pipeline.Stats(); s.EventsSeen != 1 || s.EventsQualified != 0 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestHandleBlock_EnvelopeWithoutActions(t *testing.T) {
	h := newHarness(t)

	h.pipeline.HandleBlock(context.Background(), &domain.Block{Number: 7, Envelopes: []domain.Envelope{{}}})
	h.settle(t)

	if n := h.invoker.count(); n != 0 {
		t.Errorf("expected no invocations, got %d", n)
	}
	if s := h.pipeline.Stats(); s.BlocksFailed != 0 || s.BlocksProcessed != 1 {
		t.Errorf("absent actions must not fail the block: %+v", s)
	}
}

func TestHandleBlock_OneInvocationPerNamedEvent(t *testing.T) {
	h := newHarness(t)

	block := eventBlock(8, "A", "", "B")
	block.Envelopes = append(block.Envelopes,
		domain.Envelope{},
		domain.Envelope{Actions: []domain.Action{
			domain.NewEventAction(domain.EventRecord{Name: "C", Payload: []byte(`{"x":1}`)}),
		}},
	)
	h.pipeline.HandleBlock(context.Background(), block)
	h.settle(t)

	if n := h.invoker.count(); n != 3 {
		t.Errorf("expected 3 invocations, got %d", n)
	}
	for _, req := range h.invoker.requests {
		if len(req.Args) != 0 {
			t.Errorf("expected empty args, got %v", req.Args)
		}
	}
}

func TestHandleBlock_MalformedBlockIsIsolated(t *testing.T) {
	h := newHarness(t)

	malformed := &domain.Block{Number: 10, Envelopes: []domain.Envelope{{
		Actions: []domain.Action{{Payload: &domain.ActionPayload{}}},
	}}}
	h.pipeline.HandleBlock(context.Background(), malformed)
	h.pipeline.HandleBlock(context.Background(), eventBlock(11, "Deposited"))
	h.settle(t)

	if n := h.invoker.count(); n != 1 {
		t.Errorf("expected the valid block to yield 1 invocation, got %d", n)
	}

	s := h.pipeline.Stats()
	if s.BlocksProcessed != 2 || s.BlocksFailed != 1 || s.LastBlock != 11 {
		t.Errorf("unexpected stats: %+v", s)
	}

	failed, _ := h.failed.GetAll(context.Background(), "bank-transport", 0)
	if len(failed) != 1 || failed[0].BlockNumber != 10 || failed[0].FailureType != domain.FailureTypeParsing {
		t.Errorf("unexpected failed blocks: %+v", failed)
	}
}

func TestHandleBlock_EventsBeforeMalformedActionAreDispatched(t *testing.T) {
	h := newHarness(t)

	block := eventBlock(12, "First")
	block.Envelopes[0].Actions = append(block.Envelopes[0].Actions, domain.Action{})
	block.Envelopes = append(block.Envelopes, eventBlock(12, "Never").Envelopes...)

	h.pipeline.HandleBlock(context.Background(), block)
	h.settle(t)

	if n := h.invoker.count(); n != 1 {
		t.Errorf("expected 1 invocation before the malformed action, got %d", n)
	}
}

func TestHandleBlock_DispatcherPanicIsIsolated(t *testing.T) {
	failed := memory.NewFailedRepo(memory.NewMemoryStorage())
	p := New(Config{
		Dispatcher: panicDispatcher{},
		Isolator:   isolator.New(failed, "bank-transport", nil),
	})

	p.HandleBlock(context.Background(), eventBlock(13, "Deposited"))
	p.HandleBlock(context.Background(), eventBlock(14))

	if s := p.Stats(); s.BlocksProcessed != 2 || s.BlocksFailed != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if n, _ := failed.Count(context.Background(), "bank-transport"); n != 1 {
		t.Errorf("expected 1 failed block, got %d", n)
	}
}

type panicDispatcher struct{}

func (panicDispatcher) Dispatch(ctx context.Context, rec parser.Record) {
	panic("dispatch exploded")
}

func TestHandleBlock_AllowList(t *testing.T) {
	h := newHarness(t, "Deposited")

	h.pipeline.HandleBlock(context.Background(), eventBlock(15, "Deposited", "Withdrawn", ""))
	h.settle(t)

	if n := h.invoker.count(); n != 1 {
		t.Errorf("expected only the listed event to be invoked, got %d", n)
	}
}

func TestHandleBlock_Concurrent(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			h.pipeline.HandleBlock(context.Background(), eventBlock(n, "E", "F"))
		}(uint64(i))
	}
	wg.Wait()
	h.settle(t)

	if n := h.invoker.count(); n != 40 {
		t.Errorf("expected 40 invocations, got %d", n)
	}
	s := h.pipeline.Stats()
	if s.BlocksProcessed != 20 || s.LastBlock != 20 || s.InProgress != 0 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if h.pipeline.State() != StateArmed {
		t.Errorf("expected armed after processing, got %s", h.pipeline.State())
	}
}

func TestRun_DecodedFixture(t *testing.T) {
	data, err := os.ReadFile("../../infra/fabric/blockjson/testdata/block_deposited.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	block, err := blockjson.Decode(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	h := newHarness(t)
	sub := &fakeSubscriber{blocks: []*domain.Block{block, {Number: 6}}}
	if err := h.pipeline.Run(context.Background(), sub); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	h.settle(t)

	if n := h.invoker.count(); n != 1 {
		t.Errorf("expected 1 invocation, got %d", n)
	}
	if s := h.pipeline.Stats(); s.BlocksProcessed != 2 || s.LastBlock != 6 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestHandleBlock_NilBlock(t *testing.T) {
	h := newHarness(t)
	h.pipeline.HandleBlock(context.Background(), nil)

	if s := h.pipeline.Stats(); s.BlocksProcessed != 1 || s.BlocksFailed != 0 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

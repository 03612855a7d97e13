package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/orchestrator/internal/core/config"
	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/infra/subscription"
)

// =============================================================================
// Mocks
// =============================================================================

type blockSubscriber struct {
	blocks []*domain.Block
	calls  atomic.Int32
}

func (s *blockSubscriber) Subscribe(ctx context.Context, handler subscription.Handler) error {
	s.calls.Add(1)
	for _, b := range s.blocks {
		handler(ctx, b)
	}
	<-ctx.Done()
	return nil
}

type failingSubscriber struct{}

func (failingSubscriber) Subscribe(ctx context.Context, handler subscription.Handler) error {
	return errors.New("stream closed")
}

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

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Parse([]byte("invoker:\n  url: http://gateway\nsubscription:\n  url: http://listener/blocks\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return cfg
}

func namedBlock(n uint64) *domain.Block {
	return &domain.Block{Number: n, Envelopes: []domain.Envelope{{
		TxID:    "tx",
		Actions: []domain.Action{domain.NewEventAction(domain.EventRecord{Name: "Deposited"})},
	}}}
}

// =============================================================================
// Tests
// =============================================================================

func TestApp_GatedNeverSubscribes(t *testing.T) {
	sub := &blockSubscriber{blocks: []*domain.Block{namedBlock(1), namedBlock(2)}}
	inv := &recordingInvoker{}

	app, err := NewApp(testConfig(t), config.Identity{Org: "bank", ServiceUser: "service"},
		WithSubscriber(sub), WithInvoker(inv), WithoutHealthServer())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if app.Armed() || app.Pipeline() != nil {
		t.Fatal("expected a gated app with no pipeline")
	}

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if sub.calls.Load() != 0 {
		t.Errorf("expected no subscription, got %d", sub.calls.Load())
	}
	if inv.count() != 0 {
		t.Errorf("expected no invocations, got %d", inv.count())
	}
}

func TestApp_GatedIgnoresInvalidTransportConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Invoker.Type = "carrier-pigeon"

	app, err := NewApp(cfg, config.Identity{Org: "bank"})
	if err != nil {
		t.Fatalf("a gated app must not build anything, got %v", err)
	}
	if app.Armed() {
		t.Error("expected gated")
	}
}

func TestApp_ArmedLifecycle(t *testing.T) {
	sub := &blockSubscriber{blocks: []*domain.Block{
		namedBlock(5),
		{Number: 6, Envelopes: []domain.Envelope{{Actions: []domain.Action{domain.NewEventAction(domain.EventRecord{})}}}},
		{Number: 7, Envelopes: []domain.Envelope{{}}},
	}}
	inv := &recordingInvoker{}

	app, err := NewApp(testConfig(t), config.Identity{Org: "ns", ServiceUser: "service"},
		WithSubscriber(sub), WithInvoker(inv), WithoutHealthServer())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if !app.Armed() {
		t.Fatal("expected armed")
	}

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for app.Pipeline().Stats().BlocksProcessed < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if sub.calls.Load() != 1 {
		t.Errorf("expected exactly 1 subscription, got %d", sub.calls.Load())
	}
	if n := inv.count(); n != 1 {
		t.Fatalf("expected 1 invocation, got %d", n)
	}
	req := inv.requests[0]
	if req.Org != "ns" || req.Identity != "service" || req.ContractID != "bank-transport" || len(req.Args) != 0 {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestApp_SubscriptionErrorStopsApp(t *testing.T) {
	app, err := NewApp(testConfig(t), config.Identity{Org: "veolia"},
		WithSubscriber(failingSubscriber{}), WithInvoker(&recordingInvoker{}), WithoutHealthServer())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-app.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop after subscription error")
	}
	if app.Err() == nil {
		t.Error("expected the subscription error")
	}
	app.Stop(context.Background())
}

func TestApp_StartTwice(t *testing.T) {
	app, err := NewApp(testConfig(t), config.Identity{Org: "ns"},
		WithSubscriber(&blockSubscriber{}), WithInvoker(&recordingInvoker{}), WithoutHealthServer())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer app.Stop(context.Background())

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := app.Start(context.Background()); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.AppConfig)
	}{
		{"unknown invoker", func(c *config.AppConfig) { c.Invoker.Type = "soap" }},
		{"missing invoker url", func(c *config.AppConfig) { c.Invoker.URL = "" }},
		{"unknown subscription", func(c *config.AppConfig) { c.Subscription.Type = "kafka" }},
		{"missing subscription url", func(c *config.AppConfig) { c.Subscription.URL = "" }},
		{"redis subscription without redis", func(c *config.AppConfig) { c.Subscription.Type = "redis" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			if _, err := NewApp(cfg, config.Identity{Org: "ns"}, WithoutHealthServer()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewApp_BuildsConfiguredTransports(t *testing.T) {
	app, err := NewApp(testConfig(t), config.Identity{Org: "ns"}, WithoutHealthServer())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if _, ok := app.subscriber.(*subscription.HTTPStream); !ok {
		t.Errorf("expected HTTP stream subscriber, got %T", app.subscriber)
	}
	if err := app.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

type finiteSubscriber struct {
	blocks []*domain.Block
}

func (s finiteSubscriber) Subscribe(ctx context.Context, handler subscription.Handler) error {
	for _, b := range s.blocks {
		handler(ctx, b)
	}
	return nil
}

func TestApp_FiniteSubscriptionCompletes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Orchestrator.Retention = 24 * time.Hour
	inv := &recordingInvoker{}

	app, err := NewApp(cfg, config.Identity{Org: "ns"},
		WithSubscriber(finiteSubscriber{blocks: []*domain.Block{namedBlock(1), namedBlock(2)}}),
		WithInvoker(inv), WithoutHealthServer())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if app.pruner == nil {
		t.Fatal("expected a pruner when retention is set")
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-app.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("app did not finish after the subscription ended")
	}
	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if app.Err() != nil {
		t.Errorf("unexpected error: %v", app.Err())
	}
	if n := inv.count(); n != 2 {
		t.Errorf("expected 2 invocations, got %d", n)
	}
}

// stubbornSubscriber ignores cancellation until released, then delivers
// one more block.
type stubbornSubscriber struct {
	first, last *domain.Block
	release     chan struct{}
}

func (s stubbornSubscriber) Subscribe(ctx context.Context, handler subscription.Handler) error {
	handler(ctx, s.first)
	<-s.release
	handler(ctx, s.last)
	return nil
}

type blockingInvoker struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingInvoker) Invoke(ctx context.Context, req domain.InvocationRequest) (string, error) {
	b.calls.Add(1)
	<-b.release
	return "tx", nil
}

func TestApp_StopTimeoutSkipsDrainWhileSubscribing(t *testing.T) {
	release := make(chan struct{})
	sub := stubbornSubscriber{first: namedBlock(1), last: namedBlock(2), release: release}
	inv := &blockingInvoker{release: release}

	app, err := NewApp(testConfig(t), config.Identity{Org: "ns"},
		WithSubscriber(sub), WithInvoker(inv), WithoutHealthServer())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = app.Stop(ctx)
	if err == nil || !strings.Contains(err.Error(), "waiting for subscription") {
		t.Fatalf("expected subscription timeout, got %v", err)
	}
	if strings.Contains(err.Error(), "draining invocations") {
		t.Errorf("expected drain to be skipped, got %v", err)
	}

	// The subscription dispatches again after Stop returned.
	close(release)
	select {
	case <-app.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not finish after release")
	}
	if err := app.dispatcher.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if n := inv.calls.Load(); n != 2 {
		t.Errorf("expected 2 invocations, got %d", n)
	}
}

// Package control wires the orchestrator's components and manages their
// lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/orchestrator/internal/core/config"
	"github.com/vietddude/orchestrator/internal/core/worker"
	"github.com/vietddude/orchestrator/internal/infra/invoke"
	redisclient "github.com/vietddude/orchestrator/internal/infra/redis"
	"github.com/vietddude/orchestrator/internal/infra/storage"
	"github.com/vietddude/orchestrator/internal/infra/storage/memory"
	"github.com/vietddude/orchestrator/internal/infra/storage/postgres"
	"github.com/vietddude/orchestrator/internal/infra/subscription"
	"github.com/vietddude/orchestrator/internal/orchestrator/dispatcher"
	"github.com/vietddude/orchestrator/internal/orchestrator/filter"
	"github.com/vietddude/orchestrator/internal/orchestrator/gate"
	"github.com/vietddude/orchestrator/internal/orchestrator/health"
	"github.com/vietddude/orchestrator/internal/orchestrator/isolator"
	"github.com/vietddude/orchestrator/internal/orchestrator/parser"
	"github.com/vietddude/orchestrator/internal/orchestrator/pipeline"
)

const healthShutdownTimeout = 5 * time.Second

// Option overrides a component NewApp would otherwise build from config.
type Option func(*options)

type options struct {
	subscriber subscription.Subscriber
	invoker    invoke.Invoker
	log        *slog.Logger
	noHealth   bool
}

// WithSubscriber sets the block source.
func WithSubscriber(s subscription.Subscriber) Option {
	return func(o *options) { o.subscriber = s }
}

// WithInvoker sets the chaincode invoker.
func WithInvoker(i invoke.Invoker) Option {
	return func(o *options) { o.invoker = i }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithoutHealthServer skips the HTTP health server.
func WithoutHealthServer() Option {
	return func(o *options) { o.noHealth = true }
}

// App is the orchestrator process. A gated App holds no components.
type App struct {
	decision gate.Decision
	log      *slog.Logger

	pipeline     *pipeline.Pipeline
	dispatcher   *dispatcher.Dispatcher
	subscriber   subscription.Subscriber
	healthServer *health.Server
	failedRepo   storage.FailedBlockRepository
	pruner       *worker.Pruner
	db           *postgres.DB
	closers      []io.Closer

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewApp evaluates the gate and, when armed, builds every component.
func NewApp(cfg *config.AppConfig, identity config.Identity, opts ...Option) (*App, error) {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	decision := gate.Evaluate(cfg.Orchestrator.AllowedOrgs, identity)
	gate.Announce(o.log, cfg.Orchestrator.AllowedOrgs, decision)

	a := &App{decision: decision, log: o.log}
	if !decision.Armed() {
		return a, nil
	}

	if err := a.build(cfg, o); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.AppConfig, o options) error {
	ctx := context.Background()

	// 1. Redis, shared by the failed-block queue and the redis subscription
	var rc *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		rc, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rc)
	}

	// 2. Storage
	var invocationRepo storage.InvocationRepository
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, db)
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		a.failedRepo = postgres.NewFailedBlockRepo(db)
		invocationRepo = postgres.NewInvocationRepo(db)
		a.log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		invocationRepo = memory.NewInvocationRepo(store)
		if rc != nil {
			a.failedRepo = redisclient.NewFailedBlockRepo(rc, cfg.Redis.TTL)
			a.log.Info("Using Redis failed-block storage")
		} else {
			a.failedRepo = memory.NewFailedRepo(store)
			a.log.Info("Using Memory storage")
		}
	}

	if cfg.Orchestrator.Retention > 0 {
		targets := make(map[string]storage.Prunable)
		if p, ok := a.failedRepo.(storage.Prunable); ok {
			targets["failed_blocks"] = p
		}
		if p, ok := invocationRepo.(storage.Prunable); ok {
			targets["invocations"] = p
		}
		a.pruner = worker.NewPruner(cfg.Orchestrator.Retention, targets, a.log)
	}

	// 3. Invoker
	invoker := o.invoker
	if invoker == nil {
		var err error
		if invoker, err = newInvoker(cfg.Invoker); err != nil {
			return err
		}
		if c, ok := invoker.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
	}

	// 4. Subscriber
	a.subscriber = o.subscriber
	if a.subscriber == nil {
		var err error
		if a.subscriber, err = newSubscriber(cfg.Subscription, rc, a.log); err != nil {
			return err
		}
	}

	// 5. Pipeline
	t := cfg.Orchestrator.Target
	a.dispatcher = dispatcher.New(dispatcher.Config{
		Target: dispatcher.Target{
			Endpoints:  t.Endpoints,
			ContractID: t.ContractID,
			Function:   t.Function,
			Method:     t.Method,
		},
		Settings: a.decision.Settings,
		Timeout:  cfg.Orchestrator.InvocationTimeout,
	}, invoker, invocationRepo, a.log)

	a.pipeline = pipeline.New(pipeline.Config{
		Parser:     parser.New(a.log),
		Filter:     filter.New(cfg.Orchestrator.EventNames),
		Dispatcher: a.dispatcher,
		Isolator:   isolator.New(a.failedRepo, cfg.Orchestrator.Channel, a.log),
		Logger:     a.log,
	})

	// 6. Health
	if !o.noHealth {
		monitor := health.NewMonitor(health.MonitorConfig{
			Channel:        cfg.Orchestrator.Channel,
			Pipeline:       a.pipeline,
			Dispatcher:     a.dispatcher,
			FailedRepo:     a.failedRepo,
			InvocationRepo: invocationRepo,
		})
		a.healthServer = health.NewServer(monitor, cfg.Server.Port)
	}
	return nil
}

func newInvoker(cfg config.InvokerConfig) (invoke.Invoker, error) {
	if cfg.URL == "" {
		return nil, errors.New("invoker.url is required")
	}
	switch cfg.Type {
	case "", "http":
		return invoke.NewHTTPInvoker(cfg.URL, cfg.Timeout), nil
	case "grpc":
		return invoke.NewGRPCInvoker(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown invoker type %q", cfg.Type)
	}
}

func newSubscriber(cfg config.SubscriptionConfig, rc *redisclient.Client, log *slog.Logger) (subscription.Subscriber, error) {
	switch cfg.Type {
	case "", "http":
		if cfg.URL == "" {
			return nil, errors.New("subscription.url is required")
		}
		backoff := subscription.Backoff{
			InitialDelay:    cfg.ReconnectDelay,
			MaxDelay:        cfg.MaxReconnect,
			BackoffMultiple: 2.0,
		}
		return subscription.NewHTTPStream(cfg.URL, backoff, log), nil
	case "redis":
		if rc == nil {
			return nil, errors.New("redis subscription requires redis.url")
		}
		return subscription.NewRedisPubSub(rc, cfg.Channel, log), nil
	default:
		return nil, fmt.Errorf("unknown subscription type %q", cfg.Type)
	}
}

// Armed reports whether the gate let the orchestrator run.
func (a *App) Armed() bool {
	return a.decision.Armed()
}

// Pipeline returns the pipeline, nil when gated.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Start subscribes and serves health endpoints in the background. It is a
// no-op when gated.
func (a *App) Start(ctx context.Context) error {
	if !a.Armed() {
		return nil
	}
	if a.done != nil {
		return errors.New("orchestrator already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	g, gctx := errgroup.WithContext(runCtx)

	if a.db != nil {
		a.db.StartMetricsCollector(gctx)
	}

	// The App is done once the subscription ends, for whatever reason.
	g.Go(func() error {
		defer cancel()
		return a.pipeline.Run(gctx, a.subscriber)
	})

	if a.pruner != nil {
		g.Go(func() error {
			a.pruner.Start(gctx)
			return nil
		})
	}

	if a.healthServer != nil {
		g.Go(a.healthServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), healthShutdownTimeout)
			defer cancel()
			return a.healthServer.Stop(shutdownCtx)
		})
	}

	go func() {
		a.err = g.Wait()
		if a.err != nil {
			a.log.Error("Orchestrator stopped", "error", a.err)
		}
		close(a.done)
	}()
	return nil
}

// Done is closed once the subscription and health server have stopped. It
// is nil for a gated or unstarted App.
func (a *App) Done() <-chan struct{} {
	return a.done
}

// Err returns the error that stopped the App, once Done is closed.
func (a *App) Err() error {
	return a.err
}

// Stop cancels the subscription, waits for in-flight invocations and
// releases resources. It is a no-op when gated.
func (a *App) Stop(ctx context.Context) error {
	if !a.Armed() {
		return nil
	}
	a.log.Info("Stopping orchestrator...")

	var errs []error
	stopped := true
	if a.cancel != nil {
		a.cancel()
		select {
		case <-a.done:
		case <-ctx.Done():
			stopped = false
			errs = append(errs, fmt.Errorf("waiting for subscription: %w", ctx.Err()))
		}
	}

	// Blocks may still be dispatching until the subscription has returned.
	if stopped {
		stats := a.dispatcher.Stats()
		if stats.InFlight > 0 {
			a.log.Info("Waiting for in-flight invocations", "count", stats.InFlight)
		}
		if err := a.dispatcher.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("draining invocations: %w", err))
		}
	} else {
		a.log.Warn("Subscription still running, skipping invocation drain")
	}

	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("Failed to close resource", "error", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

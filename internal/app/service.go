// Package app wires the call ledger: it owns the process-wide collaborators
// and the Dispatcher that the HTTP layer calls.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/callledger/internal/adapters/analytics"
	"github.com/okian/callledger/internal/adapters/breaker"
	"github.com/okian/callledger/internal/adapters/leads"
	"github.com/okian/callledger/internal/adapters/ledger"
	"github.com/okian/callledger/internal/adapters/mq/queue"
	workerpool "github.com/okian/callledger/internal/adapters/mq/worker"
	"github.com/okian/callledger/internal/adapters/objectstore"
	"github.com/okian/callledger/internal/adapters/objectstore/gcs"
	"github.com/okian/callledger/internal/adapters/objectstore/memory"
	"github.com/okian/callledger/internal/config"
	"github.com/okian/callledger/internal/domain/dedupe"
	"github.com/okian/callledger/internal/domain/normalize"
	"github.com/okian/callledger/internal/domain/routing"
	"github.com/okian/callledger/pkg/logger"
	"github.com/okian/callledger/pkg/metrics"
)

// Service holds every long-lived collaborator. Build it with New, call
// Start once, then run Serve under a supervisor.
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config

	// Injected or built in Start.
	objects   objectstore.Store
	sink      analytics.Sink
	leadStore leads.Store
	injected  struct{ objects, sink, leads bool }

	routes     *routing.Table
	queue      *queue.InMemoryQueue
	pool       *workerpool.Pool
	dispatcher *Dispatcher

	closers []func() error
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithObjectStore uses s instead of the configured storage backend.
func WithObjectStore(s objectstore.Store) Option {
	return func(svc *Service) {
		svc.objects = s
		svc.injected.objects = true
	}
}

// WithAnalyticsSink uses sink instead of the configured backend. Nil disables analytics.
func WithAnalyticsSink(sink analytics.Sink) Option {
	return func(svc *Service) {
		svc.sink = sink
		svc.injected.sink = true
	}
}

// WithLeadStore uses store instead of Firestore. Nil disables lead updates.
func WithLeadStore(store leads.Store) Option {
	return func(svc *Service) {
		svc.leadStore = store
		svc.injected.leads = true
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service for cfg.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds clients, loads the routing table and prepares the side
// effect pool. Workers begin consuming in Serve.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting call ledger service...")

	if err := s.start(ctx); err != nil {
		s.closeClients()
		return err
	}
	return nil
}

func (s *Service) start(ctx context.Context) error {
	if err := s.buildObjectStore(ctx); err != nil {
		return err
	}

	routes, err := routing.Load(ctx,
		routing.FetcherFunc(func(ctx context.Context, bucket, path string) ([]byte, error) {
			return objectstore.Fetch(ctx, s.objects, bucket, path)
		}),
		s.cfg.AgentConfigURI,
		routing.LoadOptions{
			Defaults: routing.Defaults{Bucket: s.cfg.DefaultBucket, Path: s.cfg.DefaultCSVPath},
			Strict:   s.cfg.RoutingStrict,
			Logger:   logger.Get().Named("routing"),
		})
	if err != nil {
		return fmt.Errorf("routing table: %w", err)
	}
	s.routes = routes
	metrics.UpdateRoutingTableSize(routes.Len())

	if err := s.buildAnalytics(ctx); err != nil {
		return err
	}
	if err := s.buildLeads(ctx); err != nil {
		return err
	}

	loc, err := s.cfg.Location()
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	initial, maxBackoff := s.cfg.LedgerBackoff()
	ledgerStore := ledger.New(s.objects,
		ledger.WithMaxAttempts(s.cfg.LedgerMaxAttempts),
		ledger.WithBackoff(initial, maxBackoff))

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.SideEffectQueueSize))
	s.pool = workerpool.NewPool(s.cfg.SideEffectWorkers, s.queue,
		workerpool.WithWorkerOptions(workerpool.WithTaskTimeout(s.cfg.SideEffectTimeout())))

	s.dispatcher = NewDispatcher(routes, ledgerStore,
		WithNormalizer(normalize.New(normalize.WithLocation(loc))),
		WithSideEffects(s.queue, s.sink, s.leadStore),
		WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.SideEffectQueueSize*8))))

	s.started = true
	s.logger.Info(ctx, "call ledger service started",
		logger.Int("routes", routes.Len()),
		logger.String("routing_source", routes.Source()),
		logger.String("storage", s.cfg.StorageBackend),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queue.Capacity()))
	return nil
}

func (s *Service) buildObjectStore(ctx context.Context) error {
	if s.injected.objects {
		return nil
	}
	switch s.cfg.StorageBackend {
	case "memory":
		s.objects = memory.New()
	default:
		store, err := gcs.New(ctx)
		if err != nil {
			return err
		}
		s.objects = store
		s.closers = append(s.closers, store.Close)
	}
	return nil
}

func (s *Service) buildAnalytics(ctx context.Context) error {
	if s.injected.sink {
		return nil
	}
	var sink analytics.Sink
	switch s.cfg.AnalyticsBackend {
	case "bigquery":
		if s.cfg.BQTable == "" {
			return nil
		}
		bq, err := analytics.NewBigQuery(ctx, s.cfg.ProjectID, s.cfg.BQDataset, s.cfg.BQTable)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, bq.Close)
		sink = bq
	case "postgres":
		pg, err := analytics.NewPostgres(ctx, s.cfg.PostgresDSN, int32(s.cfg.SideEffectWorkers))
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() error { pg.Close(); return nil })
		sink = pg
	default:
		return nil
	}
	s.sink = analytics.WithBreaker(sink, breaker.New("analytics", breaker.DefaultSettings(), nil))
	return nil
}

func (s *Service) buildLeads(ctx context.Context) error {
	if s.injected.leads || !s.cfg.FirestoreEnabled {
		return nil
	}
	fs, err := leads.NewFirestore(ctx, s.cfg.ProjectID, s.cfg.LeadsCollection)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, fs.Close)
	s.leadStore = leads.WithBreaker(fs, breaker.New("leads", breaker.DefaultSettings(), nil))
	return nil
}

// Serve runs the side-effect workers until ctx is cancelled and then
// drains the queue. It satisfies suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	s.mu.RLock()
	pool := s.pool
	s.mu.RUnlock()
	if pool == nil {
		return ErrNotStarted
	}
	return pool.Serve(ctx)
}

// String names the service for the supervisor.
func (s *Service) String() string { return "side-effect-pool" }

// Dispatcher returns the webhook dispatcher. Nil before Start.
func (s *Service) Dispatcher() *Dispatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispatcher
}

// Stop releases clients. Call after Serve has returned.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(context.Background(), "stopping call ledger service...")
	s.closeClients()
	s.started = false
	s.logger.Info(context.Background(), "call ledger service stopped")
}

// closeClients closes built clients in reverse order. Callers hold s.mu.
func (s *Service) closeClients() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn(context.Background(), "error closing client", logger.Error(err))
		}
	}
	s.closers = nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started": s.started,
	}
	if !s.started {
		return stats
	}
	stats["routes"] = s.routes.Len()
	stats["routingSource"] = s.routes.Source()
	stats["producers"] = s.routes.ProducerIDs()
	stats["queueLength"] = s.queue.Len(ctx)
	stats["queueCapacity"] = s.queue.Capacity()
	stats["workerCount"] = s.pool.Size()
	stats["sideEffectsProcessed"] = s.pool.Processed()
	stats["sideEffectsFailed"] = s.pool.Failed()
	stats["analyticsEnabled"] = s.sink != nil
	stats["leadUpdatesEnabled"] = s.leadStore != nil
	return stats
}

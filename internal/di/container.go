package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/hanko-field/carts/internal/domain"
	"github.com/hanko-field/carts/internal/platform/config"
	"github.com/hanko-field/carts/internal/platform/db"
	pfirestore "github.com/hanko-field/carts/internal/platform/firestore"
	"github.com/hanko-field/carts/internal/platform/jobs"
	"github.com/hanko-field/carts/internal/platform/observability"
	platformstorage "github.com/hanko-field/carts/internal/platform/storage"
	"github.com/hanko-field/carts/internal/repositories"
	firestorerepo "github.com/hanko-field/carts/internal/repositories/firestore"
	"github.com/hanko-field/carts/internal/repositories/memory"
	postgresrepo "github.com/hanko-field/carts/internal/repositories/postgres"
	"github.com/hanko-field/carts/internal/services"
)

// Container wires repositories, the cart orchestrator, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Carts        *services.CartOrchestrator
	Sweeper      *services.CartSweeper

	// EventRelay is nil unless an events topic is configured.
	EventRelay *jobs.EventRelay

	analytics *jobs.PubSubAnalyticsSink
	closers   []func(context.Context) error
}

// Option customises container construction.
type Option func(*options)

type options struct {
	registry repositories.Registry
	clock    func() time.Time
	pubsub   *pubsub.Client
}

// WithRegistry supplies a prebuilt registry instead of selecting one from the storage backend.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithClock overrides the wall clock used by the orchestrator and sweeper.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithPubSubClient reuses an existing Pub/Sub client. The container does not close it.
func WithPubSubClient(client *pubsub.Client) Option {
	return func(o *options) { o.pubsub = client }
}

// NewContainer constructs the runtime dependencies described by cfg. Components whose configuration
// is absent (Pub/Sub project, exports bucket) are left out rather than failing.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close(context.Background())
		}
	}()

	reg := o.registry
	if reg == nil {
		var err error
		reg, err = buildRegistry(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	c.Repositories = reg
	c.closers = append(c.closers, reg.Close)

	eventLogger := observability.EventLogger(logger.Named("carts"), cfg.Firestore.ProjectID)

	var analytics services.AnalyticsSink
	var eventsTopic *pubsub.Topic
	if projectID := strings.TrimSpace(cfg.PubSub.ProjectID); projectID != "" {
		client := o.pubsub
		if client == nil {
			var err error
			client, err = pubsub.NewClient(ctx, projectID)
			if err != nil {
				return nil, fmt.Errorf("build pubsub client: %w", err)
			}
			c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		}
		if name := strings.TrimSpace(cfg.PubSub.AnalyticsTopic); name != "" {
			topic := client.Topic(name)
			c.closers = append(c.closers, func(context.Context) error {
				topic.Stop()
				return nil
			})
			sink, err := jobs.NewPubSubAnalyticsSink(topic, logger.Named("analytics"), o.clock)
			if err != nil {
				return nil, fmt.Errorf("build analytics sink: %w", err)
			}
			c.analytics = sink
			analytics = sink
		}
		if name := strings.TrimSpace(cfg.PubSub.EventsTopic); name != "" {
			eventsTopic = client.Topic(name)
			c.closers = append(c.closers, func(context.Context) error {
				eventsTopic.Stop()
				return nil
			})
		}
	}

	carts, err := services.NewCartOrchestrator(services.CartOrchestratorDeps{
		Repository:      reg.Carts(),
		Analytics:       analytics,
		Clock:           o.clock,
		DefaultCurrency: cfg.Pricing.DefaultCurrency,
		Logger:          eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build cart orchestrator: %w", err)
	}
	c.Carts = carts

	if eventsTopic != nil {
		relay, err := jobs.NewEventRelay(eventsTopic, logger.Named("events"))
		if err != nil {
			return nil, fmt.Errorf("build event relay: %w", err)
		}
		c.EventRelay = relay
	}

	var reporter services.CleanupReporter
	if bucket := strings.TrimSpace(cfg.Exports.Bucket); bucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build storage client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		writer, err := platformstorage.NewCleanupReportWriter(client, bucket, logger.Named("exports"))
		if err != nil {
			return nil, fmt.Errorf("build cleanup report writer: %w", err)
		}
		reporter = writer
	}

	sweeper, err := services.NewCartSweeper(services.CartSweeperDeps{
		Carts:    carts,
		Policy:   cleanupPolicy(cfg.Cleanup),
		Reporter: reporter,
		Clock:    o.clock,
		Logger:   eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build cart sweeper: %w", err)
	}
	c.Sweeper = sweeper

	ok = true
	return c, nil
}

// Close stops event delivery, flushes pending analytics, and releases clients in reverse order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.Carts != nil {
		c.Carts.Close()
	}
	if c.analytics != nil {
		c.analytics.Flush()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func buildRegistry(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.Registry, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory, "":
		return memory.NewRegistry(memory.NewCartRepository()), nil
	case config.BackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, fmt.Errorf("build firestore client: %w", err)
		}
		reg, err := firestorerepo.NewRegistry(provider)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, err
		}
		return reg, nil
	case config.BackendPostgres:
		pool, err := db.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.Migrate {
			if err := postgresrepo.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		reg, err := postgresrepo.NewRegistry(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

func cleanupPolicy(cfg config.CleanupConfig) domain.CleanupPolicy {
	return domain.CleanupPolicy{
		DeleteExpiredOlderThanDays:    cfg.ExpiredOlderThanDays,
		DeleteCancelledOlderThanDays:  cfg.CancelledOlderThanDays,
		DeleteCheckedOutOlderThanDays: cfg.CheckedOutOlderThanDays,
		MaxArchivedCartsPerScope:      cfg.MaxArchivedPerScope,
	}
}

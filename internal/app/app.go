package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/adexify/internal/config"
	"github.com/utafrali/adexify/internal/event"
	handler "github.com/utafrali/adexify/internal/handler/http"
	"github.com/utafrali/adexify/internal/provider"
	"github.com/utafrali/adexify/internal/provider/mock"
	"github.com/utafrali/adexify/internal/provider/paystack"
	"github.com/utafrali/adexify/internal/repository/postgres"
	redisrepo "github.com/utafrali/adexify/internal/repository/redis"
	"github.com/utafrali/adexify/internal/search"
	esengine "github.com/utafrali/adexify/internal/search/elasticsearch"
	"github.com/utafrali/adexify/internal/search/memory"
	"github.com/utafrali/adexify/internal/service"
	"github.com/utafrali/adexify/migrations"
	"github.com/utafrali/adexify/pkg/database"
	"github.com/utafrali/adexify/pkg/health"
	pkgkafka "github.com/utafrali/adexify/pkg/kafka"
	"github.com/utafrali/adexify/pkg/middleware"
	"github.com/utafrali/adexify/pkg/tracing"
)

// idempotencyTTL is how long consumed event ids are remembered.
const idempotencyTTL = 24 * time.Hour

// App wires together all dependencies and runs the API.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	stockConsumer  *pkgkafka.Consumer
	search         *service.SearchService
	services       handler.Services
	health         *health.Handler
	tracerShutdown tracing.Shutdown
}

// NewApp creates a new application instance, initializing all dependencies.
// Everything opened before a failure is closed again.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger, health: health.NewHandler()}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	initCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	a.tracerShutdown, err = tracing.Init(initCtx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// PostgreSQL
	a.pool, err = database.NewPostgresPool(initCtx, cfg.Postgres(), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to PostgreSQL", slog.String("database", cfg.PostgresDB))

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool, cfg.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}
	if err := database.RunMigrations(initCtx, a.pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
	}

	// Redis
	a.redis, err = database.NewRedisClient(initCtx, cfg.Redis(), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

	// Kafka. A nil producer drops events, which is how the API runs without
	// a broker.
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := a.producer.Ping(initCtx); err != nil {
			logger.Warn("kafka unreachable, continuing in degraded mode", slog.String("error", err.Error()))
		}
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	}
	eventProducer := event.NewProducer(a.producer, logger)

	engine, err := newSearchEngine(initCtx, cfg, logger)
	if err != nil {
		return nil, err
	}

	gateway := newGateway(cfg, logger)

	// Build the dependency graph.
	orders := postgres.NewOrderRepository(a.pool)
	products := postgres.NewProductRepository(a.pool)

	a.search = service.NewSearchService(engine, products, logger)
	a.services = handler.Services{
		Collections: service.NewCollectionService(
			redisrepo.NewCollectionRepository(a.redis, cfg.GuestTTL(), cfg.UserTTL()), eventProducer, logger),
		Orders:    service.NewOrderService(orders, gateway, eventProducer, cfg.ClientURL, logger),
		Payments:  service.NewPaymentService(orders, postgres.NewStockRepository(a.pool), gateway, eventProducer, logger),
		Addresses: service.NewAddressService(postgres.NewAddressRepository(a.pool), logger),
		Products:  service.NewProductService(products, postgres.NewViewRepository(a.pool), logger),
		Search:    a.search,
		Gateway:   gateway,
	}

	if cfg.KafkaEnabled {
		stock := event.NewStockConsumer(a.search, logger)
		store := pkgkafka.NewRedisIdempotencyStore(a.redis, cfg.KafkaGroupID, idempotencyTTL)
		a.stockConsumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    event.TopicInventoryStockChanged,
			MinBytes: 1,
			MaxBytes: 10e6,
		}, pkgkafka.IdempotentHandler(store, stock.Handle, logger), logger).WithDLQ(a.dlq)
	}

	// Health checks.
	a.health.RegisterCritical("postgres", func(ctx context.Context) error {
		return a.pool.Ping(ctx)
	})
	a.health.RegisterCritical("redis", func(ctx context.Context) error {
		return a.redis.Ping(ctx).Err()
	})
	if a.producer != nil {
		a.health.RegisterNonCritical("kafka", a.producer.Ping)
	}
	if es, ok := engine.(*esengine.Engine); ok {
		a.health.RegisterNonCritical("elasticsearch", es.Ping)
	}

	return a, nil
}

func newSearchEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (search.Engine, error) {
	if cfg.SearchEngine != config.EngineElasticsearch {
		logger.Info("in-memory search engine initialized")
		return memory.New(), nil
	}
	eng, err := esengine.New(ctx, cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
	if err != nil {
		return nil, fmt.Errorf("init elasticsearch engine: %w", err)
	}
	logger.Info("elasticsearch search engine initialized",
		slog.String("url", cfg.ElasticsearchURL),
		slog.String("index", cfg.ElasticsearchIndex),
	)
	return eng, nil
}

func newGateway(cfg *config.Config, logger *slog.Logger) provider.Gateway {
	if cfg.PaymentProvider == config.ProviderMock {
		logger.Warn("using mock payment provider")
		return mock.NewGateway(cfg.ClientURL + "/mock-checkout")
	}
	return paystack.New(paystack.Config{
		SecretKey: cfg.PaystackSecretKey,
		BaseURL:   cfg.PaystackBaseURL,
		Timeout:   cfg.PaymentTimeout,
	}, logger)
}

// Run serves HTTP, consumes stock events and fills the search index, until
// ctx is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	router := handler.NewRouter(ctx, a.services, a.health, handler.RouterConfig{
		ServiceName: a.cfg.ServiceName,
		Identity: middleware.IdentityConfig{
			Validate:        jwtValidator(a.cfg.JWTSecret),
			TrustUserHeader: a.cfg.TrustUserHeader,
		},
		CORS:           middleware.DefaultCORSConfig(a.cfg.AllowedOrigins...),
		RateLimitRPS:   a.cfg.RateLimitRPS,
		RateLimitBurst: a.cfg.RateLimitBurst,
		RequestTimeout: a.cfg.WriteTimeout,
	}, a.logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// The index is rebuilt in the background; searches return partial
	// results until it completes.
	g.Go(func() error {
		if _, err := a.search.ReindexAll(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("initial search indexing failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if a.stockConsumer != nil {
		g.Go(func() error {
			if err := a.stockConsumer.Start(ctx); err != nil {
				return fmt.Errorf("stock consumer: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if cerr := a.close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// close releases resources in reverse dependency order.
func (a *App) close() error {
	var errs []error

	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if a.stockConsumer != nil {
		if err := a.stockConsumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stock consumer close: %w", err))
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			errs = append(errs, fmt.Errorf("dlq producer close: %w", err))
		}
	}
	if err := a.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("kafka producer close: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func jwtValidator(secret string) middleware.TokenValidator {
	if secret == "" {
		return nil
	}
	return middleware.NewJWTValidator(secret)
}

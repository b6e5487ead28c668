package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/shaiso/OrderFlow/internal/cache"
	"github.com/shaiso/OrderFlow/internal/config"
	"github.com/shaiso/OrderFlow/internal/monitor"
	"github.com/shaiso/OrderFlow/internal/mq"
	"github.com/shaiso/OrderFlow/internal/ops"
	"github.com/shaiso/OrderFlow/internal/outbound"
	"github.com/shaiso/OrderFlow/internal/pipeline"
	"github.com/shaiso/OrderFlow/internal/processor"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// App — собранный order-ingestor.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store   OrderStore
	redis   *cache.RedisCache
	conn    *mq.Connection
	service *pipeline.Service
	monitor *monitor.Monitor
	server  *ops.Server
}

// New подключается к зависимостям и собирает пайплайн.
//
// При ошибке уже открытые соединения закрываются.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	// Хранилище
	a.store, err = OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	logger.Info("order store ready", "driver", cfg.Store.Driver)

	checks := map[string]ops.Pinger{"database": a.store}

	var store processor.Store = a.store
	if cfg.Redis.Addr != "" {
		a.redis = cache.NewRedisCache(cfg.Redis.Addr, "orderflow")
		if err := a.redis.Ping(ctx); err != nil {
			// кэш необязателен: CachedStore переживёт недоступный Redis
			logger.Warn("redis not available, lookups will hit the store", "addr", cfg.Redis.Addr, "error", err)
		}
		store = cache.NewCachedStore(cache.StoreConfig{
			Backend: a.store,
			Cache:   a.redis,
			TTL:     cfg.Redis.TTL,
			Logger:  logger,
		})
		checks["redis"] = a.redis
	}

	// RabbitMQ
	a.conn, err = mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	if err := mq.SetupTopology(ctx, a.conn, cfg.RabbitMQ.Topology); err != nil {
		return nil, fmt.Errorf("setup topology: %w", err)
	}
	checks["rabbitmq"] = a.conn

	topo := cfg.RabbitMQ.Topology

	proc := processor.New(processor.Config{
		Store:        store,
		StoreTimeout: cfg.Store.Timeout,
		Logger:       logger,
		Metrics:      metrics,
	})

	publisher := outbound.NewPublisher(outbound.Config{
		Sender:         mq.NewPublisher(a.conn, logger),
		Exchange:       topo.OutboundExchange,
		RoutingKey:     topo.OutboundRoutingKey,
		PublishTimeout: cfg.Outbound.PublishTimeout,
		Breaker:        cfg.Outbound.Breaker,
		Logger:         logger,
		Metrics:        metrics,
	})

	coordinator := pipeline.NewCoordinator(pipeline.CoordinatorConfig{
		Processor:   proc,
		Publisher:   publisher,
		AckDegraded: cfg.Pipeline.AckDegraded,
		Logger:      logger,
		Metrics:     metrics,
	})

	a.service = pipeline.NewService(pipeline.ServiceConfig{
		Conn:        a.conn,
		Coordinator: coordinator,
		Queue:       topo.InboundQueue,
		Concurrency: cfg.Pipeline.Concurrency,
		Prefetch:    cfg.Pipeline.Prefetch,
		Logger:      logger,
	})

	if cfg.Monitor.Enabled {
		a.monitor, err = monitor.New(monitor.Config{
			Inspector:       a.conn,
			Schedule:        cfg.Monitor.Schedule,
			Queues:          []mq.Queue{topo.InboundQueue, topo.OutboundQueue},
			DeadLetterQueue: topo.DeadLetterQueue,
			Logger:          logger,
			Metrics:         metrics,
		})
		if err != nil {
			return nil, err
		}
	}

	handler := ops.NewHandler(ops.Config{
		Checks: checks,
		Logger: logger,
	})
	a.server = ops.NewServer(cfg.HTTP.Addr(), ops.NewRouter(handler, registry), logger)

	return a, nil
}

// Run запускает пайплайн, монитор и HTTP сервер и блокируется
// до отмены ctx или ошибки HTTP сервера.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if err := a.service.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	defer a.service.Stop()

	if a.monitor != nil {
		if err := a.monitor.Start(ctx); err != nil {
			return fmt.Errorf("start monitor: %w", err)
		}
		defer a.monitor.Stop()
	}

	a.server.Start(func(err error) { cancel(err) })

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// Close закрывает соединения. Вызывается после Run.
func (a *App) Close() error {
	var errs []error

	if a.conn != nil {
		errs = append(errs, a.conn.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}

	return errors.Join(errs...)
}

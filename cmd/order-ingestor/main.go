// order-ingestor — потребитель входящих заказов.
//
// Ingestor:
//   - Получает заказы из RabbitMQ (q.orders.import)
//   - Идемпотентно сохраняет их и считает total
//   - Публикует рассчитанный заказ downstream через circuit breaker
//   - Отдаёт /healthz, /readyz и /metrics
//
// Экземпляры масштабируются горизонтально: дубликаты разрешает
// уникальность external_id в хранилище.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/OrderFlow/internal/app"
	"github.com/shaiso/OrderFlow/internal/config"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default: $ORDERFLOW_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		telemetry.SetupLogger(telemetry.LogConfig{}).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log)
	logger.Info("starting order-ingestor", "store", cfg.Store.Driver, "http", cfg.HTTP.Addr())

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	runErr := a.Run(ctx)
	if err := a.Close(); err != nil {
		logger.Warn("close error", "error", err)
	}

	if runErr != nil {
		logger.Error("order-ingestor stopped with error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("order-ingestor stopped")
}

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/OrderFlow/internal/mq"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

const defaultConcurrency = 4

// Service потребляет входящую очередь заказов.
//
// Каждое сообщение проходит Coordinator.Handle целиком в одной
// горутине consumer'а. Блокировок по externalId нет: конкурентные
// доставки одного заказа разрешает уникальность в хранилище.
type Service struct {
	conn        *mq.Connection
	coordinator *Coordinator
	queue       mq.Queue
	concurrency int
	prefetch    int

	consumer *mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// ServiceConfig — конфигурация Service.
type ServiceConfig struct {
	Conn        *mq.Connection
	Coordinator *Coordinator

	// Queue — входящая очередь.
	Queue mq.Queue

	// Concurrency — число параллельных обработчиков (default: 4).
	Concurrency int

	// Prefetch — Qos consumer'а (default: Concurrency).
	Prefetch int

	Logger *slog.Logger
}

// NewService создаёт новый Service.
func NewService(cfg ServiceConfig) *Service {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = concurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		conn:        cfg.Conn,
		coordinator: cfg.Coordinator,
		queue:       cfg.Queue,
		concurrency: concurrency,
		prefetch:    prefetch,
		logger:      logger.With("component", "pipeline"),
	}
}

// Start запускает consumer входящей очереди и сразу возвращается.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("starting pipeline",
		"queue", s.queue,
		"concurrency", s.concurrency,
		"prefetch", s.prefetch,
	)

	s.consumer = mq.NewConsumer(s.conn, s.logger, mq.ConsumerConfig{
		Queue:       s.queue,
		Handler:     s.handleDelivery,
		Prefetch:    s.prefetch,
		Concurrency: s.concurrency,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("order consumer error", "error", err)
		}
	}()

	s.logger.Info("pipeline started")
	return nil
}

// Stop останавливает consumer и ждёт завершения обрабатываемых сообщений.
func (s *Service) Stop() {
	s.stoppedMu.Lock()
	if s.stopped {
		s.stoppedMu.Unlock()
		return
	}
	s.stopped = true
	s.stoppedMu.Unlock()

	s.logger.Info("stopping pipeline...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	if s.consumer != nil {
		s.consumer.Stop()
	}

	s.wg.Wait()

	s.logger.Info("pipeline stopped")
}

// IsStopped проверяет, остановлен ли Service.
func (s *Service) IsStopped() bool {
	s.stoppedMu.RLock()
	defer s.stoppedMu.RUnlock()
	return s.stopped
}

// handleDelivery — mq.Handler: передаёт тело в Coordinator.
func (s *Service) handleDelivery(ctx context.Context, d *mq.Delivery) mq.Decision {
	logger := telemetry.WithMessageID(s.logger, d.MessageID())
	if n := d.DeliveryCount(); n > 0 {
		logger = logger.With("delivery_count", n)
	}

	out := s.coordinator.Handle(telemetry.WithLogger(ctx, logger), d.Body())
	return out.Decision
}

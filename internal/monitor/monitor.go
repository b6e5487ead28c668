package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/OrderFlow/internal/mq"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

const (
	defaultSchedule    = "@every 30s"
	defaultTickTimeout = 10 * time.Second
)

// scheduleParser — стандартные 5 полей плюс дескрипторы (@every, @hourly).
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Inspector возвращает количество готовых сообщений в очереди.
// Реализуется mq.Connection.
type Inspector interface {
	QueueDepth(ctx context.Context, queue mq.Queue) (int, error)
}

// Config — конфигурация Monitor.
type Config struct {
	Inspector Inspector

	// Schedule — cron-выражение или дескриптор (default: "@every 30s").
	Schedule string

	// Queues — очереди, глубина которых экспортируется.
	Queues []mq.Queue

	// DeadLetterQueue — очередь, непустота которой считается аварией.
	DeadLetterQueue mq.Queue

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Monitor — периодическая проверка очередей.
type Monitor struct {
	inspector Inspector
	schedule  string
	queues    []mq.Queue
	dlq       mq.Queue
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	cron *cron.Cron
}

// New создаёт Monitor. Возвращает ошибку для некорректного расписания.
func New(cfg Config) (*Monitor, error) {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "monitor")

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}

	queues := append([]mq.Queue(nil), cfg.Queues...)
	if cfg.DeadLetterQueue != "" && !contains(queues, cfg.DeadLetterQueue) {
		queues = append(queues, cfg.DeadLetterQueue)
	}

	return &Monitor{
		inspector: cfg.Inspector,
		schedule:  schedule,
		queues:    queues,
		dlq:       cfg.DeadLetterQueue,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Start регистрирует задачу и запускает cron в фоне.
// Первая проверка выполняется сразу.
func (m *Monitor) Start(ctx context.Context) error {
	m.cron = cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(cronLogger{m.logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{m.logger})),
	)

	_, err := m.cron.AddFunc(m.schedule, func() {
		m.runTick(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule monitor: %w", err)
	}

	m.logger.Info("starting monitor", "schedule", m.schedule, "queues", len(m.queues))

	go m.runTick(ctx)
	m.cron.Start()

	return nil
}

// Stop останавливает cron и ждёт завершения текущей проверки.
func (m *Monitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.logger.Info("monitor stopped")
}

func (m *Monitor) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTickTimeout)
	defer cancel()

	if err := m.Tick(ctx); err != nil {
		m.logger.Warn("monitor tick failed", "error", err)
	}
}

// Tick опрашивает все очереди.
//
// Ошибка одной очереди не блокирует остальные; ошибки объединяются.
func (m *Monitor) Tick(ctx context.Context) error {
	var errs []error

	for _, q := range m.queues {
		depth, err := m.inspector.QueueDepth(ctx, q)
		if err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", q, err))
			continue
		}

		m.metrics.QueueDepth.WithLabelValues(string(q)).Set(float64(depth))

		if q == m.dlq && depth > 0 {
			m.logger.Warn("dead letter queue is not empty", "queue", q, "messages", depth)
		} else {
			m.logger.Debug("queue depth", "queue", q, "messages", depth)
		}
	}

	return errors.Join(errs...)
}

// ValidateSchedule проверяет валидность расписания.
func ValidateSchedule(schedule string) error {
	if _, err := scheduleParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}
	return nil
}

func contains(queues []mq.Queue, q mq.Queue) bool {
	for _, v := range queues {
		if v == q {
			return true
		}
	}
	return false
}

// cronLogger — адаптер slog для cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/OrderFlow/internal/domain"
	"github.com/shaiso/OrderFlow/internal/mq"
	"github.com/shaiso/OrderFlow/internal/outbound"
	"github.com/shaiso/OrderFlow/internal/processor"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

// Processor — идемпотентная обработка запроса.
type Processor interface {
	Process(ctx context.Context, req domain.OrderRequest) (*processor.Result, error)
}

// Publisher — публикация рассчитанного заказа.
type Publisher interface {
	Publish(ctx context.Context, order *domain.Order) (outbound.Result, error)
}

// OutcomeKind — вид результата обработки сообщения.
type OutcomeKind string

const (
	// OutcomeProcessed — заказ сохранён (или найден) и опубликован.
	OutcomeProcessed OutcomeKind = "processed"

	// OutcomeDegraded — заказ сохранён, downstream недоступен (breaker разомкнут).
	OutcomeDegraded OutcomeKind = "degraded"

	// OutcomeInvalid — сообщение не декодируется или не проходит валидацию.
	OutcomeInvalid OutcomeKind = "invalid"

	// OutcomeRaceInconsistency — конфликт уникальности без победителя.
	OutcomeRaceInconsistency OutcomeKind = "race_inconsistency"

	// OutcomeTransient — временная ошибка хранилища или публикации.
	OutcomeTransient OutcomeKind = "transient"
)

// Outcome — результат обработки одного сообщения.
type Outcome struct {
	Kind     OutcomeKind
	Decision mq.Decision

	// Order — снимок заказа для отчётности. Статус PROCESSED или ERROR
	// отражает результат публикации и не сохраняется в хранилище.
	Order *domain.Order

	// Path — путь процессора (created, duplicate, race_recovered).
	Path processor.Path

	// Publish — результат публикации.
	Publish outbound.Result

	Err error
}

// Acked возвращает true, если сообщение будет подтверждено.
func (o Outcome) Acked() bool {
	return o.Decision == mq.DecisionAck
}

// CoordinatorConfig — конфигурация Coordinator.
type CoordinatorConfig struct {
	Processor Processor
	Publisher Publisher

	// AckDegraded — подтверждать сообщение при разомкнутом breaker.
	// По умолчанию такое сообщение уходит в DLX.
	AckDegraded bool

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Coordinator обрабатывает входящие сообщения.
type Coordinator struct {
	processor   Processor
	publisher   Publisher
	ackDegraded bool
	logger      *slog.Logger
	metrics     *telemetry.Metrics
}

// NewCoordinator создаёт новый Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}

	return &Coordinator{
		processor:   cfg.Processor,
		publisher:   cfg.Publisher,
		ackDegraded: cfg.AckDegraded,
		logger:      logger,
		metrics:     metrics,
	}
}

// Handle декодирует, обрабатывает и публикует одно сообщение.
func (c *Coordinator) Handle(ctx context.Context, body []byte) Outcome {
	start := time.Now()

	out := c.handle(ctx, body)

	c.metrics.MessagesTotal.WithLabelValues(string(out.Kind)).Inc()
	c.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())

	return out
}

func (c *Coordinator) handle(ctx context.Context, body []byte) Outcome {
	logger := telemetry.FromContextOr(ctx, c.logger)

	// 1. Декодирование
	var req domain.OrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		err = fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		logger.Error("failed to decode order message", "error", err, "body", string(body))
		return Outcome{Kind: OutcomeInvalid, Decision: mq.DecisionDeadLetter, Err: err}
	}

	logger = telemetry.WithExternalID(logger, req.ExternalID)

	// 2. Идемпотентная обработка
	res, err := c.processor.Process(ctx, req)
	if err != nil {
		return c.processFailure(logger, err)
	}

	logger = telemetry.WithOrderID(logger, res.Order.ID)
	report := res.Order.Clone()

	// 3. Публикация
	pub, err := c.publisher.Publish(ctx, report)
	if err != nil {
		markReport(logger, report, domain.OrderStatusError)
		logger.Warn("publish failed, message will be retried", "error", err)
		return Outcome{
			Kind:     OutcomeTransient,
			Decision: mq.DecisionRetry,
			Order:    report,
			Path:     res.Path,
			Err:      err,
		}
	}

	if pub.Degraded {
		markReport(logger, report, domain.OrderStatusError)

		decision := mq.DecisionDeadLetter
		if c.ackDegraded {
			decision = mq.DecisionAck
		}
		logger.Warn("order stored but downstream unavailable", "decision", decision)

		return Outcome{
			Kind:     OutcomeDegraded,
			Decision: decision,
			Order:    report,
			Path:     res.Path,
			Publish:  pub,
		}
	}

	markReport(logger, report, domain.OrderStatusProcessed)
	logger.Info("order message processed", "path", res.Path, "message_id", pub.MessageID)

	return Outcome{
		Kind:     OutcomeProcessed,
		Decision: mq.DecisionAck,
		Order:    report,
		Path:     res.Path,
		Publish:  pub,
	}
}

// processFailure сопоставляет ошибку процессора с исходом.
func (c *Coordinator) processFailure(logger *slog.Logger, err error) Outcome {
	switch {
	case errors.Is(err, processor.ErrInvalidRequest):
		logger.Error("order request rejected", "error", err)
		return Outcome{Kind: OutcomeInvalid, Decision: mq.DecisionDeadLetter, Err: err}

	case errors.Is(err, processor.ErrRaceInconsistency):
		logger.Error("unrecoverable race, sending to dead letter", "error", err)
		return Outcome{Kind: OutcomeRaceInconsistency, Decision: mq.DecisionDeadLetter, Err: err}

	default:
		logger.Warn("transient failure, message will be retried", "error", err)
		return Outcome{Kind: OutcomeTransient, Decision: mq.DecisionRetry, Err: err}
	}
}

// markReport переводит снимок заказа в итоговый статус.
// Заказ, уже находящийся в терминальном статусе, не меняется.
func markReport(logger *slog.Logger, order *domain.Order, status domain.OrderStatus) {
	var err error
	if status == domain.OrderStatusProcessed {
		err = order.MarkProcessed()
	} else {
		err = order.MarkFailed()
	}
	if err != nil {
		logger.Debug("report status unchanged", "status", order.Status, "error", err)
	}
}

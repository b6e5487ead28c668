package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/shaiso/OrderFlow/internal/domain"
	"github.com/shaiso/OrderFlow/internal/mq"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

const (
	defaultPublishTimeout   = 5 * time.Second
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	defaultHalfOpenRequests = 1
)

// Sender отправляет тело сообщения в брокер. Реализуется mq.Publisher.
type Sender interface {
	Publish(ctx context.Context, exchange mq.Exchange, routingKey mq.RoutingKey, messageID string, body []byte) (string, error)
}

// BreakerConfig — параметры circuit breaker.
type BreakerConfig struct {
	// FailureThreshold — подряд идущих ошибок до размыкания (default: 5).
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// OpenTimeout — сколько breaker остаётся разомкнутым (default: 30s).
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// HalfOpenRequests — пробных отправок в half-open (default: 1).
	HalfOpenRequests uint32 `yaml:"half_open_requests"`
}

// Config — конфигурация Publisher.
type Config struct {
	Sender     Sender
	Exchange   mq.Exchange
	RoutingKey mq.RoutingKey

	// PublishTimeout — таймаут одной отправки с ожиданием confirm (default: 5s).
	PublishTimeout time.Duration

	Breaker BreakerConfig

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Result — результат публикации.
type Result struct {
	// Message — отправленное сообщение или fallback.
	Message OrderMessage

	// MessageID — AMQP message-id. Пусто для degraded.
	MessageID string

	// Degraded — breaker разомкнут, сообщение не отправлялось.
	Degraded bool
}

// Publisher — публикация заказов через circuit breaker.
type Publisher struct {
	sender     Sender
	exchange   mq.Exchange
	routingKey mq.RoutingKey
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *telemetry.Metrics
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(cfg Config) *Publisher {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	threshold := cfg.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = defaultFailureThreshold
	}

	openTimeout := cfg.Breaker.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}

	halfOpen := cfg.Breaker.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = defaultHalfOpenRequests
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "outbound")

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}

	p := &Publisher{
		sender:     cfg.Sender,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		timeout:    timeout,
		logger:     logger,
		metrics:    metrics,
	}

	name := string(cfg.Exchange) + "/" + string(cfg.RoutingKey)
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpen,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	metrics.BreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	return p
}

// Publish отправляет заказ downstream.
//
// Разомкнутый breaker не является ошибкой: возвращается Result
// с Degraded и fallback-сообщением. Ошибка отправки при закрытом
// breaker возвращается как ErrPublishFailed.
func (p *Publisher) Publish(ctx context.Context, order *domain.Order) (Result, error) {
	msg := NewOrderMessage(order)

	body, err := json.Marshal(msg)
	if err != nil {
		return Result{}, fmt.Errorf("marshal order message: %w", err)
	}

	logger := telemetry.WithOrderID(telemetry.WithExternalID(p.logger, order.ExternalID), order.ID)

	id, err := p.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		return p.sender.Publish(ctx, p.exchange, p.routingKey, "", body)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		logger.Warn("downstream unavailable, returning fallback", "breaker", p.breaker.State().String())
		p.metrics.PublishTotal.WithLabelValues("degraded").Inc()
		return Result{Message: FallbackMessage(order.ExternalID), Degraded: true}, nil

	case err != nil:
		logger.Error("publish failed", "error", err)
		p.metrics.PublishTotal.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	messageID, _ := id.(string)
	logger.Info("order published", "message_id", messageID)
	p.metrics.PublishTotal.WithLabelValues("sent").Inc()

	return Result{Message: msg, MessageID: messageID}, nil
}

// State возвращает текущее состояние breaker.
func (p *Publisher) State() gobreaker.State {
	return p.breaker.State()
}

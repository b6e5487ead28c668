package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Decision — что сделать с сообщением после обработки.
type Decision int

const (
	// DecisionAck — сообщение обработано, удалить из очереди.
	DecisionAck Decision = iota

	// DecisionRetry — временная ошибка, вернуть в очередь.
	// После x-delivery-limit попыток брокер отправит его в DLX.
	DecisionRetry

	// DecisionDeadLetter — сообщение не может быть обработано, сразу в DLX.
	DecisionDeadLetter
)

// String возвращает строковое представление решения.
func (d Decision) String() string {
	switch d {
	case DecisionAck:
		return "ack"
	case DecisionRetry:
		return "retry"
	case DecisionDeadLetter:
		return "dead_letter"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Handler — функция обработки сообщения. Решение применяет Consumer.
type Handler func(ctx context.Context, msg *Delivery) Decision

// Delivery — доставленное сообщение.
type Delivery struct {
	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Body возвращает тело сообщения.
func (d *Delivery) Body() []byte {
	return d.Raw.Body
}

// MessageID возвращает AMQP message-id.
func (d *Delivery) MessageID() string {
	return d.Raw.MessageId
}

// DeliveryCount возвращает число предыдущих доставок из заголовка
// quorum-очереди x-delivery-count. Для первой доставки 0.
func (d *Delivery) DeliveryCount() int64 {
	switch v := d.Raw.Headers["x-delivery-count"].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество неподтверждённых сообщений на канал (default: Concurrency).
	Prefetch int

	// Concurrency — число параллельных обработчиков (default: 1).
	Concurrency int
}

// Consumer потребляет сообщения из очереди RabbitMQ.
type Consumer struct {
	conn        *Connection
	logger      *slog.Logger
	queue       Queue
	handler     Handler
	prefetch    int
	concurrency int

	cancelFunc context.CancelFunc
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = concurrency
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:        conn,
		logger:      logger,
		queue:       cfg.Queue,
		handler:     cfg.Handler,
		prefetch:    prefetch,
		concurrency: concurrency,
	}
}

// Start запускает потребление сообщений. Блокируется до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			// Ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started",
			"queue", c.queue,
			"concurrency", c.concurrency,
			"prefetch", c.prefetch,
		)

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (мы ack вручную)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

// processDeliveries раздаёт сообщения concurrency обработчикам.
// Возвращается, когда все обработчики завершили текущие сообщения.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	errCh := make(chan error, c.concurrency)
	var wg sync.WaitGroup

	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case raw, ok := <-deliveries:
					if !ok {
						errCh <- ErrDeliveriesClosed
						return
					}
					c.handleDelivery(ctx, raw)
				}
			}
		}()
	}

	wg.Wait()
	return <-errCh
}

// handleDelivery обрабатывает одно сообщение и применяет решение.
//
// Обработчик получает контекст без отмены: начатое сообщение
// доводится до ack/nack даже при остановке.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	delivery := &Delivery{Raw: raw}

	logger := c.logger.With(
		"queue", c.queue,
		"message_id", raw.MessageId,
		"redelivered", raw.Redelivered,
	)
	logger.Debug("received message", "delivery_count", delivery.DeliveryCount())

	decision := c.handler(context.WithoutCancel(ctx), delivery)

	var err error
	switch decision {
	case DecisionAck:
		err = raw.Ack(false)
	case DecisionRetry:
		// Возвращаем в очередь для retry
		// (если retry исчерпаны, DLQ настроен на уровне очереди)
		err = raw.Nack(false, true)
	default:
		err = raw.Nack(false, false)
	}
	if err != nil {
		logger.Error("failed to settle message", "decision", decision, "error", err)
		return
	}

	logger.Debug("message settled", "decision", decision)
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

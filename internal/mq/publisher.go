package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher публикует сообщения в RabbitMQ и ждёт подтверждения брокера.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		conn:   conn,
		logger: logger,
		now:    time.Now,
	}
}

// Publish публикует тело сообщения и блокируется до ack брокера
// или отмены ctx. Пустой messageID заменяется на новый UUID.
// Возвращает итоговый MessageId.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, messageID string, body []byte) (string, error) {
	if messageID == "" {
		messageID = uuid.New().String()
	}

	err := p.conn.WithPublishChannel(ctx, func(ch *amqp.Channel) error {
		confirm, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    messageID,
				Timestamp:    p.now(),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		// confirm == nil, если канал не в confirm mode
		if confirm == nil {
			return nil
		}

		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("wait confirm %s/%s: %w", exchange, routingKey, err)
		}
		if !acked {
			return fmt.Errorf("%w: %s/%s", ErrNotConfirmed, exchange, routingKey)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", messageID,
	)

	return messageID, nil
}

// PublishJSON сериализует payload и публикует его.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	return p.Publish(ctx, exchange, routingKey, "", body)
}

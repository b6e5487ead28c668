package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Topology — exchanges, queues и bindings пайплайна заказов.
type Topology struct {
	// Inbound — входящие заказы.
	InboundExchange     Exchange   `yaml:"inbound_exchange"`
	InboundExchangeKind string     `yaml:"inbound_exchange_kind"`
	InboundQueue        Queue      `yaml:"inbound_queue"`
	InboundRoutingKey   RoutingKey `yaml:"inbound_routing_key"`

	// DeliveryLimit — сколько раз quorum-очередь доставит сообщение,
	// прежде чем отправить его в DLX. 0 — без ограничения.
	DeliveryLimit int `yaml:"delivery_limit"`

	// Dead letter.
	DeadLetterExchange   Exchange   `yaml:"dead_letter_exchange"`
	DeadLetterQueue      Queue      `yaml:"dead_letter_queue"`
	DeadLetterRoutingKey RoutingKey `yaml:"dead_letter_routing_key"`

	// Outbound — рассчитанные заказы для downstream.
	OutboundExchange     Exchange   `yaml:"outbound_exchange"`
	OutboundExchangeKind string     `yaml:"outbound_exchange_kind"`
	OutboundQueue        Queue      `yaml:"outbound_queue"`
	OutboundRoutingKey   RoutingKey `yaml:"outbound_routing_key"`
}

// DefaultTopology возвращает топологию по умолчанию.
func DefaultTopology() Topology {
	return Topology{
		InboundExchange:     "ex.orders.main",
		InboundExchangeKind: amqp.ExchangeTopic,
		InboundQueue:        "q.orders.import",
		InboundRoutingKey:   "order.imported",
		DeliveryLimit:       5,

		DeadLetterExchange:   "ex.orders.dlx",
		DeadLetterQueue:      "q.orders.import.dlq",
		DeadLetterRoutingKey: "order.error",

		OutboundExchange:     "ex.orders.main",
		OutboundExchangeKind: amqp.ExchangeTopic,
		OutboundQueue:        "q.orders.calculated",
		OutboundRoutingKey:   "order.calculated",
	}
}

// Validate проверяет, что все имена заданы и виды обменников согласованы.
func (t Topology) Validate() error {
	required := map[string]string{
		"inbound_exchange":        string(t.InboundExchange),
		"inbound_queue":           string(t.InboundQueue),
		"inbound_routing_key":     string(t.InboundRoutingKey),
		"dead_letter_exchange":    string(t.DeadLetterExchange),
		"dead_letter_queue":       string(t.DeadLetterQueue),
		"dead_letter_routing_key": string(t.DeadLetterRoutingKey),
		"outbound_exchange":       string(t.OutboundExchange),
		"outbound_routing_key":    string(t.OutboundRoutingKey),
	}
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("topology: %s is required", name)
		}
	}

	if t.DeliveryLimit < 0 {
		return fmt.Errorf("topology: delivery_limit must be >= 0")
	}

	if t.InboundExchange == t.OutboundExchange && t.InboundExchangeKind != t.OutboundExchangeKind {
		return fmt.Errorf("topology: exchange %s declared as both %s and %s",
			t.InboundExchange, t.InboundExchangeKind, t.OutboundExchangeKind)
	}

	if t.InboundExchange == t.DeadLetterExchange {
		return fmt.Errorf("topology: dead letter exchange must differ from inbound exchange")
	}

	return nil
}

type exchangeSpec struct {
	name Exchange
	kind string
}

type queueSpec struct {
	name Queue
	args amqp.Table
}

type bindingSpec struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

func (t Topology) exchanges() []exchangeSpec {
	specs := []exchangeSpec{
		{t.InboundExchange, t.InboundExchangeKind},
		{t.DeadLetterExchange, amqp.ExchangeDirect},
	}
	if t.OutboundExchange != t.InboundExchange {
		specs = append(specs, exchangeSpec{t.OutboundExchange, t.OutboundExchangeKind})
	}
	return specs
}

func (t Topology) queues() []queueSpec {
	inboundArgs := amqp.Table{
		amqp.QueueTypeArg:           amqp.QueueTypeQuorum,
		"x-dead-letter-exchange":    string(t.DeadLetterExchange),
		"x-dead-letter-routing-key": string(t.DeadLetterRoutingKey),
	}
	if t.DeliveryLimit > 0 {
		inboundArgs["x-delivery-limit"] = int32(t.DeliveryLimit)
	}

	specs := []queueSpec{
		{t.InboundQueue, inboundArgs},
		{t.DeadLetterQueue, nil},
	}
	if t.OutboundQueue != "" {
		specs = append(specs, queueSpec{t.OutboundQueue, nil})
	}
	return specs
}

func (t Topology) bindings() []bindingSpec {
	specs := []bindingSpec{
		{t.InboundQueue, t.InboundRoutingKey, t.InboundExchange},
		{t.DeadLetterQueue, t.DeadLetterRoutingKey, t.DeadLetterExchange},
	}
	if t.OutboundQueue != "" {
		specs = append(specs, bindingSpec{t.OutboundQueue, t.OutboundRoutingKey, t.OutboundExchange})
	}
	return specs
}

// SetupTopology объявляет exchanges, queues и bindings. Идемпотентна,
// пока аргументы очередей не меняются.
func SetupTopology(ctx context.Context, conn *Connection, t Topology) error {
	if err := t.Validate(); err != nil {
		return err
	}

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		for _, ex := range t.exchanges() {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		// 2. Создаём queues
		for _, q := range t.queues() {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		// 3. Привязываем queues к exchanges
		for _, b := range t.bindings() {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для вывода в CLI.
func TopologyInfo(t Topology) string {
	var b strings.Builder

	b.WriteString("OrderFlow RabbitMQ Topology:\n\n")

	byExchange := map[Exchange][]bindingSpec{}
	for _, bs := range t.bindings() {
		byExchange[bs.exchange] = append(byExchange[bs.exchange], bs)
	}

	for _, ex := range t.exchanges() {
		fmt.Fprintf(&b, "  %s (%s)\n", ex.name, ex.kind)

		list := byExchange[ex.name]
		for i, bs := range list {
			branch := "├──"
			if i == len(list)-1 {
				branch = "└──"
			}
			fmt.Fprintf(&b, "  %s %s [routing: %s]\n", branch, bs.queue, bs.routingKey)

			if bs.queue == t.InboundQueue {
				fmt.Fprintf(&b, "  │       quorum, delivery limit: %d, DLX: %s\n", t.DeliveryLimit, t.DeadLetterExchange)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}
